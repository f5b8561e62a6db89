package job

import (
	"fmt"
	"sync"
	"time"
)

// Store is the in-memory job registry. It lives for the lifetime of the
// process; there is deliberately no persistence behind it. Reads and
// writes are safe concurrently with running pipelines.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	// order keeps insertion order so /list is stable across calls.
	order []string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{jobs: make(map[string]*Job)}
}

// Create registers a new queued job and returns it.
func (s *Store) Create(description, repoURL string) *Job {
	j := New(description, repoURL)
	s.mu.Lock()
	s.jobs[j.ID] = j
	s.order = append(s.order, j.ID)
	s.mu.Unlock()
	return j
}

// Get returns a full snapshot of one job, logs included.
func (s *Store) Get(id string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return j.snapshot(true), nil
}

// List returns lightweight snapshots of every job in submission order.
// Logs are omitted; LogCount tells readers how much detail /job/{id}
// would return.
func (s *Store) List() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Snapshot, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.jobs[id].snapshot(false))
	}
	return out
}

// Claim transitions a job from queued to running, records its start
// time and private workdir, and hands the live job to the calling slot.
// Exactly one caller can win the transition.
func (s *Store) Claim(id, workdir string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if j.Status != StatusQueued {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, StatusRunning)
	}
	now := time.Now().UTC()
	j.Status = StatusRunning
	j.StartedAt = &now
	j.Workdir = workdir
	return j, nil
}

// Complete transitions a running job to completed and records the
// deployed endpoint.
func (s *Store) Complete(id, result string) error {
	return s.finish(id, StatusCompleted, func(j *Job) {
		j.Result = result
	})
}

// Fail transitions a running job to failed and records the failing
// stage and reason.
func (s *Store) Fail(id string, stage Stage, reason string) error {
	return s.finish(id, StatusFailed, func(j *Job) {
		j.FailedStage = string(stage)
		j.Result = reason
	})
}

func (s *Store) finish(id string, status Status, apply func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if j.Status != StatusRunning {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, status)
	}
	now := time.Now().UTC()
	j.Status = status
	j.FinishedAt = &now
	apply(j)
	return nil
}

// CountByStatus returns how many jobs currently hold the given status.
func (s *Store) CountByStatus(status Status) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, j := range s.jobs {
		if j.Status == status {
			n++
		}
	}
	return n
}
