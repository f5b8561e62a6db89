package job

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a deployment job. Transitions are
// monotonic: queued -> running -> completed|failed, enforced by Store.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is one end-to-end deployment request and its execution record.
// Core fields are mutated only through Store by the dispatcher slot that
// owns the job; Logs carries its own lock and stays writable until the
// owning stage has drained its subprocess output.
type Job struct {
	ID          string
	Description string
	RepoURL     string
	Workdir     string
	Status      Status
	Result      string
	FailedStage string
	CreatedAt   time.Time
	StartedAt   *time.Time
	FinishedAt  *time.Time
	Logs        *LogSink
}

// New creates a queued job with a fresh id and log sink.
func New(description, repoURL string) *Job {
	return &Job{
		ID:          uuid.New().String(),
		Description: description,
		RepoURL:     repoURL,
		Status:      StatusQueued,
		CreatedAt:   time.Now().UTC(),
		Logs:        NewLogSink(),
	}
}

// ShortID returns the first uuid segment, used to tag cloud resources.
func (j *Job) ShortID() string {
	id := j.ID
	for i := 0; i < len(id); i++ {
		if id[i] == '-' {
			id = id[:i]
			break
		}
	}
	if len(id) > 8 {
		id = id[:8]
	}
	return id
}

// Snapshot is a point-in-time, read-only copy of a job for API responses.
type Snapshot struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	RepoURL     string     `json:"repo_url"`
	Workdir     string     `json:"workdir,omitempty"`
	Status      Status     `json:"status"`
	Result      string     `json:"result,omitempty"`
	FailedStage string     `json:"failed_stage,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Logs        []string   `json:"logs,omitempty"`
	LogCount    int        `json:"log_count"`
}

func (j *Job) snapshot(withLogs bool) Snapshot {
	s := Snapshot{
		ID:          j.ID,
		Description: j.Description,
		RepoURL:     j.RepoURL,
		Workdir:     j.Workdir,
		Status:      j.Status,
		Result:      j.Result,
		FailedStage: j.FailedStage,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		FinishedAt:  j.FinishedAt,
		LogCount:    j.Logs.Len(),
	}
	if withLogs {
		s.Logs = j.Logs.Snapshot()
		s.LogCount = len(s.Logs)
	}
	return s
}
