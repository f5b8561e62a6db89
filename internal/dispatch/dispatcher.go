package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/flavienbwk/repo-autodeployer/internal/job"
)

const defaultConcurrency = 2

// Runner executes the full deployment pipeline for one job and returns
// the deployed endpoint, or an error carrying the failed stage.
type Runner interface {
	Run(ctx context.Context, j *job.Job) (string, error)
}

// ErrShuttingDown is returned by Submit once the dispatcher stopped
// accepting work.
var ErrShuttingDown = errors.New("dispatcher is shutting down")

// Config holds dispatcher configuration
type Config struct {
	Logger      *slog.Logger
	Store       *job.Store
	Runner      Runner
	Concurrency int
	DataDir     string
}

// Dispatcher owns a fixed pool of execution slots pulling queued jobs
// in arrival order. Each slot runs one job end-to-end; bounding the
// pool size is the system's admission control for clones, generator
// calls and provisioning runs.
type Dispatcher struct {
	logger      *slog.Logger
	store       *job.Store
	runner      Runner
	queue       *Queue
	concurrency int
	dataDir     string
	wg          sync.WaitGroup
}

// NewDispatcher creates a dispatcher. A non-positive concurrency is
// clamped so the pool can never start without slots.
func NewDispatcher(cfg *Config) *Dispatcher {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		cfg.Logger.Warn("Non-positive worker concurrency, using default",
			slog.Int("requested", concurrency),
			slog.Int("default", defaultConcurrency),
		)
		concurrency = defaultConcurrency
	}
	return &Dispatcher{
		logger:      cfg.Logger,
		store:       cfg.Store,
		runner:      cfg.Runner,
		queue:       NewQueue(),
		concurrency: concurrency,
		dataDir:     cfg.DataDir,
	}
}

// Concurrency returns the effective slot count W.
func (d *Dispatcher) Concurrency() int {
	return d.concurrency
}

// QueueDepth returns the number of jobs waiting for a slot.
func (d *Dispatcher) QueueDepth() int {
	return d.queue.Len()
}

// Start spawns the slot goroutines. They run until Stop is called or
// ctx is canceled.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("Spawning dispatcher slots",
		slog.Int("concurrency", d.concurrency),
		slog.String("data_dir", d.dataDir),
	)

	for i := 0; i < d.concurrency; i++ {
		d.wg.Add(1)
		go d.slotLoop(ctx, i)
	}

	go func() {
		<-ctx.Done()
		d.queue.Close()
	}()
}

// Stop closes the queue and waits for every slot to finish its current
// job and drain the backlog.
func (d *Dispatcher) Stop() {
	d.logger.Info("Stopping dispatcher...")
	d.queue.Close()
	d.wg.Wait()
	d.logger.Info("Dispatcher stopped")
}

// Submit registers a new job and enqueues it. It never blocks on
// pipeline execution: the job comes back in state queued and a free
// slot picks it up later.
func (d *Dispatcher) Submit(description, repoURL string) (*job.Job, error) {
	j := d.store.Create(description, repoURL)
	j.Logs.Infof("Job queued for repository %s", repoURL)
	if !d.queue.Push(j.ID) {
		if _, claimErr := d.store.Claim(j.ID, ""); claimErr == nil {
			_ = d.store.Fail(j.ID, "", ErrShuttingDown.Error())
		}
		return nil, ErrShuttingDown
	}
	d.logger.Info("Job enqueued",
		slog.String("job_id", j.ID),
		slog.String("repo_url", repoURL),
		slog.Int("queue_depth", d.queue.Len()),
	)
	return j, nil
}

// slotLoop is the main processing loop for one execution slot.
func (d *Dispatcher) slotLoop(ctx context.Context, slotNum int) {
	defer d.wg.Done()

	slotName := fmt.Sprintf("slot-%d", slotNum)
	d.logger.Info("Dispatcher slot started", slog.String("slot", slotName))

	for {
		id, ok := d.queue.Pop()
		if !ok {
			d.logger.Info("Dispatcher slot stopping - queue closed",
				slog.String("slot", slotName),
			)
			return
		}
		d.runJob(ctx, slotName, id)
	}
}

// runJob drives one job from claimed to a terminal state. A failed job
// never takes the slot down with it.
func (d *Dispatcher) runJob(ctx context.Context, slotName, id string) {
	workdir := filepath.Join(d.dataDir, id)

	j, err := d.store.Claim(id, workdir)
	if err != nil {
		d.logger.Error("Failed to claim job",
			slog.String("slot", slotName),
			slog.String("job_id", id),
			slog.String("error", err.Error()),
		)
		return
	}

	d.logger.Info("Slot picked up job",
		slog.String("slot", slotName),
		slog.String("job_id", id),
	)
	j.Logs.Info("Job started")

	result, err := d.runWithRecovery(ctx, j, workdir)
	if err != nil {
		stage := job.FailedStage(err)
		j.Logs.Errorf("Job failed at stage %s: %s", stage, err)
		if failErr := d.store.Fail(id, stage, err.Error()); failErr != nil {
			d.logger.Error("Failed to record job failure",
				slog.String("job_id", id),
				slog.String("error", failErr.Error()),
			)
		}
		d.logger.Error("Job failed",
			slog.String("slot", slotName),
			slog.String("job_id", id),
			slog.String("stage", string(stage)),
			slog.String("error", err.Error()),
		)
		return
	}

	j.Logs.Info("Job completed successfully")
	if compErr := d.store.Complete(id, result); compErr != nil {
		d.logger.Error("Failed to record job completion",
			slog.String("job_id", id),
			slog.String("error", compErr.Error()),
		)
		return
	}
	d.logger.Info("Job completed",
		slog.String("slot", slotName),
		slog.String("job_id", id),
		slog.String("result", result),
	)
}

// runWithRecovery prepares the job workdir and invokes the pipeline,
// converting a panic into a job failure instead of killing the slot.
func (d *Dispatcher) runWithRecovery(ctx context.Context, j *job.Job, workdir string) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()

	if mkErr := os.MkdirAll(workdir, 0o755); mkErr != nil {
		return "", job.NewStageError(job.StageClone, fmt.Errorf("failed to create workdir: %w", mkErr))
	}
	return d.runner.Run(ctx, j)
}
