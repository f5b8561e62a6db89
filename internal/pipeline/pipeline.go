package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/flavienbwk/repo-autodeployer/internal/job"
)

// Analysis is what the analyze stage learns about a cloned repository.
type Analysis struct {
	// IsHTTPService reports whether the sources hint at an
	// HTTP-accessible server. False fails the job before containerize.
	IsHTTPService bool
	// InternalPort is the port the application listens on inside its
	// container.
	InternalPort int
	// Tree is the repository file listing fed to the generator prompt.
	Tree []string
}

// GenerateRequest carries the job facts the infrastructure-code
// generator may use.
type GenerateRequest struct {
	JobID       string
	ShortID     string
	Description string
	RepoURL     string
	TarName     string
	Tree        []string
	Port        int
}

// Cloner fetches a repository into a job-private directory.
type Cloner interface {
	Clone(ctx context.Context, repoURL, dest string, logs *job.LogSink) error
}

// Analyzer inspects a cloned repository.
type Analyzer interface {
	Analyze(ctx context.Context, repoDir string, logs *job.LogSink) (Analysis, error)
}

// Containerizer prepares container assets and returns the path of the
// deployable archive.
type Containerizer interface {
	Containerize(ctx context.Context, workdir, repoDir string, analysis Analysis, logs *job.LogSink) (string, error)
}

// InfraGenerator produces the main.tf content for a job. Implementations
// must not fail the pipeline just because external generation was
// unusable; see FallbackGenerator.
type InfraGenerator interface {
	Generate(ctx context.Context, req GenerateRequest, logs *job.LogSink) (string, error)
}

// Provisioner applies the infrastructure code and returns the public
// endpoint of the deployed service.
type Provisioner interface {
	Provision(ctx context.Context, terraformDir string, logs *job.LogSink) (string, error)
}

// RunnerConfig wires the five stages together.
type RunnerConfig struct {
	Logger        *slog.Logger
	Cloner        Cloner
	Analyzer      Analyzer
	Containerizer Containerizer
	Generator     InfraGenerator
	Provisioner   Provisioner
	// StageTimeout bounds each subprocess-backed stage (clone,
	// containerize, provision). Zero disables the ceiling.
	StageTimeout time.Duration
}

// Runner executes the deployment pipeline for one job: clone, analyze,
// containerize, generate-infra, provision. Stages run strictly in that
// order and the first failure stops the job; nothing is provisioned
// after an earlier stage failed.
type Runner struct {
	logger        *slog.Logger
	cloner        Cloner
	analyzer      Analyzer
	containerizer Containerizer
	generator     InfraGenerator
	provisioner   Provisioner
	stageTimeout  time.Duration
}

// NewRunner creates a pipeline runner.
func NewRunner(cfg *RunnerConfig) *Runner {
	return &Runner{
		logger:        cfg.Logger,
		cloner:        cfg.Cloner,
		analyzer:      cfg.Analyzer,
		containerizer: cfg.Containerizer,
		generator:     cfg.Generator,
		provisioner:   cfg.Provisioner,
		stageTimeout:  cfg.StageTimeout,
	}
}

// Run drives the job through every stage and returns the deployed
// endpoint. Errors always carry the stage that failed.
func (r *Runner) Run(ctx context.Context, j *job.Job) (string, error) {
	repoDir := filepath.Join(j.Workdir, "repo")

	err := r.stage(ctx, j, job.StageClone, true, func(sctx context.Context) error {
		j.Logs.Infof("Cloning repository: %s", j.RepoURL)
		return r.cloner.Clone(sctx, j.RepoURL, repoDir, j.Logs)
	})
	if err != nil {
		return "", err
	}

	var analysis Analysis
	err = r.stage(ctx, j, job.StageAnalyze, false, func(sctx context.Context) error {
		var aerr error
		analysis, aerr = r.analyzer.Analyze(sctx, repoDir, j.Logs)
		return aerr
	})
	if err != nil {
		return "", err
	}

	// Gate: a repository without an HTTP server has nothing to expose.
	if !analysis.IsHTTPService {
		return "", job.NewStageError(job.StageAnalyze,
			fmt.Errorf("denied: %w, nothing to deploy", job.ErrNotDeployable))
	}

	var archivePath string
	err = r.stage(ctx, j, job.StageContainerize, true, func(sctx context.Context) error {
		var cerr error
		archivePath, cerr = r.containerizer.Containerize(sctx, j.Workdir, repoDir, analysis, j.Logs)
		return cerr
	})
	if err != nil {
		return "", err
	}

	terraformDir := filepath.Join(j.Workdir, "terraform")
	err = r.stage(ctx, j, job.StageGenerate, false, func(sctx context.Context) error {
		req := GenerateRequest{
			JobID:       j.ID,
			ShortID:     j.ShortID(),
			Description: j.Description,
			RepoURL:     j.RepoURL,
			TarName:     filepath.Base(archivePath),
			Tree:        analysis.Tree,
			Port:        analysis.InternalPort,
		}
		mainTF, gerr := r.generator.Generate(sctx, req, j.Logs)
		if gerr != nil {
			return gerr
		}
		return writeTerraformDir(terraformDir, mainTF, archivePath)
	})
	if err != nil {
		return "", err
	}

	var endpoint string
	err = r.stage(ctx, j, job.StageProvision, true, func(sctx context.Context) error {
		var perr error
		endpoint, perr = r.provisioner.Provision(sctx, terraformDir, j.Logs)
		return perr
	})
	if err != nil {
		return "", err
	}

	return endpoint, nil
}

// stage runs one step with an optional timeout, converting panics and
// unclassified errors into that stage's error kind so nothing escapes
// the slot loop untyped.
func (r *Runner) stage(ctx context.Context, j *job.Job, stage job.Stage, bounded bool, fn func(context.Context) error) error {
	sctx := ctx
	if bounded && r.stageTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, r.stageTimeout)
		defer cancel()
	}

	r.logger.Debug("Running pipeline stage",
		slog.String("job_id", j.ID),
		slog.String("stage", string(stage)),
	)

	err := runProtected(sctx, fn)
	if err == nil {
		return nil
	}
	var se *job.StageError
	if errors.As(err, &se) {
		return err
	}
	return job.NewStageError(stage, err)
}

func runProtected(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn(ctx)
}

// writeTerraformDir lays out the provisioning directory: the accepted
// (or fallback) main.tf plus the archive the file provisioner uploads.
func writeTerraformDir(terraformDir, mainTF, archivePath string) error {
	if err := os.MkdirAll(terraformDir, 0o755); err != nil {
		return fmt.Errorf("failed to create terraform dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(terraformDir, "main.tf"), []byte(mainTF), 0o644); err != nil {
		return fmt.Errorf("failed to write main.tf: %w", err)
	}
	if err := copyFile(archivePath, filepath.Join(terraformDir, filepath.Base(archivePath))); err != nil {
		return fmt.Errorf("failed to stage archive for provisioning: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
