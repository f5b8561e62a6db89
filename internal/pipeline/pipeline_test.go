package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flavienbwk/repo-autodeployer/internal/job"
)

type stageRecorder struct {
	calls []string
}

type fakeCloner struct {
	rec *stageRecorder
	err error
}

func (f *fakeCloner) Clone(ctx context.Context, repoURL, dest string, logs *job.LogSink) error {
	f.rec.calls = append(f.rec.calls, "clone")
	if f.err != nil {
		return f.err
	}
	return os.MkdirAll(dest, 0o755)
}

type fakeAnalyzer struct {
	rec      *stageRecorder
	analysis Analysis
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, repoDir string, logs *job.LogSink) (Analysis, error) {
	f.rec.calls = append(f.rec.calls, "analyze")
	return f.analysis, nil
}

type fakeContainerizer struct {
	rec *stageRecorder
}

func (f *fakeContainerizer) Containerize(ctx context.Context, workdir, repoDir string, analysis Analysis, logs *job.LogSink) (string, error) {
	f.rec.calls = append(f.rec.calls, "containerize")
	tarPath := filepath.Join(workdir, "app.tar.gz")
	return tarPath, os.WriteFile(tarPath, []byte("tar"), 0o644)
}

type fakeGenerator struct {
	rec *stageRecorder
}

func (f *fakeGenerator) Generate(ctx context.Context, req GenerateRequest, logs *job.LogSink) (string, error) {
	f.rec.calls = append(f.rec.calls, "generate-infra")
	return `resource "aws_instance" "app" {}`, nil
}

type fakeProvisioner struct {
	rec *stageRecorder
}

func (f *fakeProvisioner) Provision(ctx context.Context, terraformDir string, logs *job.LogSink) (string, error) {
	f.rec.calls = append(f.rec.calls, "provision")
	return "http://1.2.3.4:8080", nil
}

func newTestRunner(rec *stageRecorder, cloner Cloner, analysis Analysis) *Runner {
	return NewRunner(&RunnerConfig{
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		Cloner:        cloner,
		Analyzer:      &fakeAnalyzer{rec: rec, analysis: analysis},
		Containerizer: &fakeContainerizer{rec: rec},
		Generator:     &fakeGenerator{rec: rec},
		Provisioner:   &fakeProvisioner{rec: rec},
	})
}

func newRunJob(t *testing.T) *job.Job {
	t.Helper()
	j := job.New("deploy", "https://github.com/x/y")
	j.Workdir = t.TempDir()
	return j
}

func TestRun_StagesExecuteInOrder(t *testing.T) {
	rec := &stageRecorder{}
	r := newTestRunner(rec, &fakeCloner{rec: rec}, Analysis{IsHTTPService: true, InternalPort: 5000})
	j := newRunJob(t)

	endpoint, err := r.Run(context.Background(), j)
	require.NoError(t, err)

	assert.Equal(t, "http://1.2.3.4:8080", endpoint)
	assert.Equal(t, []string{"clone", "analyze", "containerize", "generate-infra", "provision"}, rec.calls)

	// The provisioning directory holds main.tf plus the staged archive.
	tfDir := filepath.Join(j.Workdir, "terraform")
	_, err = os.Stat(filepath.Join(tfDir, "main.tf"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(tfDir, "app.tar.gz"))
	assert.NoError(t, err)
}

func TestRun_NonHTTPRepoFailsAtAnalyze(t *testing.T) {
	rec := &stageRecorder{}
	r := newTestRunner(rec, &fakeCloner{rec: rec}, Analysis{IsHTTPService: false})
	j := newRunJob(t)

	_, err := r.Run(context.Background(), j)
	require.Error(t, err)

	assert.ErrorIs(t, err, job.ErrNotDeployable)
	assert.Equal(t, job.StageAnalyze, job.FailedStage(err))
	assert.Contains(t, err.Error(), "not HTTP-accessible")
	assert.Equal(t, []string{"clone", "analyze"}, rec.calls)
}

func TestRun_CloneFailureStopsPipeline(t *testing.T) {
	rec := &stageRecorder{}
	r := newTestRunner(rec, &fakeCloner{rec: rec, err: errors.New("repository unreachable or invalid")}, Analysis{})
	j := newRunJob(t)

	_, err := r.Run(context.Background(), j)
	require.Error(t, err)

	assert.Equal(t, job.StageClone, job.FailedStage(err))
	assert.Equal(t, []string{"clone"}, rec.calls)
}

func TestRun_StagePanicBecomesStageError(t *testing.T) {
	rec := &stageRecorder{}
	panicCloner := clonerFunc(func(ctx context.Context, repoURL, dest string, logs *job.LogSink) error {
		panic("exploded")
	})
	r := newTestRunner(rec, panicCloner, Analysis{})
	j := newRunJob(t)

	_, err := r.Run(context.Background(), j)
	require.Error(t, err)
	assert.Equal(t, job.StageClone, job.FailedStage(err))
	assert.Contains(t, err.Error(), "panic")
}

type clonerFunc func(ctx context.Context, repoURL, dest string, logs *job.LogSink) error

func (f clonerFunc) Clone(ctx context.Context, repoURL, dest string, logs *job.LogSink) error {
	return f(ctx, repoURL, dest, logs)
}
