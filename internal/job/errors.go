package job

import (
	"errors"
	"fmt"
)

// Stage names the pipeline step that produced a log line or failure.
type Stage string

const (
	StageClone        Stage = "clone"
	StageAnalyze      Stage = "analyze"
	StageContainerize Stage = "containerize"
	StageGenerate     Stage = "generate-infra"
	StageProvision    Stage = "provision"
)

var (
	// ErrNotFound is returned when a job id is unknown to the store.
	ErrNotFound = errors.New("job not found")

	// ErrInvalidTransition is returned when a status change would move a
	// job backwards or out of a terminal state.
	ErrInvalidTransition = errors.New("invalid job status transition")

	// ErrNotDeployable marks a repository that is not HTTP-accessible.
	// It is fatal for the job; there is nothing to retry.
	ErrNotDeployable = errors.New("repository is not HTTP-accessible")
)

// StageError is a terminal pipeline failure attributed to one stage.
// Generation failures never surface as a StageError: the fallback
// template absorbs them inside the generate-infra stage.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err as a terminal failure of the given stage.
func NewStageError(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}

// FailedStage extracts the stage name from err, or "" if err does not
// carry one.
func FailedStage(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
