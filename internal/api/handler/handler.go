package handler

import (
	"log/slog"

	"github.com/flavienbwk/repo-autodeployer/internal/dispatch"
	"github.com/flavienbwk/repo-autodeployer/internal/job"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger     *slog.Logger
	Store      *job.Store
	Dispatcher *dispatch.Dispatcher
}

// DeployHandler handles deployment-related HTTP requests
type DeployHandler struct {
	logger     *slog.Logger
	store      *job.Store
	dispatcher *dispatch.Dispatcher
}

// NewDeployHandler creates a new DeployHandler instance
func NewDeployHandler(deps *Dependencies) *DeployHandler {
	return &DeployHandler{
		logger:     deps.Logger,
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
	}
}
