package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/flavienbwk/repo-autodeployer/internal/api/dto"
	"github.com/flavienbwk/repo-autodeployer/internal/dispatch"
	"github.com/flavienbwk/repo-autodeployer/internal/job"
)

// RequestDeploy handles POST /request
// Accepts a deployment request and enqueues a job for it.
func (h *DeployHandler) RequestDeploy(c *gin.Context) {
	var req dto.DeployRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "description and repo_url are required; repo_url must be a valid URL",
		})
		return
	}

	parsed, err := url.Parse(req.RepoURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "repo_url must use http or https",
		})
		return
	}

	j, err := h.dispatcher.Submit(req.Description, req.RepoURL)
	if err != nil {
		if errors.Is(err, dispatch.ErrShuttingDown) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "service is shutting down",
			})
			return
		}
		h.logger.Error("Failed to submit job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to submit job",
		})
		return
	}

	h.logger.Info("Deployment requested",
		slog.String("job_id", j.ID),
		slog.String("repo_url", req.RepoURL),
	)

	c.JSON(http.StatusOK, dto.DeployResponse{
		JobID:  j.ID,
		Status: string(job.StatusQueued),
	})
}

// ListJobs handles GET /list
// Returns every submitted job in submission order, logs elided.
func (h *DeployHandler) ListJobs(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.List())
}

// GetJob handles GET /job/:job_id
// Returns the full record of one job, including its log lines.
func (h *DeployHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	snap, err := h.store.Get(jobID)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		h.logger.Error("Failed to get job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	c.JSON(http.StatusOK, snap)
}
