package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flavienbwk/repo-autodeployer/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "repo-autodeployer",
		})
	})

	deployHandler := handler.NewDeployHandler(deps)

	// POST /request - submit a deployment request
	r.POST("/request", deployHandler.RequestDeploy)

	// GET /list - list all jobs without logs
	r.GET("/list", deployHandler.ListJobs)

	// GET /job/:job_id - full job record including logs
	r.GET("/job/:job_id", deployHandler.GetJob)

	return r
}
