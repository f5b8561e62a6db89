package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/flavienbwk/repo-autodeployer/internal/api/handler"
	"github.com/flavienbwk/repo-autodeployer/internal/api/router"
	"github.com/flavienbwk/repo-autodeployer/internal/config"
	"github.com/flavienbwk/repo-autodeployer/internal/dispatch"
	"github.com/flavienbwk/repo-autodeployer/internal/job"
	"github.com/flavienbwk/repo-autodeployer/internal/llm"
	"github.com/flavienbwk/repo-autodeployer/internal/pipeline"
	"github.com/flavienbwk/repo-autodeployer/shared/logger"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("AUTODEPLOYER_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger := initLogger(&cfg.Logging)

	appLogger.Info("Starting autodeployer",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize generation backend; without an API key the pipeline
	// falls back to the built-in Terraform template.
	var terraformClient pipeline.TerraformClient
	if cfg.Generator.APIKey != "" {
		client, err := llm.NewClient(&llm.Config{
			APIKey:  cfg.Generator.APIKey,
			Model:   cfg.Generator.Model,
			Timeout: cfg.Generator.Timeout,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize generation backend: %w", err)
		}
		terraformClient = client
		appLogger.Info("Generation backend configured", slog.String("model", cfg.Generator.Model))
	} else {
		appLogger.Warn("No OPENAI_API_KEY set; infrastructure code will come from the built-in template")
	}

	// Assemble the pipeline
	runner := pipeline.NewRunner(&pipeline.RunnerConfig{
		Logger:        appLogger.Logger,
		Cloner:        pipeline.GitCloner{},
		Analyzer:      pipeline.RepoAnalyzer{MaxDepth: cfg.Pipeline.MaxTreeDepth},
		Containerizer: pipeline.DockerContainerizer{},
		Generator: &pipeline.FallbackGenerator{
			Client:       terraformClient,
			Logger:       appLogger.Logger,
			Timeout:      cfg.Generator.Timeout,
			Region:       cfg.Generator.Region,
			InstanceType: cfg.Generator.InstanceType,
		},
		Provisioner:  pipeline.TerraformProvisioner{Apply: cfg.Pipeline.Apply},
		StageTimeout: cfg.Pipeline.StageTimeout,
	})

	// Initialize store and dispatcher
	store := job.NewStore()
	dispatcher := dispatch.NewDispatcher(&dispatch.Config{
		Logger:      appLogger.Logger,
		Store:       store,
		Runner:      runner,
		Concurrency: cfg.Worker.Concurrency,
		DataDir:     cfg.Worker.DataDir,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher.Start(ctx)

	if !cfg.Pipeline.Apply {
		appLogger.Info("Terraform apply disabled; jobs stop after plan")
	}

	// Initialize router
	r := initRouter(cfg.App.Environment, appLogger.Logger, store, dispatcher)

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Int("concurrency", dispatcher.Concurrency()),
	)

	// Start server in goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed to start",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	}()

	appLogger.Info("Autodeployer is running",
		slog.String("address", addr),
	)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
	}

	// Stop accepting jobs and let slots drain the backlog.
	stopped := make(chan struct{})
	go func() {
		dispatcher.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		appLogger.Info("Dispatcher drained")
	case <-time.After(cfg.Server.ShutdownTimeout):
		appLogger.Warn("Dispatcher did not drain in time, abandoning running jobs")
		cancel()
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) *logger.Logger {
	return logger.New(&logger.Config{
		Level:      cfg.Level,
		Format:     cfg.Format,
		Output:     cfg.Output,
		TimeFormat: time.RFC3339,
	})
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(environment string, logger *slog.Logger, store *job.Store, dispatcher *dispatch.Dispatcher) *gin.Engine {
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(&handler.Dependencies{
		Logger:     logger,
		Store:      store,
		Dispatcher: dispatcher,
	})
}
