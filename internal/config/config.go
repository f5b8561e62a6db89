package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// DefaultConcurrency is the dispatcher pool size used when the
	// configured value is missing or non-positive.
	DefaultConcurrency = 2

	// DefaultStageTimeout bounds each external-process stage (clone,
	// containerize, provision). Zero disables the ceiling.
	DefaultStageTimeout = 30 * time.Minute

	// DefaultGeneratorTimeout bounds the single infrastructure-code
	// generation attempt.
	DefaultGeneratorTimeout = 120 * time.Second
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Worker    WorkerConfig    `yaml:"worker"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Generator GeneratorConfig `yaml:"generator"`
	Logging   LoggingConfig   `yaml:"logging"`
	App       AppConfig       `yaml:"app"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// WorkerConfig holds dispatcher pool configuration
type WorkerConfig struct {
	// Concurrency is W, the number of execution slots. Non-positive
	// values are clamped to DefaultConcurrency so the pool can never
	// start with zero slots.
	Concurrency int `yaml:"concurrency"`
	// DataDir is the root under which each job gets a private workdir.
	DataDir string `yaml:"data_dir"`
}

// PipelineConfig holds per-stage execution settings
type PipelineConfig struct {
	// StageTimeout is the ceiling for each subprocess-backed stage.
	// Zero disables it; a hung external binary then stalls its slot.
	StageTimeout time.Duration `yaml:"stage_timeout"`
	// Apply runs `terraform apply` when true. The default (false) stops
	// after `terraform plan`, which keeps test deployments free.
	Apply bool `yaml:"apply"`
	// MaxTreeDepth limits the repository tree listing fed to analysis.
	MaxTreeDepth int `yaml:"max_tree_depth"`
}

// GeneratorConfig holds external code-generation settings
type GeneratorConfig struct {
	Model        string        `yaml:"model"`
	APIKey       string        `yaml:"api_key"`
	Timeout      time.Duration `yaml:"timeout"`
	Region       string        `yaml:"region"`
	InstanceType string        `yaml:"instance_type"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// Load reads the configuration file, applies environment overrides and
// fills defaults for absent values.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnvOverrides()
	config.applyDefaults()

	return &config, nil
}

// applyEnvOverrides lets the environment win over the file for the
// handful of settings operators usually pass at deploy time.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Generator.APIKey = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		c.Generator.Model = v
	}
	if v := os.Getenv("MAX_CONCURRENT_JOBS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Worker.Concurrency = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DRY_TERRAFORM_DEPLOYS"); v != "" {
		if dry, err := strconv.ParseBool(v); err == nil {
			c.Pipeline.Apply = !dry
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Worker.Concurrency <= 0 {
		c.Worker.Concurrency = DefaultConcurrency
	}
	if c.Worker.DataDir == "" {
		c.Worker.DataDir = "/data/autodeploy"
	}
	if c.Pipeline.StageTimeout == 0 {
		c.Pipeline.StageTimeout = DefaultStageTimeout
	}
	if c.Pipeline.MaxTreeDepth <= 0 {
		c.Pipeline.MaxTreeDepth = 4
	}
	if c.Generator.Model == "" {
		c.Generator.Model = "gpt-4o-mini"
	}
	if c.Generator.Timeout <= 0 {
		c.Generator.Timeout = DefaultGeneratorTimeout
	}
	if c.Generator.Region == "" {
		c.Generator.Region = "ca-central-1"
	}
	if c.Generator.InstanceType == "" {
		c.Generator.InstanceType = "t2.small"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.Worker.DataDir == "" {
		return fmt.Errorf("worker data_dir is required")
	}

	if c.Pipeline.StageTimeout < 0 {
		return fmt.Errorf("pipeline stage_timeout must not be negative")
	}

	if c.Generator.Timeout <= 0 {
		return fmt.Errorf("generator timeout must be greater than 0")
	}

	if c.Generator.InstanceType == "" {
		return fmt.Errorf("generator instance_type is required")
	}

	return nil
}
