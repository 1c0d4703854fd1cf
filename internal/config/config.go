package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the matchd service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Auth      AuthConfig      `yaml:"auth"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	URL              string `yaml:"url"`
	MaxConns         int    `yaml:"max_conns"`
	ConnTimeoutSec   int    `yaml:"conn_timeout_sec"`
	ReadinessWaitSec int    `yaml:"readiness_wait_sec"`
}

// RedisConfig holds Redis connection settings (quotas and match cache).
type RedisConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	KeyPrefix        string   `yaml:"key_prefix"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// PipelineConfig holds matching and batch run settings.
type PipelineConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	TopJobs             int     `yaml:"top_jobs"`
	TopCandidates       int     `yaml:"top_candidates"`
	PoolPageSize        int     `yaml:"pool_page_size"`
	Concurrency         int     `yaml:"concurrency"`
	SubmissionDelayMS   int     `yaml:"submission_delay_ms"`
	MatchCacheTTLSec    int     `yaml:"match_cache_ttl_sec"`
}

// SchedulerConfig holds batch run scheduling settings.
type SchedulerConfig struct {
	Enabled      bool   `yaml:"enabled"`
	RunSpec      string `yaml:"run_spec"`       // cron expression for the daily run
	ReaperSpec   string `yaml:"reaper_spec"`    // cron expression for the stale-run reaper
	StaleAfterHr int    `yaml:"stale_after_hr"` // in_progress runs older than this are failed
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 10
	}
	if c.Database.ConnTimeoutSec <= 0 {
		c.Database.ConnTimeoutSec = 5
	}
	if c.Database.ReadinessWaitSec <= 0 {
		c.Database.ReadinessWaitSec = 10
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "matchd:"
	}
	if c.Redis.ReadinessTimeout <= 0 {
		c.Redis.ReadinessTimeout = 10
	}
	if c.Pipeline.SimilarityThreshold <= 0 {
		c.Pipeline.SimilarityThreshold = 0.7
	}
	if c.Pipeline.TopJobs <= 0 {
		c.Pipeline.TopJobs = 10
	}
	if c.Pipeline.TopCandidates <= 0 {
		c.Pipeline.TopCandidates = 50
	}
	if c.Pipeline.PoolPageSize <= 0 {
		c.Pipeline.PoolPageSize = 50
	}
	if c.Pipeline.Concurrency <= 0 {
		c.Pipeline.Concurrency = 4
	}
	if c.Pipeline.SubmissionDelayMS < 0 {
		c.Pipeline.SubmissionDelayMS = 0
	} else if c.Pipeline.SubmissionDelayMS == 0 {
		c.Pipeline.SubmissionDelayMS = 100
	}
	if c.Pipeline.MatchCacheTTLSec <= 0 {
		c.Pipeline.MatchCacheTTLSec = 900
	}
	if c.Scheduler.RunSpec == "" {
		c.Scheduler.RunSpec = "0 6 * * *"
	}
	if c.Scheduler.ReaperSpec == "" {
		c.Scheduler.ReaperSpec = "30 * * * *"
	}
	if c.Scheduler.StaleAfterHr <= 0 {
		c.Scheduler.StaleAfterHr = 6
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 64
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if len(c.Redis.Addrs) == 0 {
		return fmt.Errorf("redis.addrs is required")
	}
	if c.Pipeline.SimilarityThreshold > 1 {
		return fmt.Errorf("pipeline.similarity_threshold must be at most 1, got %g", c.Pipeline.SimilarityThreshold)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
