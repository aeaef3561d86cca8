// Package config loads supervisor configuration from a YAML file overlaid
// with environment variables and a .env file, following the teacher's
// CLI-flag > env-var > config-file > default priority chain.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backend selects the storage technology behind the State Store and Task
// Queue namespaces (spec.md §6).
type Backend string

const (
	BackendRedis Backend = "redis"
	BackendSQL   Backend = "sql"
)

// Config is the resolved supervisor configuration.
type Config struct {
	Backend Backend `yaml:"backend"`

	Redis RedisConfig `yaml:"redis"`
	SQL   SQLConfig   `yaml:"sql"`

	StateKey string `yaml:"state_key"`
	QueueKey string `yaml:"queue_key"`

	SandboxRoot string `yaml:"sandbox_root"`

	PollInterval time.Duration `yaml:"poll_interval"`

	DefaultRetryMax          int `yaml:"default_retry_max"`
	RepeatedFailureThreshold int `yaml:"repeated_failure_threshold"`

	// SessionErrorCap is the consecutive-dispatch-error threshold that
	// forces session rotation (spec.md §4.4 rotation policy, default 5).
	SessionErrorCap int `yaml:"session_error_cap"`

	HelperAgentModel string `yaml:"helper_agent_model"`

	// RuleCatalogFile points at an operator-supplied YAML rule catalog for
	// the deterministic validation strategy; empty means no catalog.
	RuleCatalogFile string `yaml:"rule_catalog_file"`

	ProviderContextLimits map[string]int64  `yaml:"provider_context_limits"`
	ProviderPriority      []string          `yaml:"provider_priority"`
	ProviderClass         map[string]string `yaml:"provider_class"`

	// Providers lists the opaque agent executables the dispatcher may
	// invoke, in priority order (spec.md §6 "Agent Provider Contract").
	Providers []ProviderConfig `yaml:"providers"`

	GoalCompletionCheckEnabled bool `yaml:"goal_completion_check_enabled"`

	Logging LoggingConfig `yaml:"logging"`

	Observability ObservabilityConfig `yaml:"observability"`
}

// RedisConfig holds connection parameters for the Redis-backed store.
type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	DB   int    `yaml:"db"`
}

// SQLConfig holds connection parameters for the SQL-backed store.
type SQLConfig struct {
	Dialect string `yaml:"dialect"` // postgres, mysql, sqlite
	DSN     string `yaml:"dsn"`
}

// LoggingConfig configures the ambient slog-based logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	File   string `yaml:"file"`
	Format string `yaml:"format"`
}

// ProviderConfig names one opaque agent executable the dispatcher may
// invoke. Concrete provider wrappers (spec.md Non-goals) are out of core
// scope; this is only the invocation shape a provider binary must honor.
type ProviderConfig struct {
	Name        string `yaml:"name"`
	Executable  string `yaml:"executable"`
	BaseArgs    []string `yaml:"base_args"`
	SessionFlag string `yaml:"session_flag"`
	ModeFlag    string `yaml:"mode_flag"`
}

// ObservabilityConfig configures tracing/metrics.
type ObservabilityConfig struct {
	TracingEnabled bool   `yaml:"tracing_enabled"`
	ServiceName    string `yaml:"service_name"`
	MetricsAddr    string `yaml:"metrics_addr"`
}

// Default returns the built-in defaults, matching spec.md §6's "Environment
// Variables (primary)" list.
func Default() *Config {
	return &Config{
		Backend:                    BackendRedis,
		Redis:                      RedisConfig{Host: "localhost", Port: 6379, DB: 0},
		SQL:                        SQLConfig{Dialect: "sqlite", DSN: "supervisor.db"},
		StateKey:                   "supervisor:state",
		QueueKey:                   "queue:tasks",
		SandboxRoot:                "./sandbox",
		PollInterval:               5 * time.Second,
		DefaultRetryMax:            3,
		RepeatedFailureThreshold:   2,
		SessionErrorCap:            5,
		HelperAgentModel:           "",
		ProviderContextLimits:      map[string]int64{"large": 350_000, "medium": 250_000, "small": 8_000},
		ProviderPriority:           []string{},
		ProviderClass:              map[string]string{},
		GoalCompletionCheckEnabled: true,
		Logging:                    LoggingConfig{Level: "info", Format: "simple"},
		Observability:              ObservabilityConfig{ServiceName: "agent-supervisor"},
	}
}

// Load reads a YAML config file (if path is non-empty and exists), loads a
// .env file from the working directory (if present), expands environment
// variable references embedded in string fields read from YAML, then
// overlays well-known environment variables on top of defaults/file
// values.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // optional; absence is not an error

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file %q: %w", path, err)
			}
		} else {
			expanded := ExpandEnvVars(string(data))
			if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %q: %w", path, err)
			}
		}
	}

	applyEnvOverlay(cfg)
	return cfg, nil
}

func applyEnvOverlay(cfg *Config) {
	if v := os.Getenv("SUPERVISOR_BACKEND"); v != "" {
		cfg.Backend = Backend(v)
	}
	if v := os.Getenv("SUPERVISOR_REDIS_HOST"); v != "" {
		cfg.Redis.Host = v
	}
	if v := os.Getenv("SUPERVISOR_REDIS_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Redis.Port = p
		}
	}
	if v := os.Getenv("SUPERVISOR_REDIS_DB"); v != "" {
		if d, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = d
		}
	}
	if v := os.Getenv("SUPERVISOR_SQL_DSN"); v != "" {
		cfg.SQL.DSN = v
	}
	if v := os.Getenv("SUPERVISOR_SQL_DIALECT"); v != "" {
		cfg.SQL.Dialect = v
	}
	if v := os.Getenv("SUPERVISOR_STATE_KEY"); v != "" {
		cfg.StateKey = v
	}
	if v := os.Getenv("SUPERVISOR_QUEUE_KEY"); v != "" {
		cfg.QueueKey = v
	}
	if v := os.Getenv("SUPERVISOR_SANDBOX_ROOT"); v != "" {
		cfg.SandboxRoot = v
	}
	if v := os.Getenv("SUPERVISOR_POLL_INTERVAL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.PollInterval = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("SUPERVISOR_RULE_CATALOG"); v != "" {
		cfg.RuleCatalogFile = v
	}
	if v := os.Getenv("SUPERVISOR_HELPER_AGENT_MODEL"); v != "" {
		cfg.HelperAgentModel = v
	}
	if v := os.Getenv("SUPERVISOR_DEFAULT_RETRY_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DefaultRetryMax = n
		}
	}
	if v := os.Getenv("IS_ENABLED_GOAL_COMPLETION_CHECK"); v != "" {
		cfg.GoalCompletionCheckEnabled = v == "1" || v == "true"
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
