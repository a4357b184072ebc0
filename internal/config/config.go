// Package config loads process configuration from an optional YAML file and
// CHEQUEFLOW_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Journal   JournalConfig   `mapstructure:"journal"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
	Scenario  ScenarioConfig  `mapstructure:"scenario"`
	Process   ProcessConfig   `mapstructure:"process"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// LogConfig selects level and handler format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// HTTPConfig holds the API listener settings.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// MetricsConfig toggles the Prometheus collectors and /metrics.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// RedisConfig enables the Redis journal and session locker when Addr is set.
type RedisConfig struct {
	Addr       string        `mapstructure:"addr"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	Prefix     string        `mapstructure:"prefix"`
	JournalTTL time.Duration `mapstructure:"journal_ttl"`
}

// JournalConfig protects journal entries at rest. Payload keys matching a
// PII pattern are masked; an encryption key seals payloads and details.
type JournalConfig struct {
	PIIPatterns   []string `mapstructure:"pii_patterns"`
	EncryptionKey string   `mapstructure:"encryption_key"`
	FallbackKeys  []string `mapstructure:"fallback_keys"`
}

// WorkflowConfig tunes the engine.
type WorkflowConfig struct {
	RollbackMaxAttempts int           `mapstructure:"rollback_max_attempts"`
	TransportTimeout    time.Duration `mapstructure:"transport_timeout"`
}

// ScenarioConfig points at the scripted transport fixture.
type ScenarioConfig struct {
	Path string `mapstructure:"path"`
}

// ProcessConfig selects the process transport when Commands is set.
// It cannot be combined with a scenario.
type ProcessConfig struct {
	Commands string `mapstructure:"commands"`
	Dir      string `mapstructure:"dir"`
}

// TelemetryConfig enables OTLP trace export when Endpoint is set.
type TelemetryConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

// Load reads configuration from file and env. Env var overrides use prefix
// CHEQUEFLOW_ (e.g. CHEQUEFLOW_REDIS_ADDR). An explicit path must exist;
// otherwise ./chequeflow.yaml and ~/.config/chequeflow/config.yaml are optional.
func Load(path string) (Config, error) {
	v := viper.New()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "chequeflow")
	v.SetDefault("redis.journal_ttl", 24*time.Hour)
	v.SetDefault("journal.pii_patterns", []string{"account_number", "serial_number"})
	v.SetDefault("journal.encryption_key", "")
	v.SetDefault("journal.fallback_keys", []string{})
	v.SetDefault("workflow.rollback_max_attempts", 3)
	v.SetDefault("workflow.transport_timeout", 15*time.Second)
	v.SetDefault("scenario.path", "")
	v.SetDefault("process.commands", "")
	v.SetDefault("process.dir", "")
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.service_name", "chequeflow")

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("chequeflow")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "chequeflow"))
		}
	}

	v.SetEnvPrefix("CHEQUEFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.Workflow.RollbackMaxAttempts < 0 {
		return Config{}, fmt.Errorf("workflow.rollback_max_attempts must be >= 0, got %d", c.Workflow.RollbackMaxAttempts)
	}
	if c.Process.Commands != "" && c.Scenario.Path != "" {
		return Config{}, errors.New("scenario.path and process.commands are mutually exclusive")
	}
	return c, nil
}
