// Package config provides configuration management for kaname.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/kaname/kaname/internal/common/constants"
)

// DefaultAgentProgram is the conventional ACP agent executable.
const DefaultAgentProgram = "claude-agent-acp"

// Config holds all configuration sections for kaname.
type Config struct {
	Agent   AgentConfig   `mapstructure:"agent"`
	Logging LoggingConfig `mapstructure:"logging"`
	Events  EventsConfig  `mapstructure:"events"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// AgentConfig describes how to launch and talk to the ACP agent subprocess.
type AgentConfig struct {
	Program              string   `mapstructure:"program"`
	Args                 []string `mapstructure:"args"`
	WorkDir              string   `mapstructure:"workDir"`
	QueueCapacity        int      `mapstructure:"queueCapacity"`
	ShutdownGraceSeconds int      `mapstructure:"shutdownGraceSeconds"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// EventsConfig holds event bus configuration. An empty NATSURL selects the
// in-memory bus.
type EventsConfig struct {
	NATSURL       string `mapstructure:"natsUrl"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// TracingConfig holds OpenTelemetry configuration. Tracing is disabled when
// Endpoint is empty.
type TracingConfig struct {
	Endpoint string `mapstructure:"endpoint"`
}

// ShutdownGrace returns the agent shutdown grace period as a time.Duration.
func (a *AgentConfig) ShutdownGrace() time.Duration {
	return time.Duration(a.ShutdownGraceSeconds) * time.Second
}

// detectDefaultLogFormat returns "json" in production and "text" otherwise.
func detectDefaultLogFormat() string {
	if env := os.Getenv("KANAME_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("agent.program", DefaultAgentProgram)
	v.SetDefault("agent.args", []string{})
	v.SetDefault("agent.workDir", "")
	v.SetDefault("agent.queueCapacity", constants.DefaultQueueCapacity)
	v.SetDefault("agent.shutdownGraceSeconds", int(constants.DefaultShutdownGrace/time.Second))

	// Logs go to stderr by default; stdout may be a pipe owned by a parent process.
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stderr")

	v.SetDefault("events.natsUrl", "")
	v.SetDefault("events.clientId", "kaname")
	v.SetDefault("events.maxReconnects", 10)

	v.SetDefault("tracing.endpoint", "")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix KANAME_ with snake_case naming.
// The config file is named config.yaml and is looked up in the current
// directory, ~/.kaname and /etc/kaname.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("KANAME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv does not map camelCase keys to SNAKE_CASE env vars.
	_ = v.BindEnv("agent.workDir", "KANAME_AGENT_WORK_DIR")
	_ = v.BindEnv("agent.queueCapacity", "KANAME_AGENT_QUEUE_CAPACITY")
	_ = v.BindEnv("agent.shutdownGraceSeconds", "KANAME_AGENT_SHUTDOWN_GRACE_SECONDS")
	_ = v.BindEnv("logging.outputPath", "KANAME_LOGGING_OUTPUT_PATH")
	_ = v.BindEnv("events.natsUrl", "KANAME_EVENTS_NATS_URL")
	_ = v.BindEnv("tracing.endpoint", "KANAME_TRACING_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".kaname"))
	}
	v.AddConfigPath("/etc/kaname/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	if strings.TrimSpace(cfg.Agent.Program) == "" {
		errs = append(errs, "agent.program is required")
	}
	if cfg.Agent.QueueCapacity < 1 {
		errs = append(errs, "agent.queueCapacity must be at least 1")
	}
	if cfg.Agent.ShutdownGraceSeconds < 0 {
		errs = append(errs, "agent.shutdownGraceSeconds must not be negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text, console")
	}

	if cfg.Events.MaxReconnects < -1 {
		errs = append(errs, "events.maxReconnects must be -1 (unlimited) or greater")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
