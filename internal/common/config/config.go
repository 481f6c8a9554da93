// Package config provides configuration management for the pibuild gateway.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for the gateway.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Session SessionConfig `mapstructure:"session"`
	NATS    NATSConfig    `mapstructure:"nats"`
	Teams   TeamsConfig   `mapstructure:"teams"`
	MCP     MCPConfig     `mapstructure:"mcp"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds the HTTP/WebSocket listener configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// AuthToken, when non-empty, requires a matching bearer token on every
	// request. Localhost peers bypass the check unless TrustLocalhost is false.
	AuthToken      string `mapstructure:"authToken"`
	TrustLocalhost bool   `mapstructure:"trustLocalhost"`

	// WorkDir is the working directory for agent tasks and git diffs.
	// Empty means the process's current directory.
	WorkDir string `mapstructure:"workDir"`
}

// SessionConfig holds the conversational session configuration.
type SessionConfig struct {
	// DB is ":memory:" (no persistence), a SQLite file path, or a
	// postgres:// DSN.
	DB              string   `mapstructure:"db"`
	PreferredAgents []string `mapstructure:"preferredAgents"`
	SystemPrompt    string   `mapstructure:"systemPrompt"`
	TimeoutMs       int      `mapstructure:"timeoutMs"`
	Mode            string   `mapstructure:"mode"` // execute or plan
}

// NATSConfig holds NATS messaging configuration.
// An empty URL selects the in-memory event bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// TeamsConfig holds the teams filesystem protocol configuration.
type TeamsConfig struct {
	// BaseDir is the protocol root. Empty means ~/.claude.
	BaseDir string `mapstructure:"baseDir"`
}

// MCPConfig holds the embedded MCP server configuration.
type MCPConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// Addr returns the host:port listen address.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Timeout returns the per-task timeout as a time.Duration.
func (s *SessionConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// detectDefaultLogFormat returns "json" under an explicit production
// environment and "text" for terminal/development use.
func detectDefaultLogFormat() string {
	if env := os.Getenv("PIBUILD_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults: local-first, loopback only
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 18900)
	v.SetDefault("server.authToken", "")
	v.SetDefault("server.trustLocalhost", true)
	v.SetDefault("server.workDir", "")

	// Session defaults
	v.SetDefault("session.db", ":memory:")
	v.SetDefault("session.preferredAgents", []string{})
	v.SetDefault("session.systemPrompt", "")
	v.SetDefault("session.timeoutMs", 120000)
	v.SetDefault("session.mode", "execute")

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "pibuild")
	v.SetDefault("nats.maxReconnects", 10)

	// Teams defaults - empty base dir means ~/.claude
	v.SetDefault("teams.baseDir", "")

	// MCP defaults
	v.SetDefault("mcp.enabled", false)
	v.SetDefault("mcp.port", 18901)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.output", "stderr")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix PIBUILD_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory
// or /etc/pibuild/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults first
	setDefaults(v)

	// Configure environment variables
	v.SetEnvPrefix("PIBUILD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit bindings for snake_case env vars (camelCase config keys).
	// AutomaticEnv does not handle camelCase to SNAKE_CASE conversion,
	// so we explicitly bind keys where env var naming differs from config key naming.
	_ = v.BindEnv("server.authToken", "PIBUILD_SERVER_AUTH_TOKEN")
	_ = v.BindEnv("server.trustLocalhost", "PIBUILD_SERVER_TRUST_LOCALHOST")
	_ = v.BindEnv("server.workDir", "PIBUILD_SERVER_WORK_DIR")
	_ = v.BindEnv("session.preferredAgents", "PIBUILD_SESSION_PREFERRED_AGENTS")
	_ = v.BindEnv("session.systemPrompt", "PIBUILD_SESSION_SYSTEM_PROMPT")
	_ = v.BindEnv("session.timeoutMs", "PIBUILD_SESSION_TIMEOUT_MS")
	_ = v.BindEnv("teams.baseDir", "PIBUILD_TEAMS_BASE_DIR")

	// Configure config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/pibuild/")

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

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if cfg.Session.TimeoutMs <= 0 {
		errs = append(errs, "session.timeoutMs must be positive")
	}
	switch strings.ToLower(cfg.Session.Mode) {
	case "execute", "plan":
	default:
		errs = append(errs, "session.mode must be one of: execute, plan")
	}

	if cfg.MCP.Enabled && (cfg.MCP.Port <= 0 || cfg.MCP.Port > 65535) {
		errs = append(errs, "mcp.port must be between 1 and 65535")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
