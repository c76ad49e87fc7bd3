// Package config loads the coach service configuration. Values come from
// built-in defaults, then an optional YAML file, then the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything main needs to wire the service.
type Config struct {
	StateTable  string       `yaml:"state_table"`
	LedgerDSN   string       `yaml:"ledger_dsn"`
	ParamPrefix string       `yaml:"param_prefix"`
	LogLevel    string       `yaml:"log_level"`
	Gemini      GeminiConfig `yaml:"gemini"`
	Coach       CoachConfig  `yaml:"coach"`
}

// GeminiConfig configures the completion backend.
type GeminiConfig struct {
	Model          string `yaml:"model"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxAttempts    int    `yaml:"max_attempts"`
	BackoffSeconds int    `yaml:"backoff_seconds"`
}

// CoachConfig bounds the conversation engine.
type CoachConfig struct {
	HistoryLimit     int `yaml:"history_limit"`
	MaxMessageLength int `yaml:"max_message_length"`
}

// Timeout returns the per-request HTTP timeout.
func (g GeminiConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// Backoff returns the linear backoff step between overload retries.
func (g GeminiConfig) Backoff() time.Duration {
	return time.Duration(g.BackoffSeconds) * time.Second
}

// Default returns a configuration with every optional field populated.
func Default() *Config {
	return &Config{
		LedgerDSN: "file:/tmp/finz-ledger.db",
		LogLevel:  "info",
		Gemini: GeminiConfig{
			Model:          "gemini-2.0-flash",
			BaseURL:        "https://generativelanguage.googleapis.com",
			TimeoutSeconds: 30,
			MaxAttempts:    3,
			BackoffSeconds: 2,
		},
		Coach: CoachConfig{
			HistoryLimit:     20,
			MaxMessageLength: 1000,
		},
	}
}

// Load builds the configuration. When path is non-empty the file is read,
// environment-expanded and merged over the defaults. Environment overrides
// are applied last, then the result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	envString(lookup, "STATE_TABLE", &c.StateTable)
	envString(lookup, "LEDGER_DSN", &c.LedgerDSN)
	envString(lookup, "PARAM_PREFIX", &c.ParamPrefix)
	envString(lookup, "LOG_LEVEL", &c.LogLevel)
	envString(lookup, "GEMINI_MODEL", &c.Gemini.Model)
	envString(lookup, "GEMINI_BASE_URL", &c.Gemini.BaseURL)

	ints := []struct {
		key string
		dst *int
	}{
		{"GEMINI_TIMEOUT_SECONDS", &c.Gemini.TimeoutSeconds},
		{"GEMINI_MAX_ATTEMPTS", &c.Gemini.MaxAttempts},
		{"GEMINI_BACKOFF_SECONDS", &c.Gemini.BackoffSeconds},
		{"HISTORY_LIMIT", &c.Coach.HistoryLimit},
		{"MAX_MESSAGE_LENGTH", &c.Coach.MaxMessageLength},
	}
	for _, e := range ints {
		if err := envInt(lookup, e.key, e.dst); err != nil {
			return err
		}
	}
	return nil
}

func envString(lookup func(string) (string, bool), key string, dst *string) {
	if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func envInt(lookup func(string) (string, bool), key string, dst *int) error {
	v, ok := lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("config: %s must be an integer: %w", key, err)
	}
	*dst = n
	return nil
}

// Validate reports every missing or out-of-range field at once.
func (c *Config) Validate() error {
	var errs []error
	if c.StateTable == "" {
		errs = append(errs, errors.New("state_table is required"))
	}
	if c.ParamPrefix == "" {
		errs = append(errs, errors.New("param_prefix is required"))
	}
	if c.LedgerDSN == "" {
		errs = append(errs, errors.New("ledger_dsn is required"))
	}
	if c.Gemini.Model == "" {
		errs = append(errs, errors.New("gemini.model is required"))
	}
	if c.Gemini.BaseURL == "" {
		errs = append(errs, errors.New("gemini.base_url is required"))
	}
	if c.Gemini.TimeoutSeconds <= 0 {
		errs = append(errs, errors.New("gemini.timeout_seconds must be positive"))
	}
	if c.Gemini.MaxAttempts <= 0 {
		errs = append(errs, errors.New("gemini.max_attempts must be positive"))
	}
	if c.Gemini.BackoffSeconds < 0 {
		errs = append(errs, errors.New("gemini.backoff_seconds must not be negative"))
	}
	if c.Coach.HistoryLimit <= 0 {
		errs = append(errs, errors.New("coach.history_limit must be positive"))
	}
	if c.Coach.MaxMessageLength <= 0 {
		errs = append(errs, errors.New("coach.max_message_length must be positive"))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: invalid: %w", errors.Join(errs...))
	}
	return nil
}
