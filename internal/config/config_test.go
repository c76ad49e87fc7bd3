package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"STATE_TABLE", "LEDGER_DSN", "PARAM_PREFIX", "LOG_LEVEL",
		"GEMINI_MODEL", "GEMINI_BASE_URL", "GEMINI_TIMEOUT_SECONDS",
		"GEMINI_MAX_ATTEMPTS", "GEMINI_BACKOFF_SECONDS",
		"HISTORY_LIMIT", "MAX_MESSAGE_LENGTH",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_EnvOnly(t *testing.T) {
	clearEnv(t)
	t.Setenv("STATE_TABLE", "coach-turns")
	t.Setenv("PARAM_PREFIX", "/finz/dev")
	t.Setenv("HISTORY_LIMIT", "12")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "coach-turns", cfg.StateTable)
	require.Equal(t, "/finz/dev", cfg.ParamPrefix)
	require.Equal(t, 12, cfg.Coach.HistoryLimit)
	require.Equal(t, 1000, cfg.Coach.MaxMessageLength)
	require.Equal(t, "gemini-2.0-flash", cfg.Gemini.Model)
	require.Equal(t, 3, cfg.Gemini.MaxAttempts)
}

func TestLoad_FileExpandedAndOverridden(t *testing.T) {
	clearEnv(t)
	t.Setenv("FINZ_STAGE", "prod")
	path := writeConfig(t, `
state_table: coach-turns-${FINZ_STAGE}
param_prefix: /finz/${FINZ_STAGE}
ledger_dsn: file:/mnt/efs/ledger.db
log_level: debug
gemini:
  model: gemini-1.5-pro
  backoff_seconds: 1
coach:
  max_message_length: 500
`)
	t.Setenv("GEMINI_MODEL", "gemini-2.0-flash-lite")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "coach-turns-prod", cfg.StateTable)
	require.Equal(t, "/finz/prod", cfg.ParamPrefix)
	require.Equal(t, "file:/mnt/efs/ledger.db", cfg.LedgerDSN)
	require.Equal(t, "gemini-2.0-flash-lite", cfg.Gemini.Model)
	require.Equal(t, 1, cfg.Gemini.BackoffSeconds)
	require.Equal(t, 30, cfg.Gemini.TimeoutSeconds, "unset file keys keep defaults")
	require.Equal(t, 500, cfg.Coach.MaxMessageLength)
	require.Equal(t, 20, cfg.Coach.HistoryLimit)
}

func TestLoad_MissingRequired(t *testing.T) {
	clearEnv(t)
	_, err := Load("")
	require.ErrorContains(t, err, "state_table is required")
	require.ErrorContains(t, err, "param_prefix is required")
}

func TestLoad_BadInteger(t *testing.T) {
	clearEnv(t)
	t.Setenv("STATE_TABLE", "t")
	t.Setenv("PARAM_PREFIX", "/p")
	t.Setenv("HISTORY_LIMIT", "twenty")
	_, err := Load("")
	require.ErrorContains(t, err, "HISTORY_LIMIT must be an integer")
}

func TestLoad_FileErrors(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "config: read")

	_, err = Load(writeConfig(t, "gemini: [unclosed"))
	require.ErrorContains(t, err, "config: parse")
}

func TestValidate_Ranges(t *testing.T) {
	cfg := Default()
	cfg.StateTable = "t"
	cfg.ParamPrefix = "/p"
	require.NoError(t, cfg.Validate())

	cfg.Gemini.MaxAttempts = 0
	cfg.Coach.HistoryLimit = -1
	cfg.LogLevel = "loud"
	err := cfg.Validate()
	require.ErrorContains(t, err, "gemini.max_attempts must be positive")
	require.ErrorContains(t, err, "coach.history_limit must be positive")
	require.ErrorContains(t, err, `unknown log level "loud"`)
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		" debug ": slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLogLevel(in)
		require.NoError(t, err, "input %q", in)
		require.Equal(t, want, got)
	}
	_, err := ParseLogLevel("verbose")
	require.Error(t, err)
}

func TestNewLogger_JSONAtLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "warn"
	var buf bytes.Buffer
	logger, err := cfg.NewLogger(&buf)
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept", "userId", 7)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "kept", line["msg"])
	require.Equal(t, "finz-coach", line["service"])
	require.EqualValues(t, 7, line["userId"])
}
