package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var allKeys = []string{
	"TRIAGE_API_URL",
	"TRIAGE_PARAM_PREFIX",
	"TRIAGE_HTTP_TIMEOUT",
	"TRIAGE_MAX_RETRIES",
	"TRIAGE_ARCHIVE_TABLE",
	"TRIAGE_LOG_LEVEL",
	"TRIAGE_METRICS_ADDR",
}

// clearEnv unsets every key for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, &Config{
		APIURL:      "http://localhost:8000",
		HTTPTimeout: 60 * time.Second,
		MaxRetries:  3,
		LogLevel:    "info",
	}, cfg)
	require.False(t, cfg.UsesAWS())
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRIAGE_API_URL", "https://triage.example.com")
	t.Setenv("TRIAGE_HTTP_TIMEOUT", "90s")
	t.Setenv("TRIAGE_MAX_RETRIES", "5")
	t.Setenv("TRIAGE_ARCHIVE_TABLE", "triage-archive")
	t.Setenv("TRIAGE_LOG_LEVEL", "debug")
	t.Setenv("TRIAGE_METRICS_ADDR", ":9090")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "https://triage.example.com", cfg.APIURL)
	require.Equal(t, 90*time.Second, cfg.HTTPTimeout)
	require.Equal(t, 5, cfg.MaxRetries)
	require.Equal(t, "triage-archive", cfg.ArchiveTable)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, ":9090", cfg.MetricsAddr)
	require.True(t, cfg.UsesAWS())
}

func TestLoad_TimeoutInSeconds(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRIAGE_HTTP_TIMEOUT", "15")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 15*time.Second, cfg.HTTPTimeout)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"bad url":      {"TRIAGE_API_URL": "localhost:8000"},
		"empty url":    {"TRIAGE_API_URL": ""},
		"bad timeout":  {"TRIAGE_HTTP_TIMEOUT": "soon"},
		"zero timeout": {"TRIAGE_HTTP_TIMEOUT": "0s"},
		"neg retries":  {"TRIAGE_MAX_RETRIES": "-1"},
		"bad prefix":   {"TRIAGE_PARAM_PREFIX": "triage/prod"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestLoad_ParamPrefixSkipsURLCheck(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRIAGE_API_URL", "")
	t.Setenv("TRIAGE_PARAM_PREFIX", "/triage/prod")

	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.UsesAWS())
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "triage.env")
	require.NoError(t, os.WriteFile(path, []byte("TRIAGE_MAX_RETRIES=7\nTRIAGE_LOG_LEVEL=warn\n"), 0o600))
	t.Setenv("TRIAGE_LOG_LEVEL", "error")
	t.Cleanup(func() { _ = os.Unsetenv("TRIAGE_MAX_RETRIES") })

	require.NoError(t, LoadDotEnv(path, filepath.Join(dir, "missing.env")))

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 7, cfg.MaxRetries)
	require.Equal(t, "error", cfg.LogLevel)
}

func TestLoadDotEnv_NoFile(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")))
}
