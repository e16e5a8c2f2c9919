package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Setenv("STORAGE", "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.InDelta(t, 0.5, cfg.Alerts.WarningRatio, 1e-9)
	assert.Equal(t, "fieldstock", cfg.NATS.SubjectPrefix)
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fieldstock.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9000"
  allowed_origins: ["https://ops.example.com"]
  read_timeout: 5s
storage: postgres
database:
  url: postgres://file/db
  max_conns: 4
log:
  level: debug
  format: json
alerts:
  warning_ratio: 0.6
  low_ratio: 0.1
`), 0o600))

	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout, "unset keys keep defaults")
	assert.Equal(t, StoragePostgres, cfg.Storage)
	assert.Equal(t, "postgres://env/db", cfg.Database.URL)
	assert.Equal(t, int32(4), cfg.Database.MaxConns)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.InDelta(t, 0.1, cfg.Alerts.LowRatio, 1e-9)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"postgres without url", func(c *Config) { c.Storage = StoragePostgres }, "database.url is required"},
		{"unknown storage", func(c *Config) { c.Storage = "redis" }, `unknown storage "redis"`},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, `unknown log level "loud"`},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, `unknown log format "xml"`},
		{"inverted ratios", func(c *Config) { c.Alerts.LowRatio = 0.7 }, "alert ratios"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			require.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
	require.NoError(t, Default().Validate())
}

func TestApplyEnv_InvalidBool(t *testing.T) {
	cfg := Default()
	err := applyEnv(cfg, func(name string) (string, bool) {
		if name == "METRICS_ENABLED" {
			return "maybe", true
		}
		return "", false
	})
	require.ErrorContains(t, err, "METRICS_ENABLED")
}
