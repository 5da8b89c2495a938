package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, time.Hour, cfg.Reconcile.GetMinInterval())
	assert.Equal(t, 30*time.Second, cfg.Server.GetShutdownTimeout())
	assert.Len(t, cfg.Plans, 3)
	assert.Equal(t, 90, cfg.FixedRate.Days["p1"])
}

func TestLoad_MergesFilesInOrder(t *testing.T) {
	base := writeFile(t, "base.toml", `
[server]
addr = ":7000"

[ledger]
initial_balance = 2500.0

[[plans]]
id = "gold"
name = "Gold"
duration_days = 60
annual_roi_percent = 10.0
min_deposit = 250.0
`)
	local := writeFile(t, "local.toml", `
[server]
addr = ":7001"

[reconcile]
min_interval = "15m"
`)

	cfg, err := Load(base, filepath.Join(t.TempDir(), "missing.toml"), local)
	require.NoError(t, err)

	assert.Equal(t, ":7001", cfg.Server.Addr)
	assert.Equal(t, 2500.0, cfg.Ledger.InitialBalance)
	assert.Equal(t, 15*time.Minute, cfg.Reconcile.GetMinInterval())
	require.Len(t, cfg.Plans, 1)
	assert.Equal(t, "gold", cfg.Plans[0].ID)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("INVESTSIM_HTTP_ADDR", ":9999")
	t.Setenv("INVESTSIM_STORAGE_BACKEND", "BADGER")
	t.Setenv("INVESTSIM_DATA_PATH", "/tmp/investsim")
	t.Setenv("INVESTSIM_INITIAL_BALANCE", "42.5")
	t.Setenv("INVESTSIM_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "badger", cfg.Storage.Backend)
	assert.Equal(t, "/tmp/investsim", cfg.Storage.Path)
	assert.Equal(t, 42.5, cfg.Ledger.InitialBalance)
	assert.Equal(t, slog.LevelDebug, cfg.Logging.SlogLevel())
}

func TestLoad_RejectsInvalidPlan(t *testing.T) {
	path := writeFile(t, "bad.toml", `
[[plans]]
id = "neg"
name = "Negative"
duration_days = 30
annual_roi_percent = -5.0
min_deposit = 100.0
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "annual_roi_percent")
}

func TestLoad_ParseError(t *testing.T) {
	path := writeFile(t, "broken.toml", "[server\naddr = ")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"lock days", func(c *Config) { c.Ledger.LockDays = 14 }, "lock_days"},
		{"backend", func(c *Config) { c.Storage.Backend = "s3" }, "storage.backend"},
		{"secret", func(c *Config) { c.Signing.Secret = "" }, "signing.secret"},
		{"interval", func(c *Config) { c.Reconcile.MinInterval = "soon" }, "min_interval"},
		{"fixed days", func(c *Config) { c.FixedRate.Days["p1"] = 0 }, "fixed_rate.days.p1"},
		{"currency", func(c *Config) { c.Currency.Rates["EUR"] = 0 }, "currency.rates.EUR"},
		{"duplicate plan", func(c *Config) { c.Plans = append(c.Plans, c.Plans[0]) }, "duplicate plan"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.Plans = DefaultPlans()
			tc.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidate_ZeroROIPlanAllowed(t *testing.T) {
	cfg := Default()
	cfg.Plans = DefaultPlans()
	cfg.Plans[0].AnnualROIPercent = 0

	assert.NoError(t, cfg.Validate())
}
