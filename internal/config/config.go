// Package config loads simulator configuration from TOML files with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"investsim/internal/domain"
)

const envPrefix = "INVESTSIM_"

// PolicyLockDays is the only lock period the engine supports.
const PolicyLockDays = 30

var ErrInvalidConfig = errors.New("invalid config")

// Config holds all configuration for the simulator
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Logging   LoggingConfig   `toml:"logging"`
	Storage   StorageConfig   `toml:"storage"`
	Signing   SigningConfig   `toml:"signing"`
	Ledger    LedgerConfig    `toml:"ledger"`
	Reconcile ReconcileConfig `toml:"reconcile"`
	FixedRate FixedRateConfig `toml:"fixed_rate"`
	Plans     []domain.Plan   `toml:"plans"`
	Currency  CurrencyConfig  `toml:"currency"`
	API       APIConfig       `toml:"api"`
}

type ServerConfig struct {
	Addr            string `toml:"addr"`
	MetricsAddr     string `toml:"metrics_addr"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
}

// GetShutdownTimeout parses and returns the shutdown timeout
func (c *ServerConfig) GetShutdownTimeout() time.Duration {
	d, err := time.ParseDuration(c.ShutdownTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "text"
}

// StorageConfig selects where ledger state is persisted.
type StorageConfig struct {
	Backend string `toml:"backend"` // "memory" or "badger"
	Path    string `toml:"path"`
}

type SigningConfig struct {
	Secret string `toml:"secret"`
}

type LedgerConfig struct {
	InitialBalance float64 `toml:"initial_balance"`
	MaxDeposit     float64 `toml:"max_deposit"`
	LockDays       int     `toml:"lock_days"`
	WriteBuffer    int     `toml:"write_buffer"`
}

type ReconcileConfig struct {
	MinInterval   string  `toml:"min_interval"`
	DustThreshold float64 `toml:"dust_threshold"`
	// RunOnStart disables the startup sweep when false.
	RunOnStart bool `toml:"run_on_start"`
}

// GetMinInterval parses and returns the growth payout throttle interval
func (c *ReconcileConfig) GetMinInterval() time.Duration {
	d, err := time.ParseDuration(c.MinInterval)
	if err != nil {
		return time.Hour
	}
	return d
}

type FixedRateConfig struct {
	DailyRate float64        `toml:"daily_rate"`
	Days      map[string]int `toml:"days"`
}

type CurrencyConfig struct {
	// Rates are units of each currency per 1 USD.
	Rates map[string]float64 `toml:"rates"`
}

type APIConfig struct {
	RateLimit float64 `toml:"rate_limit"` // requests per second per client
	Burst     int     `toml:"burst"`
}

// DefaultPlans is the built-in plan catalog.
func DefaultPlans() []domain.Plan {
	return []domain.Plan{
		{ID: "p1", Name: "Starter", DurationDays: 7, AnnualROIPercent: 8, MinDeposit: 100},
		{ID: "p2", Name: "Growth", DurationDays: 30, AnnualROIPercent: 12, MinDeposit: 500},
		{ID: "p3", Name: "Premium", DurationDays: 90, AnnualROIPercent: 18, MinDeposit: 2500},
	}
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			MetricsAddr:     ":9090",
			ShutdownTimeout: "30s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Storage: StorageConfig{
			Backend: "memory",
			Path:    "data/ledger",
		},
		Signing: SigningConfig{
			Secret: "dev-signing-secret-change-me",
		},
		Ledger: LedgerConfig{
			InitialBalance: 10000,
			MaxDeposit:     1_000_000,
			LockDays:       PolicyLockDays,
			WriteBuffer:    64,
		},
		Reconcile: ReconcileConfig{
			MinInterval:   "1h",
			DustThreshold: 0.01,
			RunOnStart:    true,
		},
		FixedRate: FixedRateConfig{
			DailyRate: 0.0005479,
			Days:      map[string]int{"p1": 90, "p2": 180, "p3": 365},
		},
		Currency: CurrencyConfig{
			Rates: map[string]float64{"EUR": 0.92, "GBP": 0.79, "CAD": 1.36},
		},
		API: APIConfig{
			RateLimit: 20,
			Burst:     40,
		},
	}
}

// Load loads configuration from files with environment overrides. Files are
// merged in order and missing files are skipped.
func Load(paths ...string) (*Config, error) {
	cfg := Default()
	var plans []domain.Plan

	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		cfg.Plans = nil
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		// A file that declares plans replaces the whole catalog.
		if len(cfg.Plans) > 0 {
			plans = cfg.Plans
		}
	}

	cfg.Plans = plans
	if len(cfg.Plans) == 0 {
		cfg.Plans = DefaultPlans()
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(envPrefix + "HTTP_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv(envPrefix + "METRICS_ADDR"); v != "" {
		cfg.Server.MetricsAddr = v
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(envPrefix + "LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv(envPrefix + "STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = strings.ToLower(v)
	}
	if v := os.Getenv(envPrefix + "DATA_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv(envPrefix + "SIGNING_SECRET"); v != "" {
		cfg.Signing.Secret = v
	}
	if v := os.Getenv(envPrefix + "INITIAL_BALANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Ledger.InitialBalance = f
		}
	}
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Backend {
	case "memory":
	case "badger":
		if c.Storage.Path == "" {
			errs = append(errs, errors.New("storage.path is required for the badger backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend))
	}

	if c.Signing.Secret == "" {
		errs = append(errs, errors.New("signing.secret must not be empty"))
	}
	if !finite(c.Ledger.InitialBalance) || c.Ledger.InitialBalance < 0 {
		errs = append(errs, fmt.Errorf("ledger.initial_balance must be a non-negative number, got %v", c.Ledger.InitialBalance))
	}
	if !finite(c.Ledger.MaxDeposit) || c.Ledger.MaxDeposit < 0 {
		errs = append(errs, fmt.Errorf("ledger.max_deposit must be a non-negative number, got %v", c.Ledger.MaxDeposit))
	}
	if c.Ledger.LockDays != PolicyLockDays {
		errs = append(errs, fmt.Errorf("ledger.lock_days must be %d, got %d", PolicyLockDays, c.Ledger.LockDays))
	}

	if _, err := time.ParseDuration(c.Reconcile.MinInterval); err != nil {
		errs = append(errs, fmt.Errorf("reconcile.min_interval: %w", err))
	}
	if !finite(c.Reconcile.DustThreshold) || c.Reconcile.DustThreshold < 0 {
		errs = append(errs, fmt.Errorf("reconcile.dust_threshold must be a non-negative number, got %v", c.Reconcile.DustThreshold))
	}

	if !finite(c.FixedRate.DailyRate) || c.FixedRate.DailyRate < 0 {
		errs = append(errs, fmt.Errorf("fixed_rate.daily_rate must be a non-negative number, got %v", c.FixedRate.DailyRate))
	}
	for id, days := range c.FixedRate.Days {
		if days <= 0 {
			errs = append(errs, fmt.Errorf("fixed_rate.days.%s must be positive, got %d", id, days))
		}
	}

	seen := make(map[string]bool, len(c.Plans))
	for _, p := range c.Plans {
		if err := p.Validate(); err != nil {
			errs = append(errs, err)
		}
		if seen[p.ID] {
			errs = append(errs, fmt.Errorf("duplicate plan id %q", p.ID))
		}
		seen[p.ID] = true
	}

	for code, rate := range c.Currency.Rates {
		if !finite(rate) || rate <= 0 {
			errs = append(errs, fmt.Errorf("currency.rates.%s must be positive, got %v", code, rate))
		}
	}

	if c.API.RateLimit < 0 || c.API.Burst < 0 {
		errs = append(errs, errors.New("api.rate_limit and api.burst must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// SlogLevel maps the configured level name, defaulting to info.
func (c *LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
