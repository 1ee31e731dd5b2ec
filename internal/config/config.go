// Package config loads process configuration from the environment, after an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds runtime settings for the presence service.
type Config struct {
	Port     string
	LogLevel string

	// StorageBackend selects the durable store: "postgres" or "memory".
	StorageBackend string

	Auth   Auth
	Engine Engine
}

// Auth configures the operator login and token signing.
type Auth struct {
	JWTSecret            string
	AccessTokenDuration  time.Duration
	RefreshTokenDuration time.Duration
	OpsUsername          string
	OpsPasswordHash      string
}

// Engine carries the defaults applied to guilds without stored overrides,
// plus the process-wide cadences.
type Engine struct {
	CoinsPerSecond    float64
	TrackedCategories []string
	SessionTTL        time.Duration
	MinimumBillable   time.Duration
	TransferGrace     time.Duration

	SyncInterval      time.Duration
	ActivityRetention time.Duration
	PruneInterval     time.Duration
	SettingsCacheTTL  time.Duration
}

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.Port = "8080"
	c.LogLevel = "info"
	c.StorageBackend = StoragePostgres
	c.Auth = Auth{
		JWTSecret:            "change-me-in-production",
		AccessTokenDuration:  time.Hour,
		RefreshTokenDuration: 7 * 24 * time.Hour,
		OpsUsername:          "ops",
	}
	c.Engine = Engine{
		CoinsPerSecond:    0.1,
		SessionTTL:        24 * time.Hour,
		MinimumBillable:   5 * time.Second,
		TransferGrace:     5 * time.Second,
		SyncInterval:      5 * time.Minute,
		ActivityRetention: 90 * 24 * time.Hour,
		PruneInterval:     time.Hour,
		SettingsCacheTTL:  time.Minute,
	}
}

// Load reads .env (when present) and then the environment on top of the
// defaults.
func Load() (*Config, error) {
	// A missing .env is the normal production case.
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.LoadDefaults()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Port = GetEnv("PORT", c.Port)
	c.LogLevel = GetEnv("LOG_LEVEL", c.LogLevel)
	c.StorageBackend = strings.ToLower(GetEnv("STORAGE_BACKEND", c.StorageBackend))

	c.Auth.JWTSecret = GetEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.AccessTokenDuration = GetEnvAsDuration("JWT_ACCESS_TTL", c.Auth.AccessTokenDuration)
	c.Auth.RefreshTokenDuration = GetEnvAsDuration("JWT_REFRESH_TTL", c.Auth.RefreshTokenDuration)
	c.Auth.OpsUsername = GetEnv("OPS_USERNAME", c.Auth.OpsUsername)
	c.Auth.OpsPasswordHash = GetEnv("OPS_PASSWORD_HASH", c.Auth.OpsPasswordHash)

	c.Engine.CoinsPerSecond = GetEnvAsFloat("PRESENCE_COINS_PER_SECOND", c.Engine.CoinsPerSecond)
	c.Engine.TrackedCategories = GetEnvAsList("PRESENCE_TRACKED_CATEGORIES", c.Engine.TrackedCategories)
	c.Engine.SessionTTL = GetEnvAsDuration("PRESENCE_SESSION_TTL", c.Engine.SessionTTL)
	c.Engine.MinimumBillable = GetEnvAsDuration("PRESENCE_MIN_BILLABLE", c.Engine.MinimumBillable)
	c.Engine.TransferGrace = GetEnvAsDuration("PRESENCE_TRANSFER_GRACE", c.Engine.TransferGrace)
	c.Engine.SyncInterval = GetEnvAsDuration("PRESENCE_SYNC_INTERVAL", c.Engine.SyncInterval)
	c.Engine.ActivityRetention = GetEnvAsDuration("PRESENCE_ACTIVITY_RETENTION", c.Engine.ActivityRetention)
	c.Engine.PruneInterval = GetEnvAsDuration("PRESENCE_PRUNE_INTERVAL", c.Engine.PruneInterval)
	c.Engine.SettingsCacheTTL = GetEnvAsDuration("PRESENCE_SETTINGS_CACHE_TTL", c.Engine.SettingsCacheTTL)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.StorageBackend != StoragePostgres && c.StorageBackend != StorageMemory {
		errs = append(errs, fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q", StoragePostgres, StorageMemory, c.StorageBackend))
	}
	if c.Engine.CoinsPerSecond < 0 {
		errs = append(errs, errors.New("PRESENCE_COINS_PER_SECOND must not be negative"))
	}
	if c.Engine.SessionTTL <= 0 {
		errs = append(errs, errors.New("PRESENCE_SESSION_TTL must be positive"))
	}
	if c.Engine.SyncInterval <= 0 {
		errs = append(errs, errors.New("PRESENCE_SYNC_INTERVAL must be positive"))
	}
	if c.Engine.PruneInterval <= 0 {
		errs = append(errs, errors.New("PRESENCE_PRUNE_INTERVAL must be positive"))
	}
	if c.Engine.MinimumBillable < 0 || c.Engine.TransferGrace < 0 {
		errs = append(errs, errors.New("PRESENCE_MIN_BILLABLE and PRESENCE_TRANSFER_GRACE must not be negative"))
	}
	return errors.Join(errs...)
}
