package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/omega-realm/presence/internal/config"
	"github.com/omega-realm/presence/internal/logging"
	"github.com/redis/go-redis/v9"
)

// Client wraps the Redis client
type Client struct {
	*redis.Client
}

// Config holds Redis configuration
type Config struct {
	Host         string
	Port         string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// LoadConfigFromEnv loads Redis configuration from environment variables
func LoadConfigFromEnv() *Config {
	return &Config{
		Host:         config.GetEnv("REDIS_HOST", "localhost"),
		Port:         config.GetEnv("REDIS_PORT", "6379"),
		Password:     config.GetEnv("REDIS_PASSWORD", ""),
		DB:           config.GetEnvAsInt("REDIS_DB", 0),
		PoolSize:     config.GetEnvAsInt("REDIS_POOL_SIZE", 10),
		DialTimeout:  config.GetEnvAsDuration("REDIS_DIAL_TIMEOUT", 10*time.Second),
		ReadTimeout:  config.GetEnvAsDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: config.GetEnvAsDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
	}
}

// Addr returns host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// NewClient creates a new Redis client with the provided configuration and
// verifies the connection.
func NewClient(ctx context.Context, cfg *Config, log logging.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolTimeout:  cfg.ReadTimeout + time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info(ctx, "redis connected", "addr", cfg.Addr(), "db", cfg.DB, "pool_size", cfg.PoolSize)

	return &Client{rdb}, nil
}

// Wrap adapts an existing go-redis client, e.g. one pointed at a test server.
func Wrap(rdb *redis.Client) *Client {
	return &Client{rdb}
}
