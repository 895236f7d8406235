package session

import (
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// StoreType represents the type of session store.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeSQL    StoreType = "sql"
)

// DefaultTTL is how long an idle call session is kept.
const DefaultTTL = 2 * time.Hour

// StoreOption is a functional option for configuring a session store.
type StoreOption func(*StoreConfig)

// StoreConfig holds configuration for session stores.
type StoreConfig struct {
	RedisClient *redis.Client
	KeyPrefix   string
	DB          *gorm.DB
	TTL         time.Duration
}

// NewStoreConfig applies opts over the defaults.
func NewStoreConfig(opts ...StoreOption) StoreConfig {
	cfg := StoreConfig{
		KeyPrefix: "call:",
		TTL:       DefaultTTL,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return cfg
}

// WithRedisClient sets the Redis client for the Redis store.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *StoreConfig) {
		c.RedisClient = client
	}
}

// WithKeyPrefix sets the Redis key prefix.
func WithKeyPrefix(prefix string) StoreOption {
	return func(c *StoreConfig) {
		if prefix != "" {
			c.KeyPrefix = prefix
		}
	}
}

// WithDB sets the gorm handle for the SQL store.
func WithDB(db *gorm.DB) StoreOption {
	return func(c *StoreConfig) {
		c.DB = db
	}
}

// WithTTL sets how long idle sessions are kept.
func WithTTL(ttl time.Duration) StoreOption {
	return func(c *StoreConfig) {
		c.TTL = ttl
	}
}
