package cache

import (
	"context"
	"encoding/json"
	"time"
)

const (
	TypeGoCache = "gocache"
	TypeLRU     = "lru"
	TypeRedis   = "redis"
)

// Cache stores opaque byte values. Callers own the encoding; GetJSON and
// SetJSON cover the common case.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores value. A zero expiration uses the backend default.
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error

	// SetNX stores value only when key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte, expiration time.Duration) (bool, error)

	Delete(ctx context.Context, key string) error

	Close() error
}

// Config selects and tunes a backend.
type Config struct {
	// gocache | lru | redis
	Type string `env:"CACHE_TYPE"`
	// entry limit of the lru backend
	Size       int           `env:"CACHE_SIZE"`
	DefaultTTL time.Duration `env:"CACHE_TTL"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB"`
	KeyPrefix     string `env:"CACHE_PREFIX"`
}

// GetJSON decodes the value under key into v.
func GetJSON(ctx context.Context, c Cache, key string, v interface{}) bool {
	data, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, c Cache, key string, v interface{}, expiration time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, data, expiration)
}
