package cache

import (
	"fmt"
	"strings"
	"time"
)

// NewCache creates the backend named by config.Type.
func NewCache(config Config) (Cache, error) {
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 5 * time.Minute
	}
	switch strings.ToLower(config.Type) {
	case "", TypeGoCache:
		return NewGoCache(config), nil
	case TypeLRU:
		return NewLRUCache(config)
	case TypeRedis:
		return NewRedisCache(config)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", config.Type)
	}
}
