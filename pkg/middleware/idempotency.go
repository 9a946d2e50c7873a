package middleware

import (
	"net/http"
	"strings"
	"time"

	"RiderGuard/pkg/cache"

	"github.com/gin-gonic/gin"
)

const DefaultIdempotencyHeader = "Idempotency-Key"

type IdempotencyConfig struct {
	HeaderName string
	// window in which a repeated key is rejected
	TTL   time.Duration
	Store cache.Cache
	// Scope separates keys of different callers, e.g. by user id.
	Scope func(c *gin.Context) string
}

// IdempotencyMiddleware rejects a request whose key was already seen within
// TTL. Requests without the header pass through.
func IdempotencyMiddleware(cfg IdempotencyConfig) gin.HandlerFunc {
	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultIdempotencyHeader
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.Store == nil {
		cfg.Store = cache.NewGoCache(cache.Config{DefaultTTL: cfg.TTL})
	}
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(cfg.HeaderName))
		if key == "" {
			c.Next()
			return
		}
		scope := ""
		if cfg.Scope != nil {
			scope = cfg.Scope(c)
		}
		full := "idem:" + c.FullPath() + ":" + scope + ":" + key

		fresh, err := cfg.Store.SetNX(c.Request.Context(), full, []byte("1"), cfg.TTL)
		if err != nil {
			c.Next()
			return
		}
		if !fresh {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"success": false, "error": "duplicate request"})
			return
		}
		c.Next()
	}
}
