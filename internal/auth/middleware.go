package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const IdentityKey = "identity"

// Authenticate resolves the bearer token into an Identity. Browsers cannot
// set headers on websocket upgrades, so the token query parameter is
// accepted as well. Requests without a valid token are rejected.
func Authenticate(tm *TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := tm.Validate(tokenFromRequest(c))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized"})
			return
		}
		c.Set(IdentityKey, id)
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// RequireRole rejects identities whose role is not listed.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *gin.Context) {
		id := Current(c)
		if id == nil || !allowed[id.Role] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "forbidden"})
			return
		}
		c.Next()
	}
}

// Current returns the identity set by Authenticate, or nil.
func Current(c *gin.Context) *Identity {
	v, ok := c.Get(IdentityKey)
	if !ok {
		return nil
	}
	id, _ := v.(*Identity)
	return id
}

func tokenFromRequest(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if strings.HasPrefix(strings.ToLower(h), "bearer ") {
			return strings.TrimSpace(h[len("bearer "):])
		}
	}
	return c.Query("token")
}
