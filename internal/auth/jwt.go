package auth

import (
	"fmt"
	"strconv"
	"time"

	"RiderGuard/internal/models"
	errs "RiderGuard/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

// TokenManager signs and validates HS256 access tokens. Accounts and
// credentials live in another service; this one only trusts its tokens.
type TokenManager struct {
	secret    []byte
	issuer    string
	accessTTL time.Duration
}

// NewTokenManager creates a token manager. secret should be at least 32
// characters.
func NewTokenManager(secret, issuer string, accessTTL time.Duration) *TokenManager {
	return &TokenManager{
		secret:    []byte(secret),
		issuer:    issuer,
		accessTTL: accessTTL,
	}
}

type accessClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// Issue creates a signed token with the user ID as subject.
func (m *TokenManager) Issue(userID uint, role string) (string, error) {
	now := time.Now()
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			Issuer:    m.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Role: role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate parses tokenString. Every failure is reported as Unauthorized.
func (m *TokenManager) Validate(tokenString string) (*Identity, error) {
	if tokenString == "" {
		return nil, errs.Unauthorized("token is empty")
	}

	token, err := jwt.ParseWithClaims(tokenString, &accessClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer))
	if err != nil {
		return nil, errs.Unauthorized("invalid token: %v", err)
	}

	claims, ok := token.Claims.(*accessClaims)
	if !ok || !token.Valid {
		return nil, errs.Unauthorized("invalid token claims")
	}

	userID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || userID == 0 {
		return nil, errs.Unauthorized("invalid subject %q", claims.Subject)
	}
	switch claims.Role {
	case models.RoleCourier, models.RoleOperator, models.RoleAdministrator:
	default:
		return nil, errs.Unauthorized("unknown role %q", claims.Role)
	}
	return &Identity{UserID: uint(userID), Role: claims.Role}, nil
}
