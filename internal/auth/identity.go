package auth

import (
	"context"

	"RiderGuard/internal/models"
)

// Identity is the authenticated caller of an operation.
type Identity struct {
	UserID uint   `json:"user_id"`
	Role   string `json:"role"`
}

// IsCourier reports whether the caller raises alerts.
func IsCourier(id *Identity) bool {
	return id != nil && id.Role == models.RoleCourier
}

// IsOperator reports whether the caller handles alerts. Administrators
// can do anything an operator can.
func IsOperator(id *Identity) bool {
	return id != nil && (id.Role == models.RoleOperator || id.Role == models.RoleAdministrator)
}

func IsAdministrator(id *Identity) bool {
	return id != nil && id.Role == models.RoleAdministrator
}

// OwnsAlert reports whether the caller is the courier who raised alert.
func OwnsAlert(id *Identity, alert *models.Alert) bool {
	return id != nil && alert != nil && id.Role == models.RoleCourier && alert.CourierID == id.UserID
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by WithIdentity, or nil.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(ctxKey{}).(*Identity)
	return id
}
