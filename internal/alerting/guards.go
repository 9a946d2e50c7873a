package alerting

import (
	"RiderGuard/internal/auth"
	"RiderGuard/internal/models"
	errs "RiderGuard/pkg/errors"
)

func requireCourier(actor *auth.Identity) error {
	if !auth.IsCourier(actor) {
		return errs.Unauthorized("only couriers can do this")
	}
	return nil
}

func requireOperator(actor *auth.Identity) error {
	if !auth.IsOperator(actor) {
		return errs.Unauthorized("only operators can do this")
	}
	return nil
}

func requireOwner(actor *auth.Identity, alert *models.Alert) error {
	if !auth.OwnsAlert(actor, alert) {
		return errs.Unauthorized("alert %s belongs to another courier", alert.ID)
	}
	return nil
}

// requireViewer admits operators and the owning courier.
func requireViewer(actor *auth.Identity, alert *models.Alert) error {
	if auth.IsOperator(actor) || auth.OwnsAlert(actor, alert) {
		return nil
	}
	return errs.Unauthorized("not allowed to see alert %s", alert.ID)
}
