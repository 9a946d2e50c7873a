package alerting

import (
	"context"
	"fmt"
	"strings"

	"RiderGuard/internal/auth"
	"RiderGuard/internal/models"
	errs "RiderGuard/pkg/errors"

	"gorm.io/gorm"
)

const maxCaseRefLen = 64

// AppendLog adds an operator note to an incident.
func (s *Service) AppendLog(ctx context.Context, actor *auth.Identity, incidentID uint, text string) (*Result, *models.LogEntry, error) {
	if err := requireOperator(actor); err != nil {
		return nil, nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil, errs.Validation("log text is required")
	}

	var (
		incident *models.Incident
		entry    *models.LogEntry
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inc, err := models.GetIncident(tx, incidentID)
		if err != nil {
			return err
		}
		e, err := models.AppendLogEntry(tx, inc.ID, actor.UserID, text)
		if err != nil {
			return err
		}
		incident, entry = inc, e
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return newResult(MsgLogAppended, true, nil, incident), entry, nil
}

// SetExternalCaseRef records the case number given by the authorities,
// which also marks them as contacted.
func (s *Service) SetExternalCaseRef(ctx context.Context, actor *auth.Identity, incidentID uint, ref string) (*Result, error) {
	if err := requireOperator(actor); err != nil {
		return nil, err
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errs.Validation("case reference is required")
	}
	if len(ref) > maxCaseRefLen {
		return nil, errs.Validation("case reference longer than %d characters", maxCaseRefLen)
	}

	var incident *models.Incident
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inc, err := models.GetIncident(tx, incidentID)
		if err != nil {
			return err
		}
		inc.ExternalCaseRef = &ref
		inc.AuthoritiesContacted = true
		if err := models.SaveIncident(tx, inc); err != nil {
			return err
		}
		if _, err := models.AppendLogEntry(tx, inc.ID, actor.UserID, fmt.Sprintf("external case reference set: %s", ref)); err != nil {
			return err
		}
		incident = inc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newResult(MsgCaseRefSet, true, nil, incident), nil
}
