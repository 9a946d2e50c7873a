package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type IncidentStatus string

const (
	IncidentOpen   IncidentStatus = "open"
	IncidentClosed IncidentStatus = "closed"
)

// Incident is the operator side record of exactly one alert.
type Incident struct {
	ID                   uint           `json:"id" gorm:"primaryKey"`
	AlertID              uuid.UUID      `json:"alert_id" gorm:"type:char(36);uniqueIndex;not null"`
	OperatorID           uint           `json:"operator_id" gorm:"index"`
	Status               IncidentStatus `json:"status" gorm:"size:16;not null"`
	ExternalCaseRef      *string        `json:"external_case_ref" gorm:"size:64"`
	ContactsNotified     bool           `json:"contacts_notified"`
	AuthoritiesContacted bool           `json:"authorities_contacted"`
	ClosedAt             *time.Time     `json:"closed_at"`
	ResponseMillis       *int64         `json:"response_ms"`
	CreatedAt            time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt            time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

// Close stamps closedAt and the response duration. It reports false and
// changes nothing when the incident is already closed.
func (i *Incident) Close(closedAt time.Time) bool {
	if i.Status == IncidentClosed {
		return false
	}
	d := closedAt.Sub(i.CreatedAt)
	if d < 0 {
		d = 0
	}
	i.Status = IncidentClosed
	i.ClosedAt = &closedAt
	ms := d.Milliseconds()
	i.ResponseMillis = &ms
	return true
}

// ResponseDuration is nil while the incident is open.
func (i *Incident) ResponseDuration() *time.Duration {
	if i.ResponseMillis == nil {
		return nil
	}
	d := time.Duration(*i.ResponseMillis) * time.Millisecond
	return &d
}

// LogEntry is an append-only line in an incident's log.
type LogEntry struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	IncidentID uint      `json:"incident_id" gorm:"index:idx_log_incident_ts,priority:1;not null"`
	OperatorID uint      `json:"operator_id"`
	Action     string    `json:"action" gorm:"type:text;not null"`
	Timestamp  time.Time `json:"timestamp" gorm:"autoCreateTime;index:idx_log_incident_ts,priority:2"`
}

// GetOrCreateIncident returns the incident of alertID, creating an open one
// owned by operatorID when none exists. Callers serialize per alert; a
// unique violation from a concurrent writer elsewhere is resolved by
// reading the winner's row.
func GetOrCreateIncident(db *gorm.DB, alertID uuid.UUID, operatorID uint) (*Incident, bool, error) {
	inc, err := FindIncidentByAlert(db, alertID)
	if err != nil {
		return nil, false, err
	}
	if inc != nil {
		return inc, false, nil
	}

	inc = &Incident{AlertID: alertID, OperatorID: operatorID, Status: IncidentOpen}
	if err := db.Create(inc).Error; err != nil {
		if isUniqueViolation(err) {
			existing, ferr := FindIncidentByAlert(db, alertID)
			if ferr == nil && existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, err
	}
	return inc, true, nil
}

// FindIncidentByAlert returns nil without error when the alert has no
// incident yet.
func FindIncidentByAlert(db *gorm.DB, alertID uuid.UUID) (*Incident, error) {
	var incs []Incident
	if err := db.Where("alert_id = ?", alertID).Limit(1).Find(&incs).Error; err != nil {
		return nil, err
	}
	if len(incs) == 0 {
		return nil, nil
	}
	return &incs[0], nil
}

func GetIncident(db *gorm.DB, id uint) (*Incident, error) {
	var inc Incident
	if err := db.First(&inc, id).Error; err != nil {
		return nil, notFound(err, "incident %d not found", id)
	}
	return &inc, nil
}

func SaveIncident(db *gorm.DB, inc *Incident) error {
	return db.Save(inc).Error
}

// AppendLogEntry adds a line to the incident log. The timestamp is
// assigned by the store.
func AppendLogEntry(db *gorm.DB, incidentID, operatorID uint, action string) (*LogEntry, error) {
	entry := &LogEntry{IncidentID: incidentID, OperatorID: operatorID, Action: action}
	if err := db.Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

// ListLogEntries returns the log of an incident in timestamp order.
func ListLogEntries(db *gorm.DB, incidentID uint) ([]LogEntry, error) {
	var entries []LogEntry
	err := db.Where("incident_id = ?", incidentID).
		Order("timestamp ASC").Order("id ASC").
		Find(&entries).Error
	return entries, err
}
