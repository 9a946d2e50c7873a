// Package trajectory stores the GPS fixes a courier device streams while an
// alert is active and relays them to whoever tracks that alert.
package trajectory

import (
	"context"
	"fmt"

	"RiderGuard/internal/auth"
	"RiderGuard/internal/events"
	"RiderGuard/internal/models"
	"RiderGuard/internal/presence"
	errs "RiderGuard/pkg/errors"

	"github.com/google/uuid"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultStatusRate bounds courier_status broadcasts caused by location
// samples, per courier.
const DefaultStatusRate = "1-S"

// Sample is one fix reported by a device.
type Sample struct {
	Lat      float64  `json:"lat"`
	Lon      float64  `json:"lon"`
	Accuracy *float64 `json:"accuracy"`
	Speed    *float64 `json:"speed"`
}

func (s Sample) validate() error {
	if !models.ValidCoord(s.Lat, s.Lon) {
		return errs.Validation("coordinates out of range: %f,%f", s.Lat, s.Lon)
	}
	if s.Accuracy != nil && *s.Accuracy < 0 {
		return errs.Validation("accuracy must not be negative")
	}
	if s.Speed != nil && *s.Speed < 0 {
		return errs.Validation("speed must not be negative")
	}
	return nil
}

type Ingestor struct {
	db       *gorm.DB
	bus      events.Publisher
	presence *presence.Projection
	status   *limiter.Limiter
	observer Observer
	locker   AlertLocker
	log      *zap.Logger
}

// AlertLocker serializes work on one alert. The alert service implements it.
type AlertLocker interface {
	LockAlert(alertID uuid.UUID) (unlock func())
}

// SetLocker makes ingestion wait for in-flight transitions of the same
// alert. Call before serving traffic.
func (i *Ingestor) SetLocker(l AlertLocker) { i.locker = l }

// Observer counts ingestion outcomes. result is one of the Result* values.
type Observer interface {
	OnSample(result string)
}

const (
	ResultStored         = "stored"
	ResultUnknownAlert   = "unknown_alert"
	ResultFinishedAlert  = "finished_alert"
	ResultForeignCourier = "foreign_courier"
)

// SetObserver installs o. Call before serving traffic.
func (i *Ingestor) SetObserver(o Observer) { i.observer = o }

func (i *Ingestor) observe(result string) {
	if i.observer != nil {
		i.observer.OnSample(result)
	}
}

// NewIngestor builds the ingestion path. statusRate uses the limiter
// format ("1-S", "30-M"); empty means DefaultStatusRate.
func NewIngestor(db *gorm.DB, bus events.Publisher, proj *presence.Projection, statusRate string, log *zap.Logger) (*Ingestor, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if statusRate == "" {
		statusRate = DefaultStatusRate
	}
	rate, err := limiter.NewRateFromFormatted(statusRate)
	if err != nil {
		return nil, fmt.Errorf("status rate %q: %w", statusRate, err)
	}
	return &Ingestor{
		db:       db,
		bus:      bus,
		presence: proj,
		status:   limiter.New(memory.NewStore(), rate),
		log:      log.Named("trajectory"),
	}, nil
}

// Ingest stores a sample for alertID. Samples for unknown or finished
// alerts are dropped: the returned sample is nil and so is the error.
func (i *Ingestor) Ingest(ctx context.Context, alertID uuid.UUID, s Sample) (*models.TrajectorySample, error) {
	return i.ingest(ctx, nil, alertID, s)
}

// IngestFrom is Ingest for a sample sent by actor. Samples from anyone but
// the courier who raised the alert are dropped.
func (i *Ingestor) IngestFrom(ctx context.Context, actor *auth.Identity, alertID uuid.UUID, s Sample) (*models.TrajectorySample, error) {
	if actor == nil {
		return nil, errs.Unauthorized("anonymous location sample")
	}
	return i.ingest(ctx, actor, alertID, s)
}

func (i *Ingestor) ingest(ctx context.Context, actor *auth.Identity, alertID uuid.UUID, s Sample) (*models.TrajectorySample, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}

	alert, sample, err := i.store(ctx, actor, alertID, s)
	if err != nil || sample == nil {
		return nil, err
	}
	i.observe(ResultStored)

	if _, err := i.bus.Publish(events.LocationTopic(alert.ID), events.LocationUpdate(sample)); err != nil {
		i.log.Warn("publish location failed", zap.String("alert_id", alertID.String()), zap.Error(err))
	}
	i.follow(ctx, alert.CourierID, sample.Lat, sample.Lon)
	return sample, nil
}

// store checks the alert and inserts the sample in one transaction under
// the alert's lock, so no sample lands after a close or cancel commits.
// A dropped sample comes back as nil with a nil error.
func (i *Ingestor) store(ctx context.Context, actor *auth.Identity, alertID uuid.UUID, s Sample) (*models.Alert, *models.TrajectorySample, error) {
	if i.locker != nil {
		unlock := i.locker.LockAlert(alertID)
		defer unlock()
	}

	var (
		alert  *models.Alert
		sample *models.TrajectorySample
	)
	err := i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := models.GetAlert(tx, alertID)
		if err != nil {
			if errs.IsNotFound(err) {
				i.log.Warn("dropping sample for unknown alert", zap.String("alert_id", alertID.String()))
				i.observe(ResultUnknownAlert)
				return nil
			}
			return err
		}
		if a.Status.IsTerminal() {
			i.log.Debug("dropping sample for finished alert",
				zap.String("alert_id", alertID.String()), zap.String("status", string(a.Status)))
			i.observe(ResultFinishedAlert)
			return nil
		}
		if actor != nil && !auth.OwnsAlert(actor, a) {
			i.log.Warn("dropping sample from non-owner",
				zap.String("alert_id", alertID.String()), zap.Uint("user_id", actor.UserID))
			i.observe(ResultForeignCourier)
			return nil
		}

		smp := &models.TrajectorySample{
			AlertID:  a.ID,
			Lat:      models.RoundCoord(s.Lat),
			Lon:      models.RoundCoord(s.Lon),
			Accuracy: s.Accuracy,
			Speed:    s.Speed,
		}
		if err := models.CreateTrajectorySample(tx, smp); err != nil {
			return err
		}
		alert, sample = a, smp
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return alert, sample, nil
}

// TrackCourier records a location outside of any alert.
func (i *Ingestor) TrackCourier(ctx context.Context, courierID uint, lat, lon float64) (*models.CourierProfile, error) {
	if !models.ValidCoord(lat, lon) {
		return nil, errs.Validation("coordinates out of range: %f,%f", lat, lon)
	}
	profile, err := i.presence.SetLocation(ctx, courierID, lat, lon)
	if err != nil {
		return nil, err
	}
	i.announce(ctx, profile)
	return profile, nil
}

// follow moves the courier's profile along with the alert's trajectory.
// The sample is already stored, so failures here are only logged.
func (i *Ingestor) follow(ctx context.Context, courierID uint, lat, lon float64) {
	profile, err := i.presence.SetLocation(ctx, courierID, lat, lon)
	if err != nil {
		i.log.Warn("profile location update failed", zap.Uint("courier_id", courierID), zap.Error(err))
		return
	}
	i.announce(ctx, profile)
}

func (i *Ingestor) announce(ctx context.Context, profile *models.CourierProfile) {
	lctx, err := i.status.Get(ctx, fmt.Sprintf("courier:%d", profile.CourierID))
	if err != nil {
		i.log.Debug("status limiter failed", zap.Error(err))
		return
	}
	if lctx.Reached {
		return
	}
	i.presence.Announce(ctx, profile)
}
