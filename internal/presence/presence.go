// Package presence keeps the last known safety state of every courier.
package presence

import (
	"context"
	"fmt"
	"time"

	"RiderGuard/internal/events"
	"RiderGuard/internal/models"
	"RiderGuard/pkg/cache"
	errs "RiderGuard/pkg/errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Projection writes courier profiles with last-write-wins semantics.
// Status changes are announced on the monitoring feed; location and battery
// writes only refresh the snapshot cache.
type Projection struct {
	db    *gorm.DB
	cache cache.Cache
	bus   events.Publisher
	ttl   time.Duration
	log   *zap.Logger
	// set on copies bound to a transaction; nothing leaves the process
	// until the caller announces after commit
	quiet bool
}

// New creates a projection. snapshots and bus may be nil.
func New(db *gorm.DB, snapshots cache.Cache, bus events.Publisher, ttl time.Duration, log *zap.Logger) *Projection {
	if log == nil {
		log = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Projection{db: db, cache: snapshots, bus: bus, ttl: ttl, log: log.Named("presence")}
}

// In returns a quiet copy whose writes go through tx.
func (p *Projection) In(tx *gorm.DB) *Projection {
	cp := *p
	cp.db = tx
	cp.quiet = true
	return &cp
}

func (p *Projection) SetEmergency(ctx context.Context, courierID uint, lat, lon float64, battery *int) (*models.CourierProfile, error) {
	now := time.Now().UTC()
	fields := map[string]interface{}{
		"status":              models.CourierEmergency,
		"status_updated_at":   now,
		"last_lat":            lat,
		"last_lon":            lon,
		"location_updated_at": now,
	}
	if battery != nil {
		fields["battery"] = *battery
		fields["battery_updated_at"] = now
	}
	return p.write(ctx, courierID, fields, true)
}

func (p *Projection) SetAvailable(ctx context.Context, courierID uint) (*models.CourierProfile, error) {
	return p.setStatus(ctx, courierID, models.CourierAvailable)
}

func (p *Projection) SetOffline(ctx context.Context, courierID uint) (*models.CourierProfile, error) {
	return p.setStatus(ctx, courierID, models.CourierOffline)
}

// SetStatus lets a courier switch between available and on_delivery.
// Emergency is only entered through an alert.
func (p *Projection) SetStatus(ctx context.Context, courierID uint, status models.CourierStatus) (*models.CourierProfile, error) {
	switch status {
	case models.CourierAvailable, models.CourierOnDelivery, models.CourierOffline:
	default:
		return nil, errs.Validation("status %q cannot be set directly", status)
	}
	current, err := models.GetProfile(p.db.WithContext(ctx), courierID)
	if err != nil {
		return nil, err
	}
	// only the alert lifecycle moves a courier out of emergency
	if current.Status == models.CourierEmergency {
		return nil, errs.InvalidTransition("courier %d is in an emergency", courierID)
	}
	return p.setStatus(ctx, courierID, status)
}

func (p *Projection) setStatus(ctx context.Context, courierID uint, status models.CourierStatus) (*models.CourierProfile, error) {
	return p.write(ctx, courierID, map[string]interface{}{
		"status":            status,
		"status_updated_at": time.Now().UTC(),
	}, true)
}

func (p *Projection) SetLocation(ctx context.Context, courierID uint, lat, lon float64) (*models.CourierProfile, error) {
	if !models.ValidCoord(lat, lon) {
		return nil, errs.Validation("coordinates out of range: %f,%f", lat, lon)
	}
	return p.write(ctx, courierID, map[string]interface{}{
		"last_lat":            models.RoundCoord(lat),
		"last_lon":            models.RoundCoord(lon),
		"location_updated_at": time.Now().UTC(),
	}, false)
}

func (p *Projection) SetBattery(ctx context.Context, courierID uint, level int) (*models.CourierProfile, error) {
	if level < 0 || level > 100 {
		return nil, errs.Validation("battery level %d out of range 0-100", level)
	}
	return p.write(ctx, courierID, map[string]interface{}{
		"battery":            level,
		"battery_updated_at": time.Now().UTC(),
	}, false)
}

// Snapshot returns the profile, served from cache when possible.
func (p *Projection) Snapshot(ctx context.Context, courierID uint) (*models.CourierProfile, error) {
	if p.cache != nil && !p.quiet {
		var cached models.CourierProfile
		if cache.GetJSON(ctx, p.cache, snapshotKey(courierID), &cached) {
			return &cached, nil
		}
	}
	profile, err := models.GetProfile(p.db.WithContext(ctx), courierID)
	if err != nil {
		return nil, err
	}
	p.remember(ctx, profile)
	return profile, nil
}

// Announce refreshes the snapshot and publishes courier_status. Callers
// holding a quiet copy use it after their transaction commits.
func (p *Projection) Announce(ctx context.Context, profile *models.CourierProfile) {
	if profile == nil {
		return
	}
	p.remember(ctx, profile)
	if p.bus == nil {
		return
	}
	if _, err := p.bus.Publish(events.TopicMonitoring, events.CourierStatus(profile)); err != nil {
		p.log.Warn("publish courier status failed", zap.Uint("courier_id", profile.CourierID), zap.Error(err))
	}
}

// MarkStaleOffline moves couriers that have been silent since before to
// offline. Couriers in an emergency are never touched.
func (p *Projection) MarkStaleOffline(ctx context.Context, before time.Time) ([]models.CourierProfile, error) {
	db := p.db.WithContext(ctx)
	stale, err := models.ListStaleProfiles(db, before)
	if err != nil {
		return nil, err
	}

	var marked []models.CourierProfile
	now := time.Now().UTC()
	for _, s := range stale {
		ok, err := models.MarkProfileOffline(db, s.CourierID, before, now)
		if err != nil {
			return marked, err
		}
		if !ok {
			continue
		}
		profile, err := models.GetProfile(db, s.CourierID)
		if err != nil {
			return marked, err
		}
		marked = append(marked, *profile)
		if !p.quiet {
			p.Announce(ctx, profile)
		}
	}
	return marked, nil
}

func (p *Projection) write(ctx context.Context, courierID uint, fields map[string]interface{}, announce bool) (*models.CourierProfile, error) {
	profile, err := models.UpdateProfile(p.db.WithContext(ctx), courierID, fields)
	if err != nil {
		return nil, err
	}
	if p.quiet {
		return profile, nil
	}
	if announce {
		p.Announce(ctx, profile)
	} else {
		p.remember(ctx, profile)
	}
	return profile, nil
}

func (p *Projection) remember(ctx context.Context, profile *models.CourierProfile) {
	if p.cache == nil || p.quiet {
		return
	}
	if err := cache.SetJSON(ctx, p.cache, snapshotKey(profile.CourierID), profile, p.ttl); err != nil {
		p.log.Debug("snapshot cache write failed", zap.Uint("courier_id", profile.CourierID), zap.Error(err))
	}
}

func snapshotKey(courierID uint) string {
	return fmt.Sprintf("presence:%d", courierID)
}
