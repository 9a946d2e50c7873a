package presence

import (
	"context"
	"testing"
	"time"

	"RiderGuard/internal/events"
	"RiderGuard/internal/models"
	"RiderGuard/internal/testutil"
	"RiderGuard/pkg/cache"
	errs "RiderGuard/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newProjection(t *testing.T) (*Projection, *testutil.Recorder, cache.Cache) {
	db := testutil.NewDB(t)
	rec := &testutil.Recorder{}
	c := cache.NewGoCache(cache.Config{DefaultTTL: time.Minute})
	return New(db, c, rec, time.Minute, nil), rec, c
}

func TestSetEmergencyStampsAndAnnounces(t *testing.T) {
	p, rec, _ := newProjection(t)
	ctx := context.Background()
	courier := testutil.SeedCourier(t, p.db, "Luis")

	battery := 42
	profile, err := p.SetEmergency(ctx, courier.ID, 19.4, -99.15, &battery)
	require.NoError(t, err)
	assert.Equal(t, models.CourierEmergency, profile.Status)
	require.NotNil(t, profile.LastLat)
	assert.InDelta(t, 19.4, *profile.LastLat, 1e-6)
	assert.Equal(t, 42, *profile.Battery)
	assert.NotNil(t, profile.StatusUpdatedAt)
	assert.NotNil(t, profile.LocationUpdatedAt)
	assert.NotNil(t, profile.BatteryUpdatedAt)

	assert.Equal(t, []string{events.TypeCourierStatus}, rec.Types(events.TopicMonitoring))
}

func TestLocationAndBatteryAreQuietButCached(t *testing.T) {
	p, rec, _ := newProjection(t)
	ctx := context.Background()
	courier := testutil.SeedCourier(t, p.db, "Marta")

	_, err := p.SetLocation(ctx, courier.ID, 19.1234567, -99.7654321)
	require.NoError(t, err)
	_, err = p.SetBattery(ctx, courier.ID, 80)
	require.NoError(t, err)
	assert.Empty(t, rec.Messages(""))

	snap, err := p.Snapshot(ctx, courier.ID)
	require.NoError(t, err)
	assert.InDelta(t, 19.123457, *snap.LastLat, 1e-9)
	assert.Equal(t, 80, *snap.Battery)
}

func TestSetterValidation(t *testing.T) {
	p, _, _ := newProjection(t)
	ctx := context.Background()
	courier := testutil.SeedCourier(t, p.db, "Rosa")

	_, err := p.SetBattery(ctx, courier.ID, 101)
	assert.True(t, errs.IsValidation(err))
	_, err = p.SetLocation(ctx, courier.ID, 91, 0)
	assert.True(t, errs.IsValidation(err))
	_, err = p.SetStatus(ctx, courier.ID, models.CourierEmergency)
	assert.True(t, errs.IsValidation(err))

	_, err = p.SetAvailable(ctx, 9999)
	assert.True(t, errs.IsNotFound(err))
}

func TestQuietCopyDefersAnnouncement(t *testing.T) {
	p, rec, _ := newProjection(t)
	ctx := context.Background()
	courier := testutil.SeedCourier(t, p.db, "Iker")

	var profile *models.CourierProfile
	err := p.db.Transaction(func(tx *gorm.DB) error {
		var err error
		profile, err = p.In(tx).SetEmergency(ctx, courier.ID, 1, 2, nil)
		return err
	})
	require.NoError(t, err)
	assert.Empty(t, rec.Messages(""))

	p.Announce(ctx, profile)
	assert.Equal(t, []string{events.TypeCourierStatus}, rec.Types(events.TopicMonitoring))

	snap, err := p.Snapshot(ctx, courier.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CourierEmergency, snap.Status)
}

func TestMarkStaleOffline(t *testing.T) {
	p, rec, _ := newProjection(t)
	ctx := context.Background()
	idle := testutil.SeedCourier(t, p.db, "idle")
	busy := testutil.SeedCourier(t, p.db, "busy")
	fresh := testutil.SeedCourier(t, p.db, "fresh")

	_, err := p.SetLocation(ctx, idle.ID, 19, -99)
	require.NoError(t, err)
	_, err = p.SetEmergency(ctx, busy.ID, 19, -99, nil)
	require.NoError(t, err)
	rec.Reset()

	cutoff := time.Now().UTC().Add(time.Second)
	_, err = p.SetLocation(ctx, fresh.ID, 19, -99)
	require.NoError(t, err)
	// fresh reports after the cutoff
	require.NoError(t, p.db.Model(&models.CourierProfile{}).Where("courier_id = ?", fresh.ID).
		Update("location_updated_at", cutoff.Add(time.Minute)).Error)

	marked, err := p.MarkStaleOffline(ctx, cutoff)
	require.NoError(t, err)
	require.Len(t, marked, 1)
	assert.Equal(t, idle.ID, marked[0].CourierID)
	assert.Equal(t, models.CourierOffline, marked[0].Status)

	snap, err := p.Snapshot(ctx, busy.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CourierEmergency, snap.Status)
	assert.Equal(t, []string{events.TypeCourierStatus}, rec.Types(events.TopicMonitoring))
}

func TestSetStatusCannotLeaveEmergency(t *testing.T) {
	p, _, _ := newProjection(t)
	ctx := context.Background()
	courier := testutil.SeedCourier(t, p.db, "Olga")

	profile, err := p.SetStatus(ctx, courier.ID, models.CourierOnDelivery)
	require.NoError(t, err)
	assert.Equal(t, models.CourierOnDelivery, profile.Status)

	_, err = p.SetEmergency(ctx, courier.ID, 19.4, -99.1, nil)
	require.NoError(t, err)
	_, err = p.SetStatus(ctx, courier.ID, models.CourierAvailable)
	assert.True(t, errs.IsInvalidTransition(err))

	_, err = p.SetStatus(ctx, 9999, models.CourierAvailable)
	assert.True(t, errs.IsNotFound(err))
}
