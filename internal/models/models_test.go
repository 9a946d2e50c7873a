package models_test

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"RiderGuard/internal/models"
	"RiderGuard/internal/testutil"
	errs "RiderGuard/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAlertKind(t *testing.T) {
	k, ok := models.ParseAlertKind("panico")
	assert.True(t, ok)
	assert.Equal(t, models.AlertKindPanic, k)

	k, ok = models.ParseAlertKind("accident")
	assert.True(t, ok)
	assert.Equal(t, models.AlertKindAccident, k)

	_, ok = models.ParseAlertKind("fire")
	assert.False(t, ok)
}

func TestAlertStatusTerminal(t *testing.T) {
	assert.False(t, models.AlertPending.IsTerminal())
	assert.False(t, models.AlertInAttention.IsTerminal())
	assert.True(t, models.AlertFalseAlarm.IsTerminal())
	assert.True(t, models.AlertClosed.IsTerminal())
	assert.True(t, models.AlertResolved.IsTerminal())
	assert.True(t, models.AlertResolved.IsValid())
	assert.False(t, models.AlertStatus("archived").IsValid())
}

func TestAlertRoundTrip(t *testing.T) {
	db := testutil.NewDB(t)
	courier := testutil.SeedCourier(t, db, "Ana")

	battery := 42
	alert := &models.Alert{
		CourierID:  courier.ID,
		Kind:       models.AlertKindPanic,
		Status:     models.AlertPending,
		Lat:        models.RoundCoord(19.4000004),
		Lon:        models.RoundCoord(-99.15),
		Battery:    &battery,
		SensorData: map[string]interface{}{"accel_g": 3.2},
	}
	require.NoError(t, models.CreateAlert(db, alert))
	assert.NotEqual(t, uuid.Nil, alert.ID)

	got, err := models.GetAlert(db, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, 19.4, got.Lat)
	assert.Equal(t, -99.15, got.Lon)
	require.NotNil(t, got.Courier)
	assert.Equal(t, "Ana", got.Courier.Name)
	assert.Equal(t, json.Number("3.2"), got.SensorData["accel_g"])
	raw, err := json.Marshal(got.SensorData)
	require.NoError(t, err)
	assert.JSONEq(t, `{"accel_g": 3.2}`, string(raw))

	_, err = models.GetAlert(db, uuid.New())
	assert.True(t, errs.IsNotFound(err))

	n, err := models.CountAlertsByStatus(db, models.ActiveAlertStatuses...)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestIncidentClose(t *testing.T) {
	created := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	inc := &models.Incident{Status: models.IncidentOpen, CreatedAt: created}

	assert.True(t, inc.Close(created.Add(90*time.Second)))
	require.NotNil(t, inc.ResponseDuration())
	assert.Equal(t, 90*time.Second, *inc.ResponseDuration())

	assert.False(t, inc.Close(created.Add(time.Hour)))
	assert.Equal(t, 90*time.Second, *inc.ResponseDuration())
}

func TestGetOrCreateIncidentIsOnePerAlert(t *testing.T) {
	db := testutil.NewDB(t)
	courier := testutil.SeedCourier(t, db, "Ana")
	alert := &models.Alert{CourierID: courier.ID, Kind: models.AlertKindPanic, Status: models.AlertPending}
	require.NoError(t, models.CreateAlert(db, alert))

	first, created, err := models.GetOrCreateIncident(db, alert.ID, 7)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := models.GetOrCreateIncident(db, alert.ID, 8)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, uint(7), second.OperatorID)

	// the unique index rejects a second row written behind the helper's back
	dup := &models.Incident{AlertID: alert.ID, OperatorID: 9, Status: models.IncidentOpen}
	assert.Error(t, db.Create(dup).Error)
}

func TestLogEntriesOrdered(t *testing.T) {
	db := testutil.NewDB(t)
	for _, text := range []string{"first", "second", "third"} {
		_, err := models.AppendLogEntry(db, 1, 2, text)
		require.NoError(t, err)
	}
	entries, err := models.ListLogEntries(db, 1)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "first", entries[0].Action)
	assert.Equal(t, "third", entries[2].Action)
	assert.False(t, entries[0].Timestamp.IsZero())
}

func TestTrajectoryOrdered(t *testing.T) {
	db := testutil.NewDB(t)
	courier := testutil.SeedCourier(t, db, "Ana")
	alert := &models.Alert{CourierID: courier.ID, Kind: models.AlertKindAccident, Status: models.AlertPending}
	require.NoError(t, models.CreateAlert(db, alert))

	for i := 0; i < 3; i++ {
		require.NoError(t, models.CreateTrajectorySample(db, &models.TrajectorySample{
			AlertID: alert.ID, Lat: models.RoundCoord(19.4 + float64(i)*0.001), Lon: -99.15,
		}))
	}
	samples, err := models.ListTrajectory(db, alert.ID)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, 19.4, samples[0].Lat)
	assert.Equal(t, 19.402, samples[2].Lat)
}

func TestProfileUpdatesAndStale(t *testing.T) {
	db := testutil.NewDB(t)
	a := testutil.SeedCourier(t, db, "Ana")
	b := testutil.SeedCourier(t, db, "Beto")

	old := time.Now().UTC().Add(-time.Hour)
	lat, lon := 19.4, -99.15
	_, err := models.UpdateProfile(db, a.ID, map[string]interface{}{
		"last_lat": lat, "last_lon": lon, "location_updated_at": old,
	})
	require.NoError(t, err)
	_, err = models.UpdateProfile(db, b.ID, map[string]interface{}{
		"status": models.CourierEmergency, "location_updated_at": old,
	})
	require.NoError(t, err)

	stale, err := models.ListStaleProfiles(db, time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, a.ID, stale[0].CourierID)

	_, err = models.UpdateProfile(db, 999, map[string]interface{}{"status": models.CourierOffline})
	assert.True(t, errs.IsNotFound(err))
}

func TestConcurrentWritesShareMemoryDB(t *testing.T) {
	db := testutil.NewDB(t)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := models.AppendLogEntry(db, 1, uint(i), "line")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	entries, err := models.ListLogEntries(db, 1)
	require.NoError(t, err)
	assert.Len(t, entries, 10)
}
