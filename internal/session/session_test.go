package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"RiderGuard/internal/auth"
	"RiderGuard/internal/events"
	"RiderGuard/internal/models"
	"RiderGuard/internal/presence"
	"RiderGuard/internal/testutil"
	"RiderGuard/internal/trajectory"
	errs "RiderGuard/pkg/errors"
	"RiderGuard/pkg/websocket"

	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixedStatus int64

func (f fixedStatus) ActiveCount(context.Context) (int64, error) { return int64(f), nil }

type fixture struct {
	db       *gorm.DB
	hub      *websocket.Hub
	mgr      *Manager
	alert    *models.Alert
	courier  *auth.Identity
	operator *auth.Identity
}

func newFixture(t *testing.T) *fixture {
	db := testutil.NewDB(t)
	hub := websocket.NewHub(nil)
	t.Cleanup(hub.Close)

	ing, err := trajectory.NewIngestor(db, hub, presence.New(db, nil, hub, time.Minute, nil), "", nil)
	require.NoError(t, err)

	c := testutil.SeedCourier(t, db, "Ana")
	op := testutil.SeedOperator(t, db, "Carla")
	alert := &models.Alert{CourierID: c.ID, Kind: models.AlertKindPanic, Status: models.AlertPending, Lat: 19.4, Lon: -99.15}
	require.NoError(t, models.CreateAlert(db, alert))

	return &fixture{
		db:       db,
		hub:      hub,
		mgr:      NewManager(hub, db, ing, fixedStatus(3), nil),
		alert:    alert,
		courier:  &auth.Identity{UserID: c.ID, Role: models.RoleCourier},
		operator: &auth.Identity{UserID: op.ID, Role: models.RoleOperator},
	}
}

// join attaches a socketless connection the way Serve would.
func (f *fixture) join(t *testing.T, id *auth.Identity, feed Feed) *websocket.Connection {
	t.Helper()
	plan, err := f.mgr.Authorize(context.Background(), id, feed, f.alert.ID)
	require.NoError(t, err)
	conn := websocket.NewConnection(f.hub, nil, "u", id.Role, plan.Handler)
	require.NoError(t, f.hub.Attach(conn, plan.Topics...))
	t.Cleanup(func() { f.hub.Unregister(conn) })
	return conn
}

func next(t *testing.T, conn *websocket.Connection) map[string]interface{} {
	t.Helper()
	select {
	case data := <-conn.Send:
		var out map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &out))
		return out
	case <-time.After(2 * time.Second):
		t.Fatal("no message")
		return nil
	}
}

func TestAuthorize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mgr.Authorize(ctx, nil, FeedAlerts, uuid.Nil)
	assert.True(t, errs.IsUnauthorized(err))

	_, err = f.mgr.Authorize(ctx, f.courier, FeedAlerts, uuid.Nil)
	assert.True(t, errs.IsUnauthorized(err))
	_, err = f.mgr.Authorize(ctx, f.courier, FeedMonitoring, uuid.Nil)
	assert.True(t, errs.IsUnauthorized(err))

	plan, err := f.mgr.Authorize(ctx, f.operator, FeedAlerts, uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, []string{events.TopicAlerts}, plan.Topics)

	admin := &auth.Identity{UserID: 77, Role: models.RoleAdministrator}
	plan, err = f.mgr.Authorize(ctx, admin, FeedMonitoring, uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, []string{events.TopicMonitoring}, plan.Topics)

	_, err = f.mgr.Authorize(ctx, f.operator, FeedLocation, uuid.New())
	assert.True(t, errs.IsNotFound(err))

	stranger := &auth.Identity{UserID: 500, Role: models.RoleCourier}
	_, err = f.mgr.Authorize(ctx, stranger, FeedLocation, f.alert.ID)
	assert.True(t, errs.IsUnauthorized(err))

	plan, err = f.mgr.Authorize(ctx, f.courier, FeedLocation, f.alert.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{events.LocationTopic(f.alert.ID)}, plan.Topics)

	_, err = f.mgr.Authorize(ctx, f.operator, Feed("everything"), uuid.Nil)
	assert.True(t, errs.IsValidation(err))
}

func TestLocationCommandReachesWatchers(t *testing.T) {
	f := newFixture(t)
	device := f.join(t, f.courier, FeedLocation)
	watcher := f.join(t, f.operator, FeedLocation)

	device.Receive([]byte(`{"type":"location","lat":19.401,"lon":-99.149,"speed":3.5}`))

	for _, conn := range []*websocket.Connection{watcher, device} {
		msg := next(t, conn)
		assert.Equal(t, events.TypeLocationUpdate, msg["type"])
		assert.InDelta(t, 19.401, msg["lat"], 1e-9)
		assert.Equal(t, 3.5, msg["speed"])
	}

	samples, err := models.ListTrajectory(f.db, f.alert.ID)
	require.NoError(t, err)
	assert.Len(t, samples, 1)
}

func TestBadCommandsAreIgnored(t *testing.T) {
	f := newFixture(t)
	device := f.join(t, f.courier, FeedLocation)
	watcher := f.join(t, f.operator, FeedLocation)

	device.Receive([]byte(`not json`))
	device.Receive([]byte(`{"type":"location","lat":"north"}`))
	device.Receive([]byte(`{"type":"location","lat":19.4}`))
	device.Receive([]byte(`{"type":"location","lat":99.4,"lon":1}`))
	device.Receive([]byte(`{"type":"dance"}`))
	// operators watch, they do not report
	watcher.Receive([]byte(`{"type":"location","lat":19.4,"lon":-99.1}`))

	samples, err := models.ListTrajectory(f.db, f.alert.ID)
	require.NoError(t, err)
	assert.Empty(t, samples)
	assert.Equal(t, websocket.StateJoined, device.State())
	assert.Empty(t, watcher.Send)
}

func TestSystemStatusRequest(t *testing.T) {
	f := newFixture(t)
	conn := f.join(t, f.operator, FeedMonitoring)

	conn.Receive([]byte(`{"type":"system_status_request"}`))
	msg := next(t, conn)
	assert.Equal(t, events.TypeSystemStatus, msg["type"])
	assert.Equal(t, 3.0, msg["active_alert_count"])
}

func TestServeOverWebSocket(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := f.courier
		if r.URL.Query().Get("as") == "operator" {
			id = f.operator
		}
		feed := Feed(r.URL.Query().Get("feed"))
		plan, err := f.mgr.Authorize(r.Context(), id, feed, f.alert.ID)
		if err != nil {
			http.Error(w, err.Error(), errs.HTTPStatus(err))
			return
		}
		if _, err := f.mgr.Serve(w, r, id, feed, plan); err != nil {
			t.Logf("upgrade: %v", err)
		}
	}))
	defer srv.Close()
	base := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, resp, err := gws.DefaultDialer.Dial(base+"?feed=monitoring", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	ws, _, err := gws.DefaultDialer.Dial(base+"?feed=monitoring&as=operator", nil)
	require.NoError(t, err)
	defer ws.Close()

	require.Eventually(t, func() bool { return f.hub.GetTopicSubscribers(events.TopicMonitoring) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, ws.WriteJSON(map[string]string{"type": "system_status_request"}))

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]interface{}
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, events.TypeSystemStatus, msg["type"])

	ws.Close()
	require.Eventually(t, func() bool { return f.hub.GetTopicSubscribers(events.TopicMonitoring) == 0 }, 2*time.Second, 10*time.Millisecond)
}
