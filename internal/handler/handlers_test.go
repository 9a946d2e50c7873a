package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"RiderGuard/internal/alerting"
	"RiderGuard/internal/auth"
	"RiderGuard/internal/models"
	"RiderGuard/internal/presence"
	"RiderGuard/internal/routing"
	"RiderGuard/internal/session"
	"RiderGuard/internal/testutil"
	"RiderGuard/internal/trajectory"
	"RiderGuard/pkg/cache"
	"RiderGuard/pkg/i18n"
	"RiderGuard/pkg/metrics"
	"RiderGuard/pkg/sse"
	"RiderGuard/pkg/websocket"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const secret = "0123456789abcdef0123456789abcdef"

type fixture struct {
	db        *gorm.DB
	engine    *gin.Engine
	tokens    *auth.TokenManager
	courier   string
	operator  string
	admin     string
	courierID uint
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	hub := websocket.NewHub(nil)
	t.Cleanup(hub.Close)
	store := cache.NewGoCache(cache.Config{DefaultTTL: time.Minute})
	proj := presence.New(db, store, hub, time.Minute, nil)
	alerts := alerting.NewService(db, hub, proj, nil, alerting.Options{}, nil)
	ing, err := trajectory.NewIngestor(db, hub, proj, "", nil)
	require.NoError(t, err)
	ing.SetLocker(alerts)
	tr, err := i18n.NewI18nSupport("es")
	require.NoError(t, err)
	tm := auth.NewTokenManager(secret, "riderguard", time.Hour)

	h := NewHandlers(Deps{
		DB:       db,
		Alerts:   alerts,
		Ingest:   ing,
		Presence: proj,
		Sessions: session.NewManager(hub, db, ing, alerts, nil),
		Routes:   routing.NewService(db, nil, nil),
		Hub:      hub,
		Streamer: sse.NewStreamer(hub, time.Second),
		Tokens:   tm,
		I18n:     tr,
		Metrics:  metrics.NewMetrics(),
		Cache:    store,
	})
	engine := gin.New()
	h.Register(engine, "/api")

	c := testutil.SeedCourier(t, db, "Ana")
	op := testutil.SeedOperator(t, db, "Carla")
	adm := &models.User{Name: "Root", Role: models.RoleAdministrator, Active: true}
	require.NoError(t, models.CreateUser(db, adm))

	issue := func(id uint, role string) string {
		tok, err := tm.Issue(id, role)
		require.NoError(t, err)
		return tok
	}
	return &fixture{
		db:        db,
		engine:    engine,
		tokens:    tm,
		courier:   issue(c.ID, models.RoleCourier),
		operator:  issue(op.ID, models.RoleOperator),
		admin:     issue(adm.ID, models.RoleAdministrator),
		courierID: c.ID,
	}
}

type reply struct {
	Code int
	Body map[string]interface{}
}

func (f *fixture) do(t *testing.T, method, path, token string, body interface{}, headers ...string) reply {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Language", "en")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)

	out := reply{Code: rec.Code}
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(rec.Body.Bytes(), &out.Body)
	}
	return out
}

func data(t *testing.T, r reply) map[string]interface{} {
	t.Helper()
	d, ok := r.Body["data"].(map[string]interface{})
	require.True(t, ok, "no data object in %v", r.Body)
	return d
}

var panicBody = map[string]interface{}{"kind": "panico", "lat": 19.40, "lon": -99.15, "battery": 42}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	r := f.do(t, http.MethodGet, "/api/system/health", "", nil)
	assert.Equal(t, http.StatusOK, r.Code)
	assert.Equal(t, "healthy", r.Body["status"])
	assert.Equal(t, float64(0), r.Body["active_alerts"])
}

func TestAuthenticationRequired(t *testing.T) {
	f := newFixture(t)
	r := f.do(t, http.MethodGet, "/api/alerts/active", "", nil)
	assert.Equal(t, http.StatusUnauthorized, r.Code)
}

func TestAlertLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)

	r := f.do(t, http.MethodPost, "/api/alerts", f.courier, panicBody)
	require.Equal(t, http.StatusCreated, r.Code, r.Body)
	assert.Equal(t, "Alert created. Help is on the way.", r.Body["message"])
	alert := data(t, r)["alert"].(map[string]interface{})
	id := alert["id"].(string)
	assert.Equal(t, "pending", alert["status"])

	// couriers cannot attend
	r = f.do(t, http.MethodPost, "/api/alerts/"+id+"/attend", f.courier, nil)
	assert.Equal(t, http.StatusForbidden, r.Code)
	assert.Equal(t, "You are not allowed to do this.", r.Body["error"])

	r = f.do(t, http.MethodPost, "/api/alerts/"+id+"/attend", f.operator, nil)
	require.Equal(t, http.StatusOK, r.Code, r.Body)
	assert.Equal(t, "in_attention", data(t, r)["alert"].(map[string]interface{})["status"])

	r = f.do(t, http.MethodGet, "/api/alerts/active", f.operator, nil)
	require.Equal(t, http.StatusOK, r.Code)
	assert.Len(t, r.Body["data"], 1)

	r = f.do(t, http.MethodPost, "/api/alerts/"+id+"/close", f.operator, map[string]string{"notes": "resolved on site"})
	require.Equal(t, http.StatusOK, r.Code, r.Body)
	d := data(t, r)
	assert.Equal(t, "closed", d["alert"].(map[string]interface{})["status"])
	assert.Equal(t, "closed", d["incident"].(map[string]interface{})["status"])

	// a second close is an accepted no-op
	r = f.do(t, http.MethodPost, "/api/alerts/"+id+"/close", f.operator, nil)
	require.Equal(t, http.StatusOK, r.Code)
	assert.Equal(t, false, data(t, r)["changed"])
	assert.Equal(t, "Alert was already closed.", r.Body["message"])

	// cancelling a closed alert is refused
	r = f.do(t, http.MethodPost, "/api/alerts/"+id+"/cancel", f.courier, nil)
	assert.Equal(t, http.StatusConflict, r.Code)

	r = f.do(t, http.MethodGet, "/api/alerts/"+id, f.operator, nil)
	require.Equal(t, http.StatusOK, r.Code)
	logs := data(t, r)["log"].([]interface{})
	require.NotEmpty(t, logs)

	profile, err := models.GetProfile(f.db, f.courierID)
	require.NoError(t, err)
	assert.Equal(t, models.CourierAvailable, profile.Status)
}

func TestCreateAlertIsIdempotent(t *testing.T) {
	f := newFixture(t)
	r := f.do(t, http.MethodPost, "/api/alerts", f.courier, panicBody, "Idempotency-Key", "press-1")
	require.Equal(t, http.StatusCreated, r.Code)
	r = f.do(t, http.MethodPost, "/api/alerts", f.courier, panicBody, "Idempotency-Key", "press-1")
	assert.Equal(t, http.StatusConflict, r.Code)

	var n int64
	require.NoError(t, f.db.Model(&models.Alert{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestCreateAlertValidation(t *testing.T) {
	f := newFixture(t)
	r := f.do(t, http.MethodPost, "/api/alerts", f.courier, map[string]interface{}{"kind": "panico"})
	assert.Equal(t, http.StatusBadRequest, r.Code)
	assert.Equal(t, "The request is incomplete or invalid.", r.Body["error"])

	r = f.do(t, http.MethodPost, "/api/alerts/not-a-uuid/attend", f.operator, nil)
	assert.Equal(t, http.StatusBadRequest, r.Code)
}

func TestIncidentLogAndCaseRef(t *testing.T) {
	f := newFixture(t)
	r := f.do(t, http.MethodPost, "/api/alerts", f.courier, panicBody)
	require.Equal(t, http.StatusCreated, r.Code)
	id := data(t, r)["alert"].(map[string]interface{})["id"].(string)

	r = f.do(t, http.MethodPost, "/api/alerts/"+id+"/attend", f.operator, nil)
	require.Equal(t, http.StatusOK, r.Code)
	incID := data(t, r)["incident"].(map[string]interface{})["id"].(float64)
	base := "/api/incidents/" + jsonNumber(incID)

	r = f.do(t, http.MethodPost, base+"/log", f.operator, map[string]string{"text": "called the courier"})
	require.Equal(t, http.StatusCreated, r.Code, r.Body)
	assert.Equal(t, "Log entry added.", r.Body["message"])

	r = f.do(t, http.MethodPut, base+"/case-ref", f.operator, map[string]string{"ref": "C5-2291"})
	require.Equal(t, http.StatusOK, r.Code, r.Body)
	inc := data(t, r)["incident"].(map[string]interface{})
	assert.Equal(t, true, inc["authorities_contacted"])

	r = f.do(t, http.MethodPost, "/api/incidents/999/log", f.operator, map[string]string{"text": "x"})
	assert.Equal(t, http.StatusNotFound, r.Code)
}

func TestCourierEndpoints(t *testing.T) {
	f := newFixture(t)

	r := f.do(t, http.MethodPost, "/api/courier/location", f.courier, map[string]float64{"lat": 19.43, "lon": -99.13})
	require.Equal(t, http.StatusOK, r.Code, r.Body)
	assert.Equal(t, "Location updated.", r.Body["message"])

	r = f.do(t, http.MethodPost, "/api/courier/battery", f.courier, map[string]int{"level": 55})
	require.Equal(t, http.StatusOK, r.Code)
	assert.Equal(t, float64(55), data(t, r)["battery"])

	r = f.do(t, http.MethodPost, "/api/courier/battery", f.courier, map[string]int{"level": 150})
	assert.Equal(t, http.StatusBadRequest, r.Code)

	r = f.do(t, http.MethodPut, "/api/courier/status", f.courier, map[string]string{"status": "on_delivery"})
	require.Equal(t, http.StatusOK, r.Code)
	assert.Equal(t, "on_delivery", data(t, r)["status"])

	r = f.do(t, http.MethodGet, "/api/courier/profile", f.courier, nil)
	require.Equal(t, http.StatusOK, r.Code)
	assert.Equal(t, "on_delivery", data(t, r)["status"])

	// operators are not couriers
	r = f.do(t, http.MethodGet, "/api/courier/profile", f.operator, nil)
	assert.Equal(t, http.StatusForbidden, r.Code)
}

func TestLocationWithAlertFeedsTrajectory(t *testing.T) {
	f := newFixture(t)
	r := f.do(t, http.MethodPost, "/api/alerts", f.courier, panicBody)
	require.Equal(t, http.StatusCreated, r.Code)
	id := data(t, r)["alert"].(map[string]interface{})["id"].(string)

	r = f.do(t, http.MethodPost, "/api/courier/location", f.courier, map[string]interface{}{
		"lat": 19.41, "lon": -99.16, "speed": 3.5, "alert_id": id,
	})
	require.Equal(t, http.StatusOK, r.Code, r.Body)
	assert.Equal(t, true, data(t, r)["recorded"])

	r = f.do(t, http.MethodPost, "/api/courier/location", f.courier, map[string]interface{}{
		"lat": 19.41, "lon": -99.16, "alert_id": "0b6c7a3e-8f1b-4a55-9d44-8f9a1c2d3e4f",
	})
	require.Equal(t, http.StatusOK, r.Code)
	assert.Equal(t, false, data(t, r)["recorded"])

	r = f.do(t, http.MethodGet, "/api/alerts/"+id+"/trajectory", f.operator, nil)
	require.Equal(t, http.StatusOK, r.Code, r.Body)
	samples, ok := r.Body["data"].([]interface{})
	require.True(t, ok)
	require.Len(t, samples, 1)
	assert.Equal(t, 3.5, samples[0].(map[string]interface{})["speed"])

	r = f.do(t, http.MethodGet, "/api/alerts/"+id+"/trajectory?from=yesterday", f.operator, nil)
	assert.Equal(t, http.StatusBadRequest, r.Code)

	// emergency status only ends with the alert
	r = f.do(t, http.MethodPut, "/api/courier/status", f.courier, map[string]string{"status": "available"})
	assert.Equal(t, http.StatusConflict, r.Code)
}

func TestTrustedContacts(t *testing.T) {
	f := newFixture(t)
	r := f.do(t, http.MethodPost, "/api/courier/contacts", f.courier, map[string]string{"name": "Mamá", "phone": "+52 55 1234 5678"})
	require.Equal(t, http.StatusCreated, r.Code, r.Body)

	r = f.do(t, http.MethodPost, "/api/courier/contacts", f.courier, map[string]string{"name": "Nadie"})
	assert.Equal(t, http.StatusBadRequest, r.Code)

	r = f.do(t, http.MethodGet, "/api/courier/contacts", f.courier, nil)
	require.Equal(t, http.StatusOK, r.Code)
	assert.Len(t, r.Body["data"], 1)
}

func TestRoutesWithoutPlanner(t *testing.T) {
	f := newFixture(t)
	r := f.do(t, http.MethodPost, "/api/courier/routes", f.courier, map[string]interface{}{
		"origin":      map[string]float64{"lat": 19.4, "lon": -99.1},
		"destination": map[string]float64{"lat": 19.5, "lon": -99.2},
	})
	assert.Equal(t, http.StatusBadGateway, r.Code)
}

func TestNoticesAndAdmin(t *testing.T) {
	f := newFixture(t)

	r := f.do(t, http.MethodPost, "/api/notices", f.operator, map[string]string{"message": "rain on Reforma", "level": "warning"})
	assert.Equal(t, http.StatusOK, r.Code)
	r = f.do(t, http.MethodPost, "/api/notices", f.courier, map[string]string{"message": "x"})
	assert.Equal(t, http.StatusForbidden, r.Code)

	r = f.do(t, http.MethodPost, "/api/admin/users", f.operator, map[string]string{"name": "Eva", "role": "courier"})
	assert.Equal(t, http.StatusForbidden, r.Code)

	r = f.do(t, http.MethodPost, "/api/admin/users", f.admin, map[string]string{"name": "Eva", "phone": "+52 55 0000 0000", "role": "courier"})
	require.Equal(t, http.StatusCreated, r.Code, r.Body)
	userID := data(t, r)["id"].(float64)

	r = f.do(t, http.MethodPost, "/api/admin/users/"+jsonNumber(userID)+"/token", f.admin, nil)
	require.Equal(t, http.StatusOK, r.Code)
	tok := data(t, r)["token"].(string)

	// the new courier can act with the minted token and has a profile
	r = f.do(t, http.MethodGet, "/api/courier/profile", tok, nil)
	require.Equal(t, http.StatusOK, r.Code)
	assert.Equal(t, "available", data(t, r)["status"])

	r = f.do(t, http.MethodPost, "/api/admin/users", f.admin, map[string]string{"name": "Eva", "role": "pilot"})
	assert.Equal(t, http.StatusBadRequest, r.Code)
}

func TestFeedAuthorizationHappensBeforeUpgrade(t *testing.T) {
	f := newFixture(t)
	r := f.do(t, http.MethodGet, "/api/ws/alerts", f.courier, nil)
	assert.Equal(t, http.StatusForbidden, r.Code)

	r = f.do(t, http.MethodGet, "/api/ws/location/0b6c7a3e-8f1b-4a55-9d44-8f9a1c2d3e4f", f.operator, nil)
	assert.Equal(t, http.StatusNotFound, r.Code)
}

func TestLocationFeedLooksUpAlertOnce(t *testing.T) {
	f := newFixture(t)
	r := f.do(t, http.MethodPost, "/api/alerts", f.courier, panicBody)
	require.Equal(t, http.StatusCreated, r.Code)
	id := data(t, r)["alert"].(map[string]interface{})["id"].(string)

	var lookups int64
	require.NoError(t, f.db.Callback().Query().After("gorm:query").Register("test:count_alert_lookups", func(tx *gorm.DB) {
		if tx.Statement.Table == "alerts" {
			atomic.AddInt64(&lookups, 1)
		}
	}))

	// no upgrade headers: authorization passes, the upgrade itself is refused
	r = f.do(t, http.MethodGet, "/api/ws/location/"+id, f.operator, nil)
	assert.Equal(t, http.StatusBadRequest, r.Code)
	assert.Equal(t, int64(1), atomic.LoadInt64(&lookups))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func jsonNumber(v float64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
