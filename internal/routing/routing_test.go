package routing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"RiderGuard/internal/auth"
	"RiderGuard/internal/models"
	"RiderGuard/internal/testutil"
	errs "RiderGuard/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plannerServer(t *testing.T, status int) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/routes", r.URL.Path)
		var req planRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Bundle{
			Fast: Route{DistanceKm: 5.2, DurationMin: 15, RiskScore: 65.5,
				Path: [][2]float64{{req.Origin.Lat, req.Origin.Lon}, {req.Destination.Lat, req.Destination.Lon}}},
			Safer: []Route{
				{DistanceKm: 6.8, DurationMin: 20, RiskScore: 35.2, Path: [][2]float64{{1, 1}}},
				{DistanceKm: 7.1, DurationMin: 22, RiskScore: 28.8, Path: [][2]float64{{2, 2}}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRequestStoresBundle(t *testing.T) {
	db := testutil.NewDB(t)
	courier := testutil.SeedCourier(t, db, "Ana")
	actor := &auth.Identity{UserID: courier.ID, Role: models.RoleCourier}
	svc := NewService(db, NewHTTPPlanner(plannerServer(t, http.StatusOK).URL, 0), nil)
	ctx := context.Background()

	offer, err := svc.Request(ctx, actor, Point{19.41, -99.16}, Point{19.43, -99.13})
	require.NoError(t, err)
	assert.Len(t, offer.Bundle.Safer, 2)
	assert.Equal(t, models.RouteVariantFast, offer.Route.Selected)
	assert.Equal(t, 65.5, offer.Route.FastRiskScore)
	assert.Equal(t, 28.8, offer.Route.SaferRiskScore)

	stored, err := models.GetSafeRoute(db, offer.Route.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, lenJSONArray(stored.SaferRoutes))

	route, err := svc.Select(ctx, actor, offer.Route.ID, models.RouteVariantSafer)
	require.NoError(t, err)
	assert.Equal(t, models.RouteVariantSafer, route.Selected)

	other := &auth.Identity{UserID: courier.ID + 1, Role: models.RoleCourier}
	_, err = svc.Select(ctx, other, offer.Route.ID, models.RouteVariantFast)
	assert.True(t, errs.IsUnauthorized(err))
	_, err = svc.Select(ctx, actor, offer.Route.ID, "scenic")
	assert.True(t, errs.IsValidation(err))
	_, err = svc.Select(ctx, actor, 999, models.RouteVariantFast)
	assert.True(t, errs.IsNotFound(err))
}

func TestRequestPlannerFailure(t *testing.T) {
	db := testutil.NewDB(t)
	courier := testutil.SeedCourier(t, db, "Ana")
	actor := &auth.Identity{UserID: courier.ID, Role: models.RoleCourier}
	ctx := context.Background()

	svc := NewService(db, NewHTTPPlanner(plannerServer(t, http.StatusServiceUnavailable).URL, 0), nil)
	_, err := svc.Request(ctx, actor, Point{19.41, -99.16}, Point{19.43, -99.13})
	assert.True(t, errs.IsTransient(err))

	var n int64
	require.NoError(t, db.Model(&models.SafeRoute{}).Count(&n).Error)
	assert.Zero(t, n)

	_, err = NewService(db, nil, nil).Request(ctx, actor, Point{1, 1}, Point{2, 2})
	assert.True(t, errs.IsTransient(err))

	_, err = svc.Request(ctx, actor, Point{100, 1}, Point{2, 2})
	assert.True(t, errs.IsValidation(err))

	_, err = svc.Request(ctx, &auth.Identity{UserID: 1, Role: models.RoleOperator}, Point{1, 1}, Point{2, 2})
	assert.True(t, errs.IsUnauthorized(err))
}
