package routing

import (
	"context"
	"encoding/json"

	"RiderGuard/internal/auth"
	"RiderGuard/internal/models"
	errs "RiderGuard/pkg/errors"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db      *gorm.DB
	planner Planner
	log     *zap.Logger
}

// NewService accepts a nil planner; route requests then fail as a
// dependency error.
func NewService(db *gorm.DB, planner Planner, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{db: db, planner: planner, log: log.Named("routing")}
}

// Offer is a stored bundle together with the routes it was built from.
type Offer struct {
	Route  *models.SafeRoute `json:"route"`
	Bundle *Bundle           `json:"routes"`
}

// Request plans origin to dest for the calling courier and stores the
// bundle with the fast variant selected.
func (s *Service) Request(ctx context.Context, actor *auth.Identity, origin, dest Point) (*Offer, error) {
	if !auth.IsCourier(actor) {
		return nil, errs.Unauthorized("only couriers can request routes")
	}
	if !models.ValidCoord(origin.Lat, origin.Lon) || !models.ValidCoord(dest.Lat, dest.Lon) {
		return nil, errs.Validation("origin and destination must be valid coordinates")
	}
	if s.planner == nil {
		return nil, errs.Transient(nil, "route planner is not configured")
	}

	bundle, err := s.planner.Plan(ctx, origin, dest)
	if err != nil {
		s.log.Warn("route planner failed", zap.Error(err))
		return nil, errs.Transient(err, "plan route")
	}

	fast, err := json.Marshal(bundle.Fast)
	if err != nil {
		return nil, err
	}
	safer, err := json.Marshal(bundle.Safer)
	if err != nil {
		return nil, err
	}

	route := &models.SafeRoute{
		CourierID:      actor.UserID,
		OriginLat:      models.RoundCoord(origin.Lat),
		OriginLon:      models.RoundCoord(origin.Lon),
		DestLat:        models.RoundCoord(dest.Lat),
		DestLon:        models.RoundCoord(dest.Lon),
		FastRoute:      datatypes.JSON(fast),
		SaferRoutes:    datatypes.JSON(safer),
		FastRiskScore:  bundle.Fast.RiskScore,
		SaferRiskScore: lowestRisk(bundle.Safer),
		Selected:       models.RouteVariantFast,
	}
	if err := models.CreateSafeRoute(s.db.WithContext(ctx), route); err != nil {
		return nil, err
	}
	return &Offer{Route: route, Bundle: bundle}, nil
}

// Select records which variant the courier chose.
func (s *Service) Select(ctx context.Context, actor *auth.Identity, routeID uint, variant string) (*models.SafeRoute, error) {
	if !auth.IsCourier(actor) {
		return nil, errs.Unauthorized("only couriers can select routes")
	}
	if variant != models.RouteVariantFast && variant != models.RouteVariantSafer {
		return nil, errs.Validation("unknown route variant %q", variant)
	}

	db := s.db.WithContext(ctx)
	route, err := models.GetSafeRoute(db, routeID)
	if err != nil {
		return nil, err
	}
	if route.CourierID != actor.UserID {
		return nil, errs.Unauthorized("route %d belongs to another courier", routeID)
	}
	if variant == models.RouteVariantSafer && lenJSONArray(route.SaferRoutes) == 0 {
		return nil, errs.Validation("route %d has no safer variant", routeID)
	}
	if err := models.SelectRouteVariant(db, route, variant); err != nil {
		return nil, err
	}
	return route, nil
}

func lowestRisk(routes []Route) float64 {
	if len(routes) == 0 {
		return 0
	}
	low := routes[0].RiskScore
	for _, r := range routes[1:] {
		if r.RiskScore < low {
			low = r.RiskScore
		}
	}
	return low
}

func lenJSONArray(raw datatypes.JSON) int {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return 0
	}
	return len(items)
}
