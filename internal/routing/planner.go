// Package routing asks the route-risk planner for a fast route and safer
// alternatives and keeps the bundle a courier was offered.
package routing

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Route is one scored option. Path holds [lat, lon] pairs.
type Route struct {
	DistanceKm  float64      `json:"distance_km"`
	DurationMin float64      `json:"duration_min"`
	RiskScore   float64      `json:"risk_score"`
	Path        [][2]float64 `json:"path"`
}

type Bundle struct {
	Fast  Route   `json:"fast"`
	Safer []Route `json:"safer"`
}

// Planner scores routes between two points.
type Planner interface {
	Plan(ctx context.Context, origin, dest Point) (*Bundle, error)
}

// HTTPPlanner calls a planner service over HTTP.
type HTTPPlanner struct {
	client *resty.Client
}

func NewHTTPPlanner(baseURL string, timeout time.Duration) *HTTPPlanner {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(1).
		SetHeader("Accept", "application/json")
	return &HTTPPlanner{client: client}
}

type planRequest struct {
	Origin      Point `json:"origin"`
	Destination Point `json:"destination"`
}

func (p *HTTPPlanner) Plan(ctx context.Context, origin, dest Point) (*Bundle, error) {
	var out Bundle
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(planRequest{Origin: origin, Destination: dest}).
		SetResult(&out).
		Post("/routes")
	if err != nil {
		return nil, fmt.Errorf("route planner: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("route planner: status %d", resp.StatusCode())
	}
	if len(out.Fast.Path) == 0 {
		return nil, fmt.Errorf("route planner: empty fast route")
	}
	return &out, nil
}
