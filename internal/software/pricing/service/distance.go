package service

import (
	"context"
	"strings"
	"time"

	"ridemarket/internal/domain/geo"
	"ridemarket/internal/general/logger"
	"ridemarket/internal/ports"
)

// Measure is the outcome of one distance strategy.
type Measure struct {
	KM              float64
	Source          string
	OriginFull      string
	DestinationFull string
	OriginCoords    *geo.Point
	DestCoords      *geo.Point
}

// DistanceStrategy is one step of the distance chain. ok is false when the
// strategy has no answer and the next one should be tried.
type DistanceStrategy interface {
	Measure(ctx context.Context, in ports.EstimateInput) (m Measure, ok bool)
}

// RouteStrategy asks the route-distance service.
type RouteStrategy struct {
	Service ports.RouteService
	Timeout time.Duration
	Logger  *logger.Logger
}

func (s RouteStrategy) Measure(ctx context.Context, in ports.EstimateInput) (Measure, bool) {
	if s.Service == nil {
		return Measure{}, false
	}
	callCtx, cancel := withTimeout(ctx, s.Timeout)
	defer cancel()

	res, err := s.Service.Distance(callCtx, in.Origin, in.Destination)
	if err != nil {
		s.Logger.Warn(ctx, "quote_route_unavailable", "Route service failed, falling back", err, nil)
		return Measure{}, false
	}
	if res.DistanceKM <= 0 {
		s.Logger.Warn(ctx, "quote_route_empty", "Route service returned no distance", nil, map[string]any{
			"distance_km": res.DistanceKM,
		})
		return Measure{}, false
	}
	return Measure{
		KM:              res.DistanceKM,
		Source:          ports.DistanceSourceRoute,
		OriginFull:      res.OriginFull,
		DestinationFull: res.DestinationFull,
		OriginCoords:    in.OriginCoords,
		DestCoords:      in.DestCoords,
	}, true
}

// HaversineStrategy measures the great-circle distance scaled by a
// curvature factor. Missing coordinates are geocoded.
type HaversineStrategy struct {
	Geocoder        ports.Geocoder
	CurvatureFactor float64
	Timeout         time.Duration
	Logger          *logger.Logger
}

func (s HaversineStrategy) Measure(ctx context.Context, in ports.EstimateInput) (Measure, bool) {
	from := s.locate(ctx, in.OriginCoords, in.Origin)
	to := s.locate(ctx, in.DestCoords, in.Destination)
	if from == nil || to == nil {
		return Measure{}, false
	}
	km := geo.HaversineKM(*from, *to) * s.CurvatureFactor
	if km <= 0 {
		return Measure{}, false
	}
	s.Logger.Info(ctx, "quote_fallback_haversine", "Distance estimated from coordinates", map[string]any{
		"distance_km": km,
	})
	return Measure{
		KM:           km,
		Source:       ports.DistanceSourceHaversine,
		OriginCoords: from,
		DestCoords:   to,
	}, true
}

func (s HaversineStrategy) locate(ctx context.Context, known *geo.Point, address string) *geo.Point {
	if known != nil {
		return known
	}
	if s.Geocoder == nil || strings.TrimSpace(address) == "" {
		return nil
	}
	callCtx, cancel := withTimeout(ctx, s.Timeout)
	defer cancel()

	point, ok, err := s.Geocoder.Geocode(callCtx, address)
	if err != nil {
		s.Logger.Warn(ctx, "quote_geocode_failed", "Geocoding failed", err, nil)
		return nil
	}
	if !ok {
		return nil
	}
	return &point
}

// DefaultStrategy always answers with a fixed distance.
type DefaultStrategy struct {
	KM     float64
	Logger *logger.Logger
}

func (s DefaultStrategy) Measure(ctx context.Context, in ports.EstimateInput) (Measure, bool) {
	s.Logger.Info(ctx, "quote_fallback_default", "Using default distance", map[string]any{"distance_km": s.KM})
	return Measure{
		KM:           s.KM,
		Source:       ports.DistanceSourceDefault,
		OriginCoords: in.OriginCoords,
		DestCoords:   in.DestCoords,
	}, true
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
