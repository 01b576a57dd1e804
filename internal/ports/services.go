package ports

import (
	"context"
	"errors"

	"ridemarket/internal/domain/geo"
	"ridemarket/internal/domain/ride"
)

// ----- Pricing collaborators -----

// RouteResult is the route-distance service answer.
type RouteResult struct {
	DistanceKM      float64
	OriginFull      string
	DestinationFull string
}

// RouteService resolves road distance between two free-text addresses.
type RouteService interface {
	Distance(ctx context.Context, origin, destination string) (RouteResult, error)
}

// Geocoder resolves an address to coordinates. ok is false when nothing matched.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (point geo.Point, ok bool, err error)
}

// TripEstimate is the trip-time collaborator answer. DurationMin is nil when
// the response omitted it.
type TripEstimate struct {
	DurationMin *int
	Explanation string
}

// TripEstimator produces a duration and short explanation for a trip.
type TripEstimator interface {
	Estimate(ctx context.Context, distanceKM float64, origin, destination string) (TripEstimate, error)
}

// ----- Device capabilities -----

var (
	ErrLocationPermissionDenied = errors.New("location permission denied")
	ErrLocationUnavailable      = errors.New("location unavailable")
)

// Locator reports the current position of a driver's device.
// It returns ErrLocationPermissionDenied or ErrLocationUnavailable on failure.
type Locator interface {
	CurrentPosition(ctx context.Context, driverID string) (geo.Point, error)
}

// Notifier dispatches user-visible alerts. Notify must never block.
type Notifier interface {
	Notify(ctx context.Context, event *ride.Event)
}
