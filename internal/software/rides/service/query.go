package service

import (
	"context"

	"ridemarket/internal/domain/ride"
	"ridemarket/internal/general/apperr"
	"ridemarket/internal/ports"
	"ridemarket/internal/software/records"
)

// ListLimit bounds ride lists to the most recent entries.
const ListLimit = 100

// Get returns a ride the caller may see.
func (service *rideService) Get(ctx context.Context, rideID, callerID string) (*ride.Ride, error) {
	actor, r, err := service.load(ctx, rideID, callerID)
	if err != nil {
		return nil, err
	}
	if err := canView(actor, r); err != nil {
		return nil, err
	}
	return r, nil
}

// List returns the caller's most recent rides: their own as rider or
// driver, everything for operators.
func (service *rideService) List(ctx context.Context, callerID string) ([]ride.Ride, error) {
	actor, err := service.actors.Resolve(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if actor.Blocked {
		return nil, apperr.E(apperr.KindForbidden, "ride.list", "account is blocked", nil)
	}
	docs, err := service.layer.Query(ctx, ports.CollectionRides, ListQuery(actor.ID, actor.Role.IsDriver(), actor.Role.IsOperator()))
	if err != nil {
		return nil, err
	}
	return records.Rides(docs)
}

// ListQuery selects the rides shown to a user, newest first.
func ListQuery(userID string, asDriver, asOperator bool) ports.Query {
	q := ports.Query{OrderBy: ride.FieldCreatedAt, Desc: true, Limit: ListLimit}
	switch {
	case asOperator:
	case asDriver:
		q.Filters = []ports.Filter{ports.Where(ride.FieldDriverID, ports.OpEq, userID)}
	default:
		q.Filters = []ports.Filter{ports.Where(ride.FieldClientID, ports.OpEq, userID)}
	}
	return q
}

// ETA returns minutes until the driver reaches the current waypoint. ok is
// false when the ride is not active or positions are missing.
func (service *rideService) ETA(ctx context.Context, rideID, callerID string) (int, bool, error) {
	r, err := service.Get(ctx, rideID, callerID)
	if err != nil {
		return 0, false, err
	}
	minutes, ok := r.ETA(service.speedKMH)
	return minutes, ok, nil
}
