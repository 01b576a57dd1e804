package service

import (
	"context"

	"ridemarket/internal/domain/ride"
	"ridemarket/internal/general/apperr"
	"ridemarket/internal/ports"
)

// Advance moves the ride one step: ACCEPTED to IN_PROGRESS, IN_PROGRESS
// to COMPLETED. Only the assigned driver may call it.
func (service *rideService) Advance(ctx context.Context, rideID, callerID string) (ride.Status, error) {
	ctx = service.logger.WithRideID(ctx, rideID)
	actor, r, err := service.load(ctx, rideID, callerID)
	if err != nil {
		return "", err
	}
	if err := canAdvance(actor, r); err != nil {
		return "", err
	}

	next, err := r.Status.Next()
	if err != nil {
		return "", apperr.E(apperr.KindInvalidState, "ride.advance", "ride cannot advance from "+r.Status.String(), err)
	}
	if err := service.transition(ctx, r, next, nil, ports.Equals(ride.FieldDriverID, actor.ID)); err != nil {
		return "", err
	}
	service.notifyStatus(ctx, r, next, actor.ID)
	return next, nil
}

// Cancel ends a PENDING or ACCEPTED ride on behalf of the rider or the
// assigned driver.
func (service *rideService) Cancel(ctx context.Context, rideID, callerID string) error {
	ctx = service.logger.WithRideID(ctx, rideID)
	actor, r, err := service.load(ctx, rideID, callerID)
	if err != nil {
		return err
	}
	if err := canCancel(actor, r); err != nil {
		return err
	}
	if !r.Status.Cancellable() {
		return invalidState("ride.cancel", r.Status, ride.StatusCancelled)
	}

	if err := service.transition(ctx, r, ride.StatusCancelled, ports.Patch{ride.FieldCancelledBy: actor.ID}); err != nil {
		return err
	}
	service.notifyStatus(ctx, r, ride.StatusCancelled, actor.ID)
	return nil
}

// Override lets an operator settle a dispute by cancelling an open ride
// or completing a trip in progress. It stays inside the transition graph.
func (service *rideService) Override(ctx context.Context, rideID, operatorID string, target ride.Status) error {
	ctx = service.logger.WithRideID(ctx, rideID)
	actor, r, err := service.load(ctx, rideID, operatorID)
	if err != nil {
		return err
	}
	if err := canOverride(actor); err != nil {
		return err
	}
	if target != ride.StatusCancelled && target != ride.StatusCompleted {
		return apperr.E(apperr.KindInvalid, "ride.override", "override target must be CANCELLED or COMPLETED", nil)
	}
	if !r.Status.CanTransitionTo(target) {
		return invalidState("ride.override", r.Status, target)
	}

	var extra ports.Patch
	if target == ride.StatusCancelled {
		extra = ports.Patch{ride.FieldCancelledBy: actor.ID}
	}
	from := r.Status
	if err := service.transition(ctx, r, target, extra); err != nil {
		return err
	}

	service.logger.Info(ctx, "ride_overridden", "Operator override applied", map[string]any{
		"operator_id": actor.ID,
		"from":        from.String(),
		"to":          target.String(),
	})
	service.notifyStatus(ctx, r, target, actor.ID)
	return nil
}
