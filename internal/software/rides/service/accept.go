package service

import (
	"context"
	"strings"

	"ridemarket/internal/domain/ride"
	"ridemarket/internal/general/apperr"
	"ridemarket/internal/ports"
)

// Accept assigns the calling driver to a PENDING ride. The write only
// succeeds while the ride is still PENDING with no driver, so of two
// concurrent accepts exactly one wins and the other gets Conflict.
func (service *rideService) Accept(ctx context.Context, rideID, driverID string) error {
	ctx = service.logger.WithRideID(ctx, rideID)
	actor, r, err := service.load(ctx, rideID, driverID)
	if err != nil {
		return err
	}
	if err := canAccept(actor); err != nil {
		return err
	}

	switch {
	case r.Status == ride.StatusPending && !r.HasDriver():
	case r.HasDriver() && r.Status.Active():
		return apperr.E(apperr.KindConflict, "ride.accept", "ride already taken by another driver", ride.ErrAlreadyAssigned)
	default:
		return invalidState("ride.accept", r.Status, ride.StatusAccepted)
	}

	busy, err := service.layer.Query(ctx, ports.CollectionRides, ports.Query{
		Filters: []ports.Filter{
			ports.Where(ride.FieldDriverID, ports.OpEq, actor.ID),
			ports.Where(ride.FieldStatus, ports.OpIn, []any{ride.StatusAccepted.String(), ride.StatusInProgress.String()}),
		},
		Limit: 1,
	})
	if err != nil {
		return err
	}
	if len(busy) > 0 {
		return apperr.E(apperr.KindInvalidState, "ride.accept", "finish your current ride first", nil)
	}

	patch := ports.Patch{
		ride.FieldDriverID:   actor.ID,
		ride.FieldDriverName: actor.Name,
	}
	if p := actor.Profile; p != nil {
		if p.VehiclePlate != nil {
			patch[ride.FieldDriverPlate] = *p.VehiclePlate
		}
		if p.Avatar != nil {
			patch[ride.FieldDriverPhoto] = *p.Avatar
		}
		if strings.TrimSpace(p.Phone) != "" {
			patch[ride.FieldDriverPhone] = p.Phone
		}
	}
	if err := service.transition(ctx, r, ride.StatusAccepted, patch, ports.Absent(ride.FieldDriverID)); err != nil {
		return err
	}

	r.DriverID = ptr(actor.ID)
	r.DriverName = ptr(actor.Name)
	service.notifyStatus(ctx, r, ride.StatusAccepted, actor.ID)
	return nil
}
