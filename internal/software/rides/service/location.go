package service

import (
	"context"
	"errors"

	"ridemarket/internal/domain/geo"
	"ridemarket/internal/domain/ride"
	"ridemarket/internal/general/apperr"
	"ridemarket/internal/ports"
	"ridemarket/internal/software/records"
)

// UpdateLiveLocation writes the driver's position onto an active ride. It
// touches no other field.
func (service *rideService) UpdateLiveLocation(ctx context.Context, rideID, driverID string, point geo.Point) error {
	if err := point.Validate(); err != nil {
		return apperr.E(apperr.KindInvalid, "ride.location", err.Error(), err)
	}
	actor, err := service.actors.Resolve(ctx, driverID)
	if err != nil {
		return err
	}

	// a concurrent ACCEPTED -> IN_PROGRESS step invalidates the first read
	for attempt := 0; attempt < 2; attempt++ {
		r, err := records.Ride(ctx, service.layer, rideID)
		if err != nil {
			return err
		}
		if err := canUpdateLocation(actor, r); err != nil {
			return err
		}
		if !r.Status.Active() {
			return apperr.E(apperr.KindInvalidState, "ride.location", "ride is not active", nil)
		}

		_, err = service.layer.Update(ctx, ports.CollectionRides, rideID,
			ports.Patch{ride.FieldDriverCurrentCoords: point},
			ports.Equals(ride.FieldStatus, r.Status),
			ports.Equals(ride.FieldDriverID, actor.ID),
		)
		if !errors.Is(err, ports.ErrPreconditionFailed) {
			return err
		}
	}
	return apperr.E(apperr.KindConflict, "ride.location", "ride changed concurrently", nil)
}
