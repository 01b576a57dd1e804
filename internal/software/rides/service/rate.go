package service

import (
	"context"
	"errors"

	"ridemarket/internal/domain/ride"
	"ridemarket/internal/general/apperr"
	"ridemarket/internal/ports"
	"ridemarket/internal/software/records"
)

const ratingAttempts = 3

// Rate records the rider's score once the trip is completed. A second
// rating is rejected. The score is also folded into the driver's average.
func (service *rideService) Rate(ctx context.Context, rideID, callerID string, score int) error {
	ctx = service.logger.WithRideID(ctx, rideID)
	actor, r, err := service.load(ctx, rideID, callerID)
	if err != nil {
		return err
	}
	if err := canRate(actor, r); err != nil {
		return err
	}
	if err := ride.ValidateScore(score); err != nil {
		return apperr.E(apperr.KindInvalid, "ride.rate", err.Error(), err)
	}
	if r.Status != ride.StatusCompleted {
		return apperr.E(apperr.KindInvalidState, "ride.rate", "only completed rides can be rated", ride.ErrNotCompleted)
	}
	if r.Rating != nil {
		return apperr.E(apperr.KindInvalidState, "ride.rate", "ride already rated", ride.ErrAlreadyRated)
	}

	_, err = service.layer.Update(ctx, ports.CollectionRides, r.ID,
		ports.Patch{ride.FieldRating: score},
		ports.Equals(ride.FieldStatus, ride.StatusCompleted),
		ports.Absent(ride.FieldRating),
	)
	if errors.Is(err, ports.ErrPreconditionFailed) {
		return apperr.E(apperr.KindConflict, "ride.rate", "ride already rated", ride.ErrAlreadyRated)
	}
	if err != nil {
		return err
	}

	service.logger.Info(ctx, "ride_rated", "Ride rated", map[string]any{"score": score})
	if r.HasDriver() {
		if err := service.addDriverRating(ctx, *r.DriverID, score); err != nil {
			service.logger.Error(ctx, "driver_rating_update_failed", "Failed to update driver rating", err, map[string]any{
				"driver_id": *r.DriverID,
			})
		}
	}
	return nil
}

// addDriverRating updates the aggregate with a compare-and-set on the count.
func (service *rideService) addDriverRating(ctx context.Context, driverID string, score int) error {
	var err error
	for range ratingAttempts {
		driver, loadErr := records.User(ctx, service.layer, driverID)
		if loadErr != nil {
			return loadErr
		}
		cond := ports.Absent("ratingCount")
		if driver.RatingCount != nil {
			cond = ports.Equals("ratingCount", *driver.RatingCount)
		}
		driver.AddRating(score)

		_, err = service.layer.Update(ctx, ports.CollectionUsers, driverID, ports.Patch{
			"rating":      *driver.Rating,
			"ratingCount": *driver.RatingCount,
		}, cond)
		if !errors.Is(err, ports.ErrPreconditionFailed) {
			return err
		}
	}
	return err
}
