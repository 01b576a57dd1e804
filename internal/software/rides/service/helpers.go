package service

import (
	"context"
	"errors"
	"fmt"

	"ridemarket/internal/domain/ride"
	"ridemarket/internal/domain/user"
	"ridemarket/internal/general/apperr"
	"ridemarket/internal/ports"
	"ridemarket/internal/software/records"
)

// load resolves the caller and reads the ride.
func (service *rideService) load(ctx context.Context, rideID, callerID string) (user.Actor, *ride.Ride, error) {
	actor, err := service.actors.Resolve(ctx, callerID)
	if err != nil {
		return user.Actor{}, nil, err
	}
	r, err := records.Ride(ctx, service.layer, rideID)
	if err != nil {
		return user.Actor{}, nil, err
	}
	return actor, r, nil
}

// transition writes a status change guarded by the status that was read.
func (service *rideService) transition(ctx context.Context, r *ride.Ride, next ride.Status, extra ports.Patch, conds ...ports.Precondition) error {
	if !r.Status.CanTransitionTo(next) {
		return invalidState("ride.transition", r.Status, next)
	}
	now := service.clock.Now().UTC()
	patch := ports.Patch{
		ride.FieldStatus:    next,
		ride.FieldUpdatedAt: now,
	}
	if stamp := ride.StampField(next); stamp != "" {
		patch[stamp] = now
	}
	for k, v := range extra {
		patch[k] = v
	}
	// presence is not ride data once the ride ends
	if next.Terminal() {
		patch[ride.FieldTyping] = nil
	}

	conds = append([]ports.Precondition{ports.Equals(ride.FieldStatus, r.Status)}, conds...)
	if _, err := service.layer.Update(ctx, ports.CollectionRides, r.ID, patch, conds...); err != nil {
		if errors.Is(err, ports.ErrPreconditionFailed) {
			return apperr.E(apperr.KindConflict, "ride.transition", "ride changed concurrently", err)
		}
		if errors.Is(err, ports.ErrNotFound) {
			return apperr.E(apperr.KindNotFound, "ride.transition", "ride not found", err)
		}
		return err
	}

	service.logger.Info(ctx, "ride_status_changed", fmt.Sprintf("Ride %s: %s -> %s", r.ID, r.Status, next), map[string]any{
		"ride_id": r.ID,
		"from":    r.Status.String(),
		"to":      next.String(),
	})
	r.Status = next
	return nil
}

func invalidState(op string, from, to ride.Status) error {
	return apperr.E(apperr.KindInvalidState, op, fmt.Sprintf("cannot move ride from %s to %s", from, to), ride.ErrInvalidStatusTransition)
}

// notifyStatus tells the participant who did not cause the change. The
// notifier is fire-and-forget.
func (service *rideService) notifyStatus(ctx context.Context, r *ride.Ride, status ride.Status, actorID string) {
	eventType, ok := ride.EventForStatus(status)
	if !ok || service.notifier == nil {
		return
	}
	title, body := statusMessage(r, status)
	for _, recipient := range []string{r.ClientID, derefString(r.DriverID)} {
		if recipient == "" || recipient == actorID {
			continue
		}
		event, err := ride.NewEvent(eventType, r.ID, recipient, title, body, service.clock.Now())
		if err != nil {
			continue
		}
		event.Status = status
		service.notifier.Notify(ctx, event)
	}
}

func statusMessage(r *ride.Ride, status ride.Status) (string, string) {
	switch status {
	case ride.StatusAccepted:
		return "Driver on the way", fmt.Sprintf("%s accepted your ride.", derefString(r.DriverName))
	case ride.StatusInProgress:
		return "Trip started", "Your trip to " + r.Destination + " has started."
	case ride.StatusCompleted:
		return "Trip completed", fmt.Sprintf("Total: %.2f", r.TotalPrice)
	case ride.StatusCancelled:
		return "Ride cancelled", "The ride from " + r.Origin + " was cancelled."
	default:
		return "", ""
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ptr[T any](v T) *T { return &v }
