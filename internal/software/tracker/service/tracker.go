package service

import (
	"context"
	"errors"
	"time"

	"ridemarket/internal/domain/ride"
	"ridemarket/internal/general/apperr"
	"ridemarket/internal/general/clock"
	"ridemarket/internal/general/logger"
	"ridemarket/internal/ports"
	"ridemarket/internal/software/synclayer"
)

// DefaultInterval is the sampling period while a ride is active.
const DefaultInterval = 5 * time.Second

// Tracker samples a driver's position onto their active ride.
type Tracker struct {
	logger   *logger.Logger
	clock    clock.Clock
	layer    *synclayer.Layer
	rides    ports.RideService
	locator  ports.Locator
	interval time.Duration
}

// NewTracker wires a tracker.
func NewTracker(
	logger *logger.Logger,
	clk clock.Clock,
	layer *synclayer.Layer,
	rides ports.RideService,
	locator ports.Locator,
	interval time.Duration,
) *Tracker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Tracker{logger: logger, clock: clk, layer: layer, rides: rides, locator: locator, interval: interval}
}

// ActiveRideQuery selects a driver's ride in the ACCEPTED or IN_PROGRESS phase.
func ActiveRideQuery(driverID string) ports.Query {
	return ports.Query{
		Filters: []ports.Filter{
			ports.Where(ride.FieldDriverID, ports.OpEq, driverID),
			ports.Where(ride.FieldStatus, ports.OpIn, []any{ride.StatusAccepted.String(), ride.StatusInProgress.String()}),
		},
		OrderBy: ride.FieldCreatedAt,
		Desc:    true,
		Limit:   1,
	}
}

// Run follows the driver's active ride and samples while there is one.
// Sampling stops as soon as the ride leaves the active phase. Run returns
// when ctx ends.
func (t *Tracker) Run(ctx context.Context, driverID string) error {
	sub, err := t.layer.SubscribeQuery(ctx, ports.CollectionRides, ActiveRideQuery(driverID))
	if err != nil {
		return err
	}
	defer sub.Close()

	var current string
	halt := func() {}
	defer func() { halt() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-sub.Updates():
			if !ok {
				if err := sub.Err(); err != nil {
					return err
				}
				return nil
			}
			next := ""
			if doc := snap.Doc(); doc != nil {
				next = doc.ID
			}
			if next == current {
				continue
			}
			halt()
			halt, current = func() {}, ""
			if next == "" {
				t.logger.Debug(ctx, "tracker_idle", "No active ride, sampling stopped", map[string]any{"driver_id": driverID})
				continue
			}
			halt, current = t.startSampler(ctx, driverID, next), next
		}
	}
}

// startSampler runs sample in its own goroutine. The returned func cancels it
// and waits for it to exit.
func (t *Tracker) startSampler(ctx context.Context, driverID, rideID string) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		t.sample(ctx, driverID, rideID)
	}()
	return func() {
		cancel()
		<-done
	}
}

// sample writes the driver's position every interval until ctx ends or the
// ride stops being active. A permission denial skips ticks until the device
// sends a fix again.
func (t *Tracker) sample(ctx context.Context, driverID, rideID string) {
	ctx = t.logger.WithRideID(ctx, rideID)
	ticker := t.clock.NewTicker(t.interval)
	defer ticker.Stop()

	t.logger.Info(ctx, "tracker_started", "Sampling driver position", map[string]any{"driver_id": driverID})
	wasDenied := false
	for {
		keep, denied := t.sampleOnce(ctx, driverID, rideID)
		if !keep {
			return
		}
		switch {
		case denied && !wasDenied:
			t.logger.Warn(ctx, "tracker_permission_denied", "Location permission denied, waiting for the device", ports.ErrLocationPermissionDenied, map[string]any{"driver_id": driverID})
		case !denied && wasDenied:
			t.logger.Info(ctx, "tracker_permission_restored", "Location permission restored", map[string]any{"driver_id": driverID})
		}
		wasDenied = denied

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// sampleOnce reports whether sampling should continue and whether the device
// currently denies location access.
func (t *Tracker) sampleOnce(ctx context.Context, driverID, rideID string) (keep, denied bool) {
	point, err := t.locator.CurrentPosition(ctx, driverID)
	switch {
	case errors.Is(err, ports.ErrLocationPermissionDenied):
		return true, true
	case errors.Is(err, ports.ErrLocationUnavailable):
		t.logger.Debug(ctx, "tracker_position_unavailable", "No position this tick", nil)
		return true, false
	case err != nil:
		t.logger.Warn(ctx, "tracker_locator_failed", "Locator failed", err, nil)
		return true, false
	}

	err = t.rides.UpdateLiveLocation(ctx, rideID, driverID, point)
	switch {
	case err == nil:
		return true, false
	case errors.Is(err, apperr.ErrInvalidState), errors.Is(err, apperr.ErrForbidden), errors.Is(err, apperr.ErrNotFound):
		t.logger.Info(ctx, "tracker_stopped", "Ride no longer active", map[string]any{"driver_id": driverID})
		return false, false
	case errors.Is(err, context.Canceled):
		return false, false
	default:
		t.logger.Warn(ctx, "tracker_write_failed", "Failed to store live location", err, nil)
		return true, false
	}
}
