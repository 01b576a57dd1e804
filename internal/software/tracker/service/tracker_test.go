package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ridemarket/internal/domain/geo"
	"ridemarket/internal/general/clock"
	"ridemarket/internal/general/memstore"
	"ridemarket/internal/general/testutil"
	"ridemarket/internal/ports"
	"ridemarket/internal/software/synclayer"
)

var t0 = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

type recordingRides struct {
	ports.RideService
	mu     sync.Mutex
	points []geo.Point
}

func (r *recordingRides) UpdateLiveLocation(_ context.Context, _, _ string, p geo.Point) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.points = append(r.points, p)
	return nil
}

func (r *recordingRides) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.points)
}

type countingLocator struct {
	ports.Locator
	calls atomic.Int32
}

func (c *countingLocator) CurrentPosition(ctx context.Context, driverID string) (geo.Point, error) {
	c.calls.Add(1)
	return c.Locator.CurrentPosition(ctx, driverID)
}

func setup(t *testing.T) (*clock.FakeClock, *synclayer.Layer, *DeviceLocator, *recordingRides) {
	t.Helper()
	clk := clock.Fake(t0)
	layer := synclayer.New(memstore.New(clk), nil)
	t.Cleanup(layer.Close)
	return clk, layer, NewDeviceLocator(clk, 3*DefaultInterval), &recordingRides{}
}

func TestTrackerSamplesWhileRideActive(t *testing.T) {
	clk, layer, locator, rides := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, _ = layer.Set(ctx, ports.CollectionRides, "r1", map[string]any{"driverId": "d1", "status": "ACCEPTED"}, false)
	if err := locator.Report("d1", geo.Point{Lat: 1, Lng: 1}, nil); err != nil {
		t.Fatal(err)
	}

	tracker := NewTracker(nil, clk, layer, rides, locator, DefaultInterval)
	errc := make(chan error, 1)
	go func() { errc <- tracker.Run(ctx, "d1") }()

	testutil.Eventually(t, 2*time.Second, func() bool { return rides.count() == 1 }, "first sample")
	clk.WaitForTimers(1)
	clk.Advance(DefaultInterval)
	testutil.Eventually(t, 2*time.Second, func() bool { return rides.count() == 2 }, "second sample")

	_, _ = layer.Update(ctx, ports.CollectionRides, "r1", ports.Patch{"status": "COMPLETED"})
	testutil.Eventually(t, 2*time.Second, func() bool { return clk.PendingCount() == 0 }, "sampler stopped")
	clk.Advance(3 * DefaultInterval)
	if rides.count() != 2 {
		t.Fatalf("sampled after completion: %d", rides.count())
	}

	cancel()
	if err := testutil.RequireReceive(t, errc, 2*time.Second, "run returned"); err != nil {
		t.Fatal(err)
	}
}

func TestTrackerSkipsUnavailableTicks(t *testing.T) {
	clk, layer, locator, rides := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, _ = layer.Set(ctx, ports.CollectionRides, "r1", map[string]any{"driverId": "d1", "status": "IN_PROGRESS"}, false)

	counting := &countingLocator{Locator: locator}
	go func() { _ = NewTracker(nil, clk, layer, rides, counting, DefaultInterval).Run(ctx, "d1") }()

	testutil.Eventually(t, 2*time.Second, func() bool { return counting.calls.Load() == 1 }, "first attempt")
	clk.WaitForTimers(1)

	_ = locator.Report("d1", geo.Point{Lat: 2, Lng: 2}, nil)
	clk.Advance(DefaultInterval)
	testutil.Eventually(t, 2*time.Second, func() bool { return rides.count() == 1 }, "sample after fix")
}

func TestTrackerResumesAfterPermissionRegranted(t *testing.T) {
	clk, layer, locator, rides := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, _ = layer.Set(ctx, ports.CollectionRides, "r1", map[string]any{"driverId": "d1", "status": "ACCEPTED"}, false)
	locator.ReportError("d1", CodePermissionDenied)

	counting := &countingLocator{Locator: locator}
	go func() { _ = NewTracker(nil, clk, layer, rides, counting, DefaultInterval).Run(ctx, "d1") }()

	testutil.Eventually(t, 2*time.Second, func() bool { return counting.calls.Load() == 1 }, "first attempt")
	clk.WaitForTimers(1)
	clk.Advance(DefaultInterval)
	testutil.Eventually(t, 2*time.Second, func() bool { return counting.calls.Load() == 2 }, "still polling while denied")
	if rides.count() != 0 {
		t.Fatal("wrote a position without permission")
	}

	if err := locator.Report("d1", geo.Point{Lat: 5, Lng: 5}, nil); err != nil {
		t.Fatal(err)
	}
	clk.Advance(DefaultInterval)
	testutil.Eventually(t, 2*time.Second, func() bool { return rides.count() == 1 }, "sample after re-grant")
	clk.Advance(DefaultInterval)
	testutil.Eventually(t, 2*time.Second, func() bool { return rides.count() == 2 }, "sampling continues")
}

func TestDeviceLocator(t *testing.T) {
	clk := clock.Fake(t0)
	l := NewDeviceLocator(clk, 15*time.Second)
	ctx := context.Background()

	if _, err := l.CurrentPosition(ctx, "d1"); !errors.Is(err, ports.ErrLocationUnavailable) {
		t.Fatalf("err = %v", err)
	}
	_ = l.Report("d1", geo.Point{Lat: 3, Lng: 4}, nil)
	if p, err := l.CurrentPosition(ctx, "d1"); err != nil || p.Lat != 3 {
		t.Fatalf("p=%v err=%v", p, err)
	}

	clk.Advance(16 * time.Second)
	if _, err := l.CurrentPosition(ctx, "d1"); !errors.Is(err, ports.ErrLocationUnavailable) {
		t.Fatalf("stale fix served: %v", err)
	}

	l.ReportError("d1", CodePermissionDenied)
	if _, err := l.CurrentPosition(ctx, "d1"); !errors.Is(err, ports.ErrLocationPermissionDenied) {
		t.Fatalf("err = %v", err)
	}
	if err := l.Report("d1", geo.Point{Lat: 91, Lng: 0}, nil); err == nil {
		t.Fatal("invalid latitude accepted")
	}
}
