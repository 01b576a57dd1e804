package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"ridemarket/internal/domain/geo"
	"ridemarket/internal/general/clock"
	"ridemarket/internal/ports"
)

// Device error codes, as sent by the driver app.
const (
	CodePermissionDenied    = "PERMISSION_DENIED"
	CodePositionUnavailable = "POSITION_UNAVAILABLE"
	CodeTimeout             = "TIMEOUT"
)

// DeviceLocator answers position queries from the last fix each driver's
// device pushed. Fixes older than maxAge count as unavailable.
type DeviceLocator struct {
	clock  clock.Clock
	maxAge time.Duration

	mu     sync.Mutex
	fixes  map[string]*geo.Sample
	denied map[string]bool
}

var _ ports.Locator = (*DeviceLocator)(nil)

// NewDeviceLocator keeps fixes for maxAge.
func NewDeviceLocator(clk clock.Clock, maxAge time.Duration) *DeviceLocator {
	return &DeviceLocator{
		clock:  clk,
		maxAge: maxAge,
		fixes:  make(map[string]*geo.Sample),
		denied: make(map[string]bool),
	}
}

// Report stores a fix from the device. A fix also lifts an earlier
// permission denial.
func (l *DeviceLocator) Report(driverID string, point geo.Point, accuracyMeters *float64) error {
	sample, err := geo.NewSample(driverID, point, accuracyMeters, l.clock.Now())
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fixes[sample.DriverID] = sample
	delete(l.denied, sample.DriverID)
	return nil
}

// ReportError records a device-side failure.
func (l *DeviceLocator) ReportError(driverID, code string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case CodePermissionDenied:
		l.denied[driverID] = true
		delete(l.fixes, driverID)
	default:
		delete(l.fixes, driverID)
	}
}

// Forget drops everything known about a driver.
func (l *DeviceLocator) Forget(driverID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.fixes, driverID)
	delete(l.denied, driverID)
}

// CurrentPosition returns the latest fresh fix.
func (l *DeviceLocator) CurrentPosition(_ context.Context, driverID string) (geo.Point, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.denied[driverID] {
		return geo.Point{}, ports.ErrLocationPermissionDenied
	}
	sample, ok := l.fixes[driverID]
	if !ok || sample.Stale(l.clock.Now(), l.maxAge) {
		return geo.Point{}, ports.ErrLocationUnavailable
	}
	return sample.Point, nil
}
