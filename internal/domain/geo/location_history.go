package geo

import (
	"errors"
	"strings"
	"time"
)

// Sample is a single device-reported driver position.
type Sample struct {
	DriverID       string
	Point          Point
	AccuracyMeters *float64
	RecordedAt     time.Time
}

var (
	ErrMissingDriverID    = errors.New("driver ID is missing")
	ErrNegativeAccuracy   = errors.New("accuracy_meters cannot be negative")
	ErrRecordedAtZeroTime = errors.New("recorded_at must be a valid timestamp")
)

// NewSample validates and constructs a Sample.
func NewSample(driverID string, point Point, accuracyMeters *float64, recordedAt time.Time) (*Sample, error) {
	sample := &Sample{
		DriverID:       strings.TrimSpace(driverID),
		Point:          point,
		AccuracyMeters: accuracyMeters,
		RecordedAt:     recordedAt.UTC(),
	}
	if err := sample.Validate(); err != nil {
		return nil, err
	}
	return sample, nil
}

// Validate checks invariants of the Sample.
func (sample *Sample) Validate() error {
	if sample.DriverID == "" {
		return ErrMissingDriverID
	}
	if err := sample.Point.Validate(); err != nil {
		return err
	}
	if sample.AccuracyMeters != nil && *sample.AccuracyMeters < 0 {
		return ErrNegativeAccuracy
	}
	if sample.RecordedAt.IsZero() {
		return ErrRecordedAtZeroTime
	}
	return nil
}

// Stale reports whether the sample is older than maxAge at now.
func (sample *Sample) Stale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(sample.RecordedAt) > maxAge
}
