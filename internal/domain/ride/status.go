package ride

import (
	"errors"
	"strings"
)

// Status is the lifecycle state of a ride.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusAccepted   Status = "ACCEPTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

var ErrInvalidStatus = errors.New("invalid ride status")

// ParseStatus normalizes (uppercases+trims) and validates a status string.
func ParseStatus(in string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(in)))
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidStatus
}

// Valid reports whether status is one of the allowed ride status constants.
func (status Status) Valid() bool {
	switch status {
	case StatusPending, StatusAccepted, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Status.
func (status Status) String() string {
	return string(status)
}

// CanTransitionTo specifies if the status can transition to the next status.
func (status Status) CanTransitionTo(next Status) bool {
	switch status {
	case StatusPending:
		return next == StatusAccepted || next == StatusCancelled

	case StatusAccepted:
		return next == StatusInProgress || next == StatusCancelled

	case StatusInProgress:
		return next == StatusCompleted

	default:
		return false
	}
}

// Next returns the status a driver advance moves to.
func (status Status) Next() (Status, error) {
	switch status {
	case StatusAccepted:
		return StatusInProgress, nil
	case StatusInProgress:
		return StatusCompleted, nil
	default:
		return "", ErrInvalidStatusTransition
	}
}

// Terminal indicates if the status is in a terminal/completed state.
func (status Status) Terminal() bool {
	return status == StatusCompleted || status == StatusCancelled
}

// Active reports whether a driver is on the way or on the trip.
func (status Status) Active() bool {
	return status == StatusAccepted || status == StatusInProgress
}

// Cancellable reports whether the ride can still be cancelled.
func (status Status) Cancellable() bool {
	return status == StatusPending || status == StatusAccepted
}
