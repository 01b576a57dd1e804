package ride

import (
	"errors"
	"strings"
)

// EventType classifies user-facing ride notifications.
type EventType string

const (
	EventRideAccepted  EventType = "RIDE_ACCEPTED"
	EventRideStarted   EventType = "RIDE_STARTED"
	EventRideCompleted EventType = "RIDE_COMPLETED"
	EventRideCancelled EventType = "RIDE_CANCELLED"
	EventChatMessage   EventType = "CHAT_MESSAGE"
)

var ErrInvalidEventType = errors.New("invalid ride event type")

// ParseEventType normalizes (uppercases+trims) and validates an event type string.
func ParseEventType(input string) (EventType, error) {
	eventType := EventType(strings.ToUpper(strings.TrimSpace(input)))
	if eventType.Valid() {
		return eventType, nil
	}
	return "", ErrInvalidEventType
}

// Valid reports whether eventType is one of the allowed event type constants.
func (eventType EventType) Valid() bool {
	switch eventType {
	case EventRideAccepted,
		EventRideStarted,
		EventRideCompleted,
		EventRideCancelled,
		EventChatMessage:
		return true
	default:
		return false
	}
}

// String returns the string representation of the EventType.
func (eventType EventType) String() string {
	return string(eventType)
}

// EventForStatus maps a status entry to its notification type.
func EventForStatus(status Status) (EventType, bool) {
	switch status {
	case StatusAccepted:
		return EventRideAccepted, true
	case StatusInProgress:
		return EventRideStarted, true
	case StatusCompleted:
		return EventRideCompleted, true
	case StatusCancelled:
		return EventRideCancelled, true
	default:
		return "", false
	}
}
