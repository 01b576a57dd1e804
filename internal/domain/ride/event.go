package ride

import (
	"errors"
	"maps"
	"strings"
	"time"
)

// Event is a notification addressed to one ride participant.
type Event struct {
	Type        EventType      `json:"type"`
	RideID      string         `json:"ride_id"`
	RecipientID string         `json:"recipient_id"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	Status      Status         `json:"status,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

var (
	ErrRideIDRequired    = errors.New("ride id is required")
	ErrRecipientRequired = errors.New("recipient id is required")
)

// NewEvent constructs a new domain Event.
func NewEvent(eventType EventType, rideID, recipientID, title, body string, now time.Time) (*Event, error) {
	if rideID = strings.TrimSpace(rideID); rideID == "" {
		return nil, ErrRideIDRequired
	}
	if recipientID = strings.TrimSpace(recipientID); recipientID == "" {
		return nil, ErrRecipientRequired
	}
	if !eventType.Valid() {
		return nil, ErrInvalidEventType
	}

	return &Event{
		Type:        eventType,
		RideID:      rideID,
		RecipientID: recipientID,
		Title:       strings.TrimSpace(title),
		Body:        strings.TrimSpace(body),
		CreatedAt:   now.UTC(),
	}, nil
}

// WithField sets/overwrites a single key in Data.
func (event *Event) WithField(key string, value any) *Event {
	if event.Data == nil {
		event.Data = make(map[string]any)
	}
	event.Data[key] = value
	return event
}

// Clone returns a copy with its own Data map.
func (event *Event) Clone() *Event {
	cp := *event
	if event.Data != nil {
		cp.Data = make(map[string]any, len(event.Data))
		maps.Copy(cp.Data, event.Data)
	}
	return &cp
}
