package contracts

import (
	"time"

	"ridemarket/internal/domain/ride"
)

// NotificationMessage is a user-facing alert for the push collaborator.
// Routing key: "ride.status.{status}" or "chat.message.{ride_id}" on ExchangeNotifications.
type NotificationMessage struct {
	Type        string         `json:"type"`
	RideID      string         `json:"ride_id"`
	RecipientID string         `json:"recipient_id"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	Status      string         `json:"status,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	Envelope
}

// NewNotificationMessage converts a domain event into its wire form.
func NewNotificationMessage(event *ride.Event) NotificationMessage {
	return NotificationMessage{
		Type:        event.Type.String(),
		RideID:      event.RideID,
		RecipientID: event.RecipientID,
		Title:       event.Title,
		Body:        event.Body,
		Status:      string(event.Status),
		Data:        event.Data,
		CreatedAt:   event.CreatedAt.UTC(),
	}
}

// NotificationRoutingKey returns the topic key for event.
func NotificationRoutingKey(event *ride.Event) string {
	if event.Type == ride.EventChatMessage {
		return RouteChatMessagePrefix + event.RideID
	}
	status := string(event.Status)
	if status == "" {
		status = event.Type.String()
	}
	return RouteRideStatusPrefix + status
}

// Event converts the wire form back into a domain event.
func (msg NotificationMessage) Event() *ride.Event {
	return &ride.Event{
		Type:        ride.EventType(msg.Type),
		RideID:      msg.RideID,
		RecipientID: msg.RecipientID,
		Title:       msg.Title,
		Body:        msg.Body,
		Status:      ride.Status(msg.Status),
		Data:        msg.Data,
		CreatedAt:   msg.CreatedAt,
	}
}
