package contracts

import (
	"testing"
	"time"

	"ridemarket/internal/domain/ride"
)

func TestNotificationRoutingKey(t *testing.T) {
	now := time.Date(2026, 7, 15, 9, 0, 0, 0, time.UTC)
	chat, _ := ride.NewEvent(ride.EventChatMessage, "r1", "u2", "Ana", "oi", now)
	status, _ := ride.NewEvent(ride.EventRideAccepted, "r1", "u1", "Accepted", "on the way", now)
	status.Status = ride.StatusAccepted

	cases := []struct {
		event *ride.Event
		want  string
	}{
		{chat, "chat.message.r1"},
		{status, "ride.status.ACCEPTED"},
	}
	for _, tc := range cases {
		if got := NotificationRoutingKey(tc.event); got != tc.want {
			t.Errorf("NotificationRoutingKey(%s) = %q, want %q", tc.event.Type, got, tc.want)
		}
	}

	msg := NewNotificationMessage(status)
	if msg.Type != "RIDE_ACCEPTED" || msg.Status != "ACCEPTED" || msg.RecipientID != "u1" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestNotificationMessageEventRoundTrip(t *testing.T) {
	now := time.Date(2026, 7, 15, 9, 0, 0, 0, time.UTC)
	event, _ := ride.NewEvent(ride.EventRideCompleted, "r9", "u1", "Done", "Thanks for riding", now)
	event.Status = ride.StatusCompleted
	event.WithField("price", 11.5)

	back := NewNotificationMessage(event).Event()
	if back.Type != event.Type || back.Status != event.Status || back.RecipientID != "u1" || back.Data["price"] != 11.5 {
		t.Fatalf("round trip = %+v", back)
	}
	if !back.CreatedAt.Equal(now) {
		t.Fatalf("created_at = %v", back.CreatedAt)
	}
}
