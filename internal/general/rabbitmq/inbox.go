package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"ridemarket/internal/domain/ride"
	"ridemarket/internal/general/contracts"
)

// NotificationInbox gives this replica a copy of every notification so it
// can reach the recipients connected to it. The durable notifications
// queue is left to push workers.
type NotificationInbox struct {
	client   *Client
	name     string
	prefetch int
}

// NewNotificationInbox names the consumer after the replica.
func NewNotificationInbox(client *Client, replica string, prefetch int) *NotificationInbox {
	return &NotificationInbox{client: client, name: "inbox-" + replica, prefetch: prefetch}
}

// Run hands each notification to deliver until ctx ends.
func (inbox *NotificationInbox) Run(ctx context.Context, deliver func(*ride.Event)) error {
	handler := func(_ context.Context, d amqp.Delivery) error {
		event, err := decodeNotification(d.Body)
		if err != nil {
			return err
		}
		deliver(event)
		return nil
	}
	return inbox.client.runConsumer(ctx, "notification-inbox", func() error {
		return inbox.client.ConsumeBroadcast(ctx, contracts.ExchangeNotifications, "#", inbox.name, inbox.prefetch, handler)
	})
}

func decodeNotification(body []byte) (*ride.Event, error) {
	var msg contracts.NotificationMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("inbox: decode notification: %w", err)
	}
	if msg.RecipientID == "" {
		return nil, fmt.Errorf("inbox: notification without recipient")
	}
	return msg.Event(), nil
}
