package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"ridemarket/internal/general/contracts"
	"ridemarket/internal/ports"
)

// ChangeRelay publishes committed document changes to every replica and
// feeds the ones other replicas commit back into the local hub.
type ChangeRelay struct {
	client   *Client
	origin   string
	prefetch int
}

// NewChangeRelay binds the relay to this replica's origin id.
func NewChangeRelay(client *Client, origin string, prefetch int) *ChangeRelay {
	return &ChangeRelay{client: client, origin: origin, prefetch: prefetch}
}

// Publish sends change on the fanout exchange.
func (relay *ChangeRelay) Publish(_ context.Context, change ports.Change) error {
	body, err := json.Marshal(contracts.ChangeMessage{
		Change: change,
		Envelope: contracts.Envelope{
			Producer: relay.origin,
			SentAt:   time.Now().UTC(),
		},
	})
	if err != nil {
		return fmt.Errorf("relay: encode change: %w", err)
	}
	return relay.client.PublishMessage(contracts.ExchangeDocChanges, "", body)
}

// Run consumes changes until ctx ends, re-binding after connection loss.
// Own changes are skipped.
func (relay *ChangeRelay) Run(ctx context.Context, apply func(ports.Change)) error {
	handler := func(_ context.Context, d amqp.Delivery) error {
		change, remote, err := relay.decode(d.Body)
		if err != nil {
			return err
		}
		if remote {
			apply(change)
		}
		return nil
	}

	return relay.client.runConsumer(ctx, "change-relay", func() error {
		return relay.client.ConsumeBroadcast(ctx, contracts.ExchangeDocChanges, "", "relay-"+relay.origin, relay.prefetch, handler)
	})
}

// decode parses a relayed change and reports whether another replica made it.
func (relay *ChangeRelay) decode(body []byte) (ports.Change, bool, error) {
	var msg contracts.ChangeMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return ports.Change{}, false, fmt.Errorf("relay: decode change: %w", err)
	}
	if msg.Change.Collection == "" || msg.Change.ID == "" {
		return ports.Change{}, false, fmt.Errorf("relay: change without document key")
	}
	if msg.Producer == relay.origin || msg.Change.Origin == relay.origin {
		return msg.Change, false, nil
	}
	return msg.Change, true, nil
}
