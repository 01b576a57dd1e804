package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"ridemarket/internal/general/contracts"
)

func declareTopology(ch *amqp.Channel) error {
	exchanges := []struct {
		name string
		kind string
	}{
		{contracts.ExchangeDocChanges, amqp.ExchangeFanout},
		{contracts.ExchangeNotifications, amqp.ExchangeTopic},
	}
	for _, ex := range exchanges {
		if err := ch.ExchangeDeclare(ex.name, ex.kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	if _, err := ch.QueueDeclare(contracts.QueueNotifications, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", contracts.QueueNotifications, err)
	}

	bindings := []struct {
		queue      string
		exchange   string
		routingKey string
	}{
		{contracts.QueueNotifications, contracts.ExchangeNotifications, contracts.RouteRideStatusPrefix + "*"},
		{contracts.QueueNotifications, contracts.ExchangeNotifications, contracts.RouteChatMessagePrefix + "*"},
	}
	for _, b := range bindings {
		if err := ch.QueueBind(b.queue, b.routingKey, b.exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}
	return nil
}

// declareReplicaQueue creates a server-named exclusive queue bound to
// exchange. It disappears with the consuming connection.
func declareReplicaQueue(ch *amqp.Channel, exchange, bindingKey string) (string, error) {
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return "", fmt.Errorf("declare replica queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, bindingKey, exchange, false, nil); err != nil {
		return "", fmt.Errorf("bind replica queue to %s: %w", exchange, err)
	}
	return q.Name, nil
}
