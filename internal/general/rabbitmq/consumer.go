package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// newConsumerChannel returns a fresh channel with prefetch (QoS) applied.
func (client *Client) newConsumerChannel(prefetch int) (*amqp.Channel, error) {
	client.mu.RLock()
	conn := client.conn
	client.mu.RUnlock()

	// quick fail if no connection
	if conn == nil || conn.IsClosed() {
		return nil, errors.New("rabbitmq: connection is not ready")
	}

	// open a new channel
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: open channel: %w", err)
	}

	// set prefetch if requested
	if prefetch < 0 {
		prefetch = 1
	}
	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("rabbitmq: set QoS (prefetch=%d): %w", prefetch, err)
		}
	}

	return ch, nil
}

// ConsumeBroadcast binds a fresh exclusive queue to exchange with
// bindingKey and consumes it until ctx ends or the channel closes. Every
// replica gets its own copy of each message; messages published while no
// queue is bound are not seen.
func (client *Client) ConsumeBroadcast(
	ctx context.Context,
	exchange string,
	bindingKey string,
	consumerTag string,
	prefetch int,
	handler func(context.Context, amqp.Delivery) error,
) error {
	ch, err := client.newConsumerChannel(prefetch)
	if err != nil {
		return err
	}
	defer ch.Close()

	queue, err := declareReplicaQueue(ch, exchange, bindingKey)
	if err != nil {
		return fmt.Errorf("rabbitmq: %w", err)
	}
	return client.consumeLoop(ctx, ch, queue, consumerTag, handler)
}

// runConsumer calls consume until ctx ends, backing off between attempts
// so a lost connection is re-bound once the client reconnects.
func (client *Client) runConsumer(ctx context.Context, name string, consume func() error) error {
	backoff := minBackoff
	for {
		err := consume()
		if ctx.Err() != nil {
			return nil
		}
		client.logger.Warn(client.logCtx, "rabbitmq_consumer_restart", "Consumer stopped; retrying", err, map[string]any{
			"consumer":   name,
			"backoff_ms": backoff.Milliseconds(),
		})
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff)
	}
}

func (client *Client) consumeLoop(
	ctx context.Context,
	ch *amqp.Channel,
	queue string,
	consumerTag string,
	handler func(context.Context, amqp.Delivery) error,
) error {
	deliveries, err := ch.Consume(
		queue,
		consumerTag,
		false, // autoAck
		false, // exclusive
		false, // noLocal (ignored by RabbitMQ)
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("rabbitmq: consume(%s): %w", queue, err)
	}

	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

	for {
		select {
		case <-ctx.Done():
			if consumerTag != "" {
				_ = ch.Cancel(consumerTag, false)
			}
			return nil

		case cerr := <-chClosed:
			if cerr != nil {
				return fmt.Errorf("rabbitmq: channel closed while consuming %s: %w", queue, cerr)
			}
			return nil

		case d, ok := <-deliveries:
			if !ok {
				return nil
			}

			hCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			err := handler(hCtx, d)
			cancel()

			if err != nil {
				client.logger.Warn(client.logCtx, "rabbitmq_message_rejected", "Dropping message the handler rejected", err, map[string]any{
					"queue":       queue,
					"routing_key": d.RoutingKey,
				})
				_ = d.Nack(false, false) // drop poison message
				continue
			}
			_ = d.Ack(false)
		}
	}
}
