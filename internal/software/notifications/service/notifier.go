// Package service delivers ride notifications. Notify never blocks the
// caller: events go into a bounded queue drained by Run.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"ridemarket/internal/domain/ride"
	"ridemarket/internal/general/contracts"
	"ridemarket/internal/general/logger"
	"ridemarket/internal/ports"
)

// Publisher sends one message to an exchange.
type Publisher interface {
	Publish(exchange, routingKey string, body []byte) error
}

type queued struct {
	ctx   context.Context
	event *ride.Event
}

// QueueNotifier publishes events to the notifications exchange from a
// background worker.
type QueueNotifier struct {
	logger    *logger.Logger
	publisher Publisher
	producer  string
	queue     chan queued
}

var _ ports.Notifier = (*QueueNotifier)(nil)

// NewQueueNotifier creates a notifier with room for size pending events.
func NewQueueNotifier(log *logger.Logger, publisher Publisher, producer string, size int) *QueueNotifier {
	if size <= 0 {
		size = 1
	}
	return &QueueNotifier{
		logger:    log,
		publisher: publisher,
		producer:  producer,
		queue:     make(chan queued, size),
	}
}

// Notify enqueues event. A full queue drops it.
func (n *QueueNotifier) Notify(ctx context.Context, event *ride.Event) {
	if event == nil {
		return
	}
	item := queued{ctx: context.WithoutCancel(ctx), event: event.Clone()}
	select {
	case n.queue <- item:
	default:
		n.logger.Warn(ctx, "notification_dropped", "Notification queue full; dropping event", nil, map[string]any{
			"type":         event.Type,
			"ride_id":      event.RideID,
			"recipient_id": event.RecipientID,
		})
	}
}

// Run publishes queued events until ctx ends.
func (n *QueueNotifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case item := <-n.queue:
			if err := n.publish(item.event); err != nil {
				n.logger.Error(item.ctx, "notification_publish_failed", "Failed to publish notification", err, map[string]any{
					"type":         item.event.Type,
					"ride_id":      item.event.RideID,
					"recipient_id": item.event.RecipientID,
				})
			}
		}
	}
}

func (n *QueueNotifier) publish(event *ride.Event) error {
	msg := contracts.NewNotificationMessage(event)
	msg.Producer = n.producer
	msg.SentAt = time.Now().UTC()
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	return n.publisher.Publish(contracts.ExchangeNotifications, contracts.NotificationRoutingKey(event), body)
}

// Deliverer pushes an event to the recipient's live sessions on this
// replica and reports how many it reached.
type Deliverer interface {
	Deliver(event *ride.Event) int
}

// LocalNotifier logs events and hands them to the attached Deliverer. It
// is used when no broker is configured, so every session lives in this
// process.
type LocalNotifier struct {
	logger *logger.Logger

	mu       sync.RWMutex
	sessions Deliverer
}

var _ ports.Notifier = (*LocalNotifier)(nil)

// NewLocalNotifier returns a notifier that only logs until Attach is called.
func NewLocalNotifier(log *logger.Logger) *LocalNotifier {
	return &LocalNotifier{logger: log}
}

// Attach sets the session registry events are delivered to.
func (n *LocalNotifier) Attach(sessions Deliverer) {
	n.mu.Lock()
	n.sessions = sessions
	n.mu.Unlock()
}

// Notify logs event and delivers it to open sessions.
func (n *LocalNotifier) Notify(ctx context.Context, event *ride.Event) {
	if event == nil {
		return
	}
	n.mu.RLock()
	sessions := n.sessions
	n.mu.RUnlock()

	reached := 0
	if sessions != nil {
		reached = sessions.Deliver(event)
	}
	n.logger.Info(ctx, "notification", event.Title, map[string]any{
		"type":         event.Type,
		"ride_id":      event.RideID,
		"recipient_id": event.RecipientID,
		"routing_key":  contracts.NotificationRoutingKey(event),
		"sessions":     reached,
	})
}
