package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"ridemarket/internal/domain/ride"
	"ridemarket/internal/general/contracts"
	"ridemarket/internal/general/logger"
	"ridemarket/internal/general/testutil"
)

type published struct {
	exchange, key string
	body          []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	fail bool
	out  chan published
}

func (p *fakePublisher) Publish(exchange, routingKey string, body []byte) error {
	p.mu.Lock()
	fail := p.fail
	p.mu.Unlock()
	if fail {
		return errors.New("broker down")
	}
	p.out <- published{exchange: exchange, key: routingKey, body: body}
	return nil
}

func statusEvent(t *testing.T, rideID string) *ride.Event {
	t.Helper()
	event, err := ride.NewEvent(ride.EventRideAccepted, rideID, "client-1", "Ride accepted", "Driver on the way", time.Now())
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	event.Status = ride.StatusAccepted
	return event
}

func TestQueueNotifierPublishes(t *testing.T) {
	pub := &fakePublisher{out: make(chan published, 4)}
	n := NewQueueNotifier(logger.Discard(), pub, "replica-a", 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = n.Run(ctx) }()

	n.Notify(ctx, statusEvent(t, "r1"))
	got := testutil.RequireReceive(t, pub.out, time.Second, "status notification")
	if got.exchange != contracts.ExchangeNotifications || got.key != "ride.status.ACCEPTED" {
		t.Fatalf("published to %s/%s", got.exchange, got.key)
	}
	var msg contracts.NotificationMessage
	if err := json.Unmarshal(got.body, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.RideID != "r1" || msg.Producer != "replica-a" || msg.RecipientID != "client-1" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestQueueNotifierDropsWhenFull(t *testing.T) {
	pub := &fakePublisher{out: make(chan published, 8)}
	n := NewQueueNotifier(logger.Discard(), pub, "replica-a", 2)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			n.Notify(context.Background(), statusEvent(t, "r1"))
		}
	}()
	testutil.RequireClosed(t, done, time.Second, "Notify blocked on a full queue")
	if len(n.queue) != 2 {
		t.Fatalf("queue length = %d, want 2", len(n.queue))
	}
}

func TestQueueNotifierSurvivesPublishErrors(t *testing.T) {
	pub := &fakePublisher{out: make(chan published, 4), fail: true}
	n := NewQueueNotifier(logger.Discard(), pub, "replica-a", 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = n.Run(ctx) }()

	n.Notify(ctx, statusEvent(t, "r1"))
	testutil.Eventually(t, time.Second, func() bool { return len(n.queue) == 0 }, "queue drained")

	pub.mu.Lock()
	pub.fail = false
	pub.mu.Unlock()
	n.Notify(ctx, statusEvent(t, "r2"))
	got := testutil.RequireReceive(t, pub.out, time.Second, "notification after recovery")
	if got.key != "ride.status.ACCEPTED" {
		t.Fatalf("key = %s", got.key)
	}
}

type recordingDeliverer struct {
	mu     sync.Mutex
	events []*ride.Event
}

func (d *recordingDeliverer) Deliver(event *ride.Event) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return 1
}

func TestLocalNotifierDeliversOnceAttached(t *testing.T) {
	n := NewLocalNotifier(logger.Discard())
	event := statusEvent(t, "ride-7")

	n.Notify(context.Background(), event)
	n.Notify(context.Background(), nil)

	d := &recordingDeliverer{}
	n.Attach(d)
	n.Notify(context.Background(), event)

	if len(d.events) != 1 || d.events[0].RideID != "ride-7" {
		t.Fatalf("delivered = %+v", d.events)
	}
}
