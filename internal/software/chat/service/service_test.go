package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ridemarket/internal/domain/chat"
	"ridemarket/internal/domain/ride"
	"ridemarket/internal/general/apperr"
	"ridemarket/internal/general/clock"
	"ridemarket/internal/general/memstore"
	"ridemarket/internal/general/testutil"
	"ridemarket/internal/ports"
	"ridemarket/internal/software/identity"
	"ridemarket/internal/software/records"
	"ridemarket/internal/software/synclayer"
)

var t0 = time.Date(2026, 4, 10, 20, 0, 0, 0, time.UTC)

type notifications struct {
	mu     sync.Mutex
	events []*ride.Event
}

func (n *notifications) Notify(_ context.Context, e *ride.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

type fixture struct {
	ctx    context.Context
	clock  *clock.FakeClock
	layer  *synclayer.Layer
	svc    *ChatService
	notes  *notifications
	rideID string
}

func newFixture(t *testing.T, status ride.Status) *fixture {
	t.Helper()
	return newFixtureWith(t, status, func(store ports.DocumentStore) ports.DocumentStore { return store })
}

func newFixtureWith(t *testing.T, status ride.Status, wrap func(ports.DocumentStore) ports.DocumentStore) *fixture {
	t.Helper()
	ctx := context.Background()
	clk := clock.Fake(t0)
	layer := synclayer.New(wrap(memstore.New(clk)), nil)
	t.Cleanup(layer.Close)

	for id, u := range map[string]map[string]any{
		"rider":    {"name": "Ana", "role": "CLIENT"},
		"driver":   {"name": "Caio", "role": "DRIVER", "vehiclePlate": "XYZ"},
		"stranger": {"name": "Zé", "role": "CLIENT"},
		"admin":    {"name": "Root", "role": "ADMIN"},
	} {
		if _, err := layer.Set(ctx, ports.CollectionUsers, id, u, false); err != nil {
			t.Fatal(err)
		}
	}
	doc, err := layer.Create(ctx, ports.CollectionRides, map[string]any{
		"clientId": "rider", "clientName": "Ana",
		"driverId": "driver", "driverName": "Caio",
		"status": string(status),
	})
	if err != nil {
		t.Fatal(err)
	}

	notes := &notifications{}
	return &fixture{
		ctx:    ctx,
		clock:  clk,
		layer:  layer,
		notes:  notes,
		rideID: doc.ID,
		svc:    NewChatService(nil, clk, layer, identity.NewResolver(layer), notes, 3*time.Second),
	}
}

func (f *fixture) typing(t *testing.T) map[string]bool {
	t.Helper()
	r, err := records.Ride(f.ctx, f.layer, f.rideID)
	if err != nil {
		t.Fatal(err)
	}
	return r.Typing
}

func TestSendAppendsAndNotifies(t *testing.T) {
	f := newFixture(t, ride.StatusAccepted)
	msg, err := f.svc.Send(f.ctx, f.rideID, "rider", "  on my way down  ")
	if err != nil {
		t.Fatal(err)
	}
	if msg.Text != "on my way down" || msg.SenderName != "Ana" || msg.ID == "" {
		t.Fatalf("message = %+v", msg)
	}
	if len(f.notes.events) != 1 || f.notes.events[0].RecipientID != "driver" || f.notes.events[0].Type != ride.EventChatMessage {
		t.Fatalf("notifications = %+v", f.notes.events)
	}
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t, ride.StatusAccepted)
	tests := []struct {
		name   string
		sender string
		text   string
		want   error
	}{
		{"empty", "rider", "   ", apperr.ErrInvalid},
		{"too long", "rider", strings.Repeat("a", chat.MaxTextLength+1), apperr.ErrInvalid},
		{"stranger", "stranger", "hi", apperr.ErrForbidden},
		{"operator cannot write", "admin", "hi", apperr.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Send(f.ctx, f.rideID, tt.sender, tt.text)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v", err)
			}
		})
	}
}

func TestSendOnTerminalRide(t *testing.T) {
	f := newFixture(t, ride.StatusCompleted)
	_, err := f.svc.Send(f.ctx, f.rideID, "rider", "thanks")
	if !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("err = %v", err)
	}
	if _, err := f.svc.Messages(f.ctx, f.rideID, "admin"); err != nil {
		t.Fatalf("operator read: %v", err)
	}
}

func TestMessagesSortedByTimeThenArrival(t *testing.T) {
	f := newFixture(t, ride.StatusInProgress)
	_, _ = f.svc.Send(f.ctx, f.rideID, "rider", "first")
	_, _ = f.svc.Send(f.ctx, f.rideID, "driver", "second")
	f.clock.Advance(time.Second)
	_, _ = f.svc.Send(f.ctx, f.rideID, "rider", "third")

	msgs, err := f.svc.Messages(f.ctx, f.rideID, "driver")
	if err != nil {
		t.Fatal(err)
	}
	var texts []string
	for _, m := range msgs {
		texts = append(texts, m.Text)
	}
	if strings.Join(texts, ",") != "first,second,third" {
		t.Fatalf("order = %v", texts)
	}
}

func TestTypingExpiresAfterQuietPeriod(t *testing.T) {
	f := newFixture(t, ride.StatusAccepted)
	if err := f.svc.Keystroke(f.ctx, f.rideID, "driver"); err != nil {
		t.Fatal(err)
	}
	if !f.typing(t)["driver"] {
		t.Fatal("typing flag not set")
	}

	f.clock.Advance(2 * time.Second)
	_ = f.svc.Keystroke(f.ctx, f.rideID, "driver")
	f.clock.Advance(2 * time.Second)
	if !f.typing(t)["driver"] {
		t.Fatal("keystroke did not refresh the quiet period")
	}

	f.clock.Advance(time.Second)
	if f.typing(t)["driver"] {
		t.Fatal("typing flag not cleared")
	}
	if f.svc.Pending(f.rideID, "driver") {
		t.Fatal("timer leaked")
	}
}

func TestSendClearsTyping(t *testing.T) {
	f := newFixture(t, ride.StatusAccepted)
	_ = f.svc.Keystroke(f.ctx, f.rideID, "rider")
	if _, err := f.svc.Send(f.ctx, f.rideID, "rider", "hello"); err != nil {
		t.Fatal(err)
	}
	if f.typing(t)["rider"] || f.svc.Pending(f.rideID, "rider") {
		t.Fatal("send left the typing flag set")
	}
}

func TestPresenceCloseClearsFlag(t *testing.T) {
	f := newFixture(t, ride.StatusAccepted)
	p := f.svc.OpenPresence(f.rideID, "rider")
	if err := p.Keystroke(f.ctx); err != nil {
		t.Fatal(err)
	}
	if err := p.Close(f.ctx); err != nil {
		t.Fatal(err)
	}
	if f.typing(t)["rider"] || f.clock.PendingCount() != 0 {
		t.Fatal("presence close leaked state")
	}
}

func TestOtherTypingSeenBySubscriber(t *testing.T) {
	f := newFixture(t, ride.StatusAccepted)
	sub, err := f.layer.SubscribeDoc(f.ctx, ports.CollectionRides, f.rideID)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()
	testutil.RequireReceive(t, sub.Updates(), time.Second, "initial ride")

	_ = f.svc.Keystroke(f.ctx, f.rideID, "driver")
	snap := testutil.RequireReceive(t, sub.Updates(), time.Second, "typing update")
	r, err := records.DecodeRide(snap.Doc())
	if err != nil {
		t.Fatal(err)
	}
	if !r.OtherTyping("rider") || r.OtherTyping("driver") {
		t.Fatalf("typing = %v", r.Typing)
	}
}

func TestSubscribeFeed(t *testing.T) {
	f := newFixture(t, ride.StatusAccepted)
	feed, err := f.svc.Subscribe(f.ctx, f.rideID, "rider")
	if err != nil {
		t.Fatal(err)
	}
	defer feed.Close()

	if first := testutil.RequireReceive(t, feed.Updates(), time.Second, "initial"); len(first) != 0 {
		t.Fatalf("initial = %v", first)
	}
	_, _ = f.svc.Send(f.ctx, f.rideID, "driver", "arrived")
	msgs := testutil.RequireReceive(t, feed.Updates(), time.Second, "message")
	if len(msgs) != 1 || msgs[0].Text != "arrived" {
		t.Fatalf("feed = %v", msgs)
	}

	if _, err := f.svc.Subscribe(f.ctx, f.rideID, "stranger"); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("stranger subscribe err = %v", err)
	}
}

// statusFlipper moves the ride between ACCEPTED and IN_PROGRESS right after
// a read, while flips remain.
type statusFlipper struct {
	ports.DocumentStore
	flips atomic.Int32
}

func (s *statusFlipper) Get(ctx context.Context, collection, id string) (*ports.Document, error) {
	doc, err := s.DocumentStore.Get(ctx, collection, id)
	if err != nil || collection != ports.CollectionRides || s.flips.Add(-1) < 0 {
		return doc, err
	}
	next := ride.StatusInProgress
	if doc.Fields[ride.FieldStatus] == string(ride.StatusInProgress) {
		next = ride.StatusAccepted
	}
	if _, err := s.DocumentStore.Update(ctx, collection, id, ports.Patch{ride.FieldStatus: string(next)}); err != nil {
		return nil, err
	}
	return doc, nil
}

func TestKeystrokeRechecksAfterStatusChange(t *testing.T) {
	flipper := &statusFlipper{}
	f := newFixtureWith(t, ride.StatusAccepted, func(store ports.DocumentStore) ports.DocumentStore {
		flipper.DocumentStore = store
		return flipper
	})

	flipper.flips.Store(1)
	if err := f.svc.Keystroke(f.ctx, f.rideID, "rider"); err != nil {
		t.Fatalf("keystroke after one change: %v", err)
	}
	if !f.typing(t)["rider"] {
		t.Fatal("typing flag not set")
	}

	flipper.flips.Store(10)
	err := f.svc.Keystroke(f.ctx, f.rideID, "driver")
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
	if apperr.HTTPStatus(err) != http.StatusConflict {
		t.Fatalf("status = %d", apperr.HTTPStatus(err))
	}
}
