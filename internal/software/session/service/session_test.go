package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"ridemarket/internal/domain/ride"
	"ridemarket/internal/domain/user"
	"ridemarket/internal/general/apperr"
	"ridemarket/internal/general/clock"
	"ridemarket/internal/general/memstore"
	"ridemarket/internal/general/testutil"
	"ridemarket/internal/ports"
	chatsvc "ridemarket/internal/software/chat/service"
	"ridemarket/internal/software/identity"
	"ridemarket/internal/software/records"
	"ridemarket/internal/software/synclayer"
)

var t0 = time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)

const wait = 2 * time.Second

type fakeSampler struct {
	running atomic.Int32
	started atomic.Int32
}

func (f *fakeSampler) Run(ctx context.Context, _ string) error {
	f.started.Add(1)
	f.running.Add(1)
	defer f.running.Add(-1)
	<-ctx.Done()
	return nil
}

type fixture struct {
	ctx     context.Context
	layer   *synclayer.Layer
	chat    *chatsvc.ChatService
	sampler *fakeSampler
	coord   *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	clk := clock.Fake(t0)
	layer := synclayer.New(memstore.New(clk), nil)
	t.Cleanup(layer.Close)

	for id, u := range map[string]map[string]any{
		"rider":  {"name": "Ana", "role": "CLIENT", "createdAt": "2026-05-01T10:00:00Z"},
		"driver": {"name": "Caio", "role": "DRIVER", "vehiclePlate": "XYZ", "createdAt": "2026-05-01T11:00:00Z"},
	} {
		if _, err := layer.Set(ctx, ports.CollectionUsers, id, u, false); err != nil {
			t.Fatal(err)
		}
	}
	resolver := identity.NewResolver(layer)
	chat := chatsvc.NewChatService(nil, clk, layer, resolver, nil, 3*time.Second)
	sampler := &fakeSampler{}
	return &fixture{
		ctx:     ctx,
		layer:   layer,
		chat:    chat,
		sampler: sampler,
		coord:   NewCoordinator(nil, layer, resolver, chat, sampler),
	}
}

func (f *fixture) open(t *testing.T, userID string) *Session {
	t.Helper()
	s, err := f.coord.Open(f.ctx, userID)
	if err != nil {
		t.Fatalf("open %s: %v", userID, err)
	}
	t.Cleanup(s.Close)
	return s
}

// next reads events until one matches topic and accept.
func next(t *testing.T, s *Session, topic string, accept func(Event) bool) Event {
	t.Helper()
	deadline := time.After(wait)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				t.Fatalf("events closed while waiting for %s", topic)
			}
			if ev.Topic == topic && (accept == nil || accept(ev)) {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s event", topic)
		}
	}
}

func withRole(role user.Role) func(Event) bool {
	return func(ev Event) bool { return ev.Payload.(State).Role == role }
}

func TestOpenRequiresProfile(t *testing.T) {
	f := newFixture(t)
	if _, err := f.coord.Open(f.ctx, "ghost"); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("err = %v, want Forbidden", err)
	}
}

func TestRiderSeesOwnRides(t *testing.T) {
	f := newFixture(t)
	s := f.open(t, "rider")

	next(t, s, TopicSession, withRole(user.RoleClient))
	next(t, s, TopicTariff, nil)
	next(t, s, TopicRides, func(ev Event) bool { return len(ev.Payload.([]map[string]any)) == 0 })

	_, _ = f.layer.Create(f.ctx, ports.CollectionRides, map[string]any{"clientId": "someone-else", "status": "PENDING", "createdAt": "2026-05-02T09:00:00Z"})
	_, _ = f.layer.Create(f.ctx, ports.CollectionRides, map[string]any{"clientId": "rider", "status": "PENDING", "createdAt": "2026-05-02T09:01:00Z"})

	ev := next(t, s, TopicRides, func(ev Event) bool { return len(ev.Payload.([]map[string]any)) == 1 })
	if got := ev.Payload.([]map[string]any)[0]["clientId"]; got != "rider" {
		t.Fatalf("clientId = %v", got)
	}
	if f.sampler.started.Load() != 0 {
		t.Fatal("rider session started a location sampler")
	}
}

func TestDriverSessionTracksAndSeesPendingRides(t *testing.T) {
	f := newFixture(t)
	s := f.open(t, "driver")

	next(t, s, TopicSession, withRole(user.RoleDriver))
	testutil.Eventually(t, wait, func() bool { return f.sampler.running.Load() == 1 }, "sampler running")

	_, _ = f.layer.Create(f.ctx, ports.CollectionRides, map[string]any{"clientId": "rider", "status": "PENDING", "createdAt": "2026-05-02T09:01:00Z"})
	next(t, s, TopicPendingRides, func(ev Event) bool { return len(ev.Payload.([]map[string]any)) == 1 })

	s.Close()
	if f.sampler.running.Load() != 0 {
		t.Fatal("sampler still running after close")
	}
	testutil.RequireClosed(t, s.Events(), wait, "events closed")
}

func TestRoleGrantRescopesSession(t *testing.T) {
	f := newFixture(t)
	s := f.open(t, "driver")
	next(t, s, TopicSession, withRole(user.RoleDriver))
	testutil.Eventually(t, wait, func() bool { return f.sampler.running.Load() == 1 }, "sampler running")

	_, err := f.layer.Set(f.ctx, ports.CollectionRoleGrants, "driver", map[string]any{
		"userId": "driver", "role": "MODERATOR", "grantedBy": "root", "updatedAt": "2026-05-02T09:05:00Z",
	}, false)
	if err != nil {
		t.Fatal(err)
	}

	next(t, s, TopicSession, withRole(user.RoleModerator))
	if f.sampler.running.Load() != 0 {
		t.Fatal("sampler survived the role change")
	}
	next(t, s, TopicUsers, func(ev Event) bool { return len(ev.Payload.([]map[string]any)) == 2 })
	if got := s.Actor().Role; got != user.RoleModerator {
		t.Fatalf("actor role = %s", got)
	}

	if err := f.layer.Delete(f.ctx, ports.CollectionRoleGrants, "driver"); err != nil {
		t.Fatal(err)
	}
	next(t, s, TopicSession, withRole(user.RoleDriver))
	testutil.Eventually(t, wait, func() bool { return f.sampler.started.Load() == 2 }, "sampler restarted")
}

func TestBlockedUserGetsNoFeeds(t *testing.T) {
	f := newFixture(t)
	s := f.open(t, "rider")
	next(t, s, TopicSession, withRole(user.RoleClient))

	if _, err := f.layer.Update(f.ctx, ports.CollectionUsers, "rider", ports.Patch{"isBlocked": true}); err != nil {
		t.Fatal(err)
	}
	next(t, s, TopicSession, func(ev Event) bool { return ev.Payload.(State).Blocked })

	if err := s.Keystroke(f.ctx, "r1"); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("keystroke err = %v, want Forbidden", err)
	}

	_, _ = f.layer.Create(f.ctx, ports.CollectionRides, map[string]any{"clientId": "rider", "status": "PENDING"})
	select {
	case ev, ok := <-s.Events():
		if ok && ev.Topic != TopicProfile {
			t.Fatalf("blocked session received %s", ev.Topic)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCloseClearsTypingPresence(t *testing.T) {
	f := newFixture(t)
	doc, err := f.layer.Create(f.ctx, ports.CollectionRides, map[string]any{
		"clientId": "rider", "driverId": "driver", "status": "ACCEPTED",
	})
	if err != nil {
		t.Fatal(err)
	}
	s := f.open(t, "rider")

	if err := s.OpenChat(f.ctx, doc.ID); err != nil {
		t.Fatal(err)
	}
	next(t, s, TopicChat, func(ev Event) bool { return ev.RideID == doc.ID })

	if err := s.Keystroke(f.ctx, doc.ID); err != nil {
		t.Fatal(err)
	}
	r, _ := records.Ride(f.ctx, f.layer, doc.ID)
	if !r.Typing["rider"] {
		t.Fatal("typing flag not set")
	}

	s.Close()
	r, _ = records.Ride(f.ctx, f.layer, doc.ID)
	if r.Typing["rider"] {
		t.Fatal("typing flag left behind after close")
	}
	if f.chat.Pending(doc.ID, "rider") {
		t.Fatal("typing timer left armed after close")
	}
}

func TestDeliverReachesRecipientSessions(t *testing.T) {
	f := newFixture(t)
	rider := f.open(t, "rider")
	second := f.open(t, "rider")
	f.open(t, "driver")

	event, err := ride.NewEvent(ride.EventRideAccepted, "ride-1", "rider", "Driver on the way", "Caio accepted your ride", t0)
	if err != nil {
		t.Fatal(err)
	}
	if n := f.coord.Deliver(event); n != 2 {
		t.Fatalf("reached %d sessions, want 2", n)
	}
	for _, s := range []*Session{rider, second} {
		ev := next(t, s, TopicNotification, nil)
		if ev.RideID != "ride-1" || ev.Payload.(*ride.Event).Title != "Driver on the way" {
			t.Fatalf("notification = %+v", ev)
		}
	}

	rider.Close()
	second.Close()
	if n := f.coord.Deliver(event); n != 0 {
		t.Fatalf("closed sessions reached: %d", n)
	}
}
