// Package service opens and maintains a signed-in user's live view: the
// role-scoped feeds, the driver's position sampler and chat presence.
package service

import (
	"context"
	"errors"
	"sync"

	"ridemarket/internal/domain/chat"
	"ridemarket/internal/domain/ride"
	"ridemarket/internal/domain/user"
	"ridemarket/internal/general/apperr"
	"ridemarket/internal/general/logger"
	"ridemarket/internal/ports"
	chatsvc "ridemarket/internal/software/chat/service"
	"ridemarket/internal/software/synclayer"
)

// Event is one update pushed to a session. Payload is a flattened document,
// a list of them, chat messages, or the session state.
type Event struct {
	Topic   string `json:"topic"`
	RideID  string `json:"rideId,omitempty"`
	Payload any    `json:"payload"`
}

// State is the payload of a TopicSession event.
type State struct {
	UserID  string    `json:"userId"`
	Role    user.Role `json:"role"`
	Blocked bool      `json:"blocked"`
}

// LocationSampler follows a driver's active ride and records positions.
type LocationSampler interface {
	Run(ctx context.Context, driverID string) error
}

// Coordinator opens sessions.
type Coordinator struct {
	logger  *logger.Logger
	layer   *synclayer.Layer
	actors  ports.ActorResolver
	chat    *chatsvc.ChatService
	sampler LocationSampler
	buffer  int

	regMu sync.Mutex
	open  map[string]map[*Session]struct{}
}

// NewCoordinator wires the session dependencies. sampler may be nil, in
// which case drivers are not tracked.
func NewCoordinator(
	logger *logger.Logger,
	layer *synclayer.Layer,
	actors ports.ActorResolver,
	chat *chatsvc.ChatService,
	sampler LocationSampler,
) *Coordinator {
	return &Coordinator{
		logger:  logger,
		layer:   layer,
		actors:  actors,
		chat:    chat,
		sampler: sampler,
		buffer:  16,
		open:    make(map[string]map[*Session]struct{}),
	}
}

// Deliver pushes a notification to every open session of its recipient
// and reports how many were reached. A session whose alert buffer is full
// misses the notification.
func (c *Coordinator) Deliver(event *ride.Event) int {
	if event == nil {
		return 0
	}
	ev := Event{Topic: TopicNotification, RideID: event.RideID, Payload: event}

	c.regMu.Lock()
	defer c.regMu.Unlock()
	reached := 0
	for s := range c.open[event.RecipientID] {
		select {
		case s.alerts <- ev:
			reached++
		default:
		}
	}
	return reached
}

func (c *Coordinator) register(s *Session) {
	c.regMu.Lock()
	defer c.regMu.Unlock()
	if c.open[s.userID] == nil {
		c.open[s.userID] = make(map[*Session]struct{})
	}
	c.open[s.userID][s] = struct{}{}
}

func (c *Coordinator) unregister(s *Session) {
	c.regMu.Lock()
	defer c.regMu.Unlock()
	delete(c.open[s.userID], s)
	if len(c.open[s.userID]) == 0 {
		delete(c.open, s.userID)
	}
}

// Session is one connected user. Events is closed after Close returns or
// the parent context ends.
type Session struct {
	c      *Coordinator
	userID string
	ctx    context.Context
	cancel context.CancelFunc
	events chan Event
	alerts chan Event
	done   chan struct{}

	mu    sync.Mutex
	actor user.Actor
	scope *scope
}

// scope owns everything tied to the current role. It is replaced as a
// whole when the role changes.
type scope struct {
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	chats     map[string]context.CancelFunc
	presences map[string]*chatsvc.Presence
}

// Open resolves the user and starts their feeds. A blocked user gets a
// session with no feeds, which reopens if they are unblocked.
func (c *Coordinator) Open(ctx context.Context, userID string) (*Session, error) {
	actor, err := c.actors.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}

	sessCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		c:      c,
		userID: userID,
		ctx:    sessCtx,
		cancel: cancel,
		events: make(chan Event, c.buffer),
		alerts: make(chan Event, c.buffer),
		done:   make(chan struct{}),
	}

	profile, err := c.layer.SubscribeDoc(sessCtx, ports.CollectionUsers, userID)
	if err != nil {
		cancel()
		return nil, err
	}
	grant, err := c.layer.SubscribeDoc(sessCtx, ports.CollectionRoleGrants, userID)
	if err != nil {
		profile.Close()
		cancel()
		return nil, err
	}

	s.mu.Lock()
	s.rescopeLocked(actor)
	s.mu.Unlock()

	c.register(s)
	go s.run(profile, grant)
	c.logger.Info(ctx, "session_opened", "Session opened", map[string]any{"user_id": userID, "role": actor.Role})
	return s, nil
}

// Events streams feed updates.
func (s *Session) Events() <-chan Event { return s.events }

// Done is closed once the session has released everything.
func (s *Session) Done() <-chan struct{} { return s.done }

// Actor returns the identity the current feeds were opened for.
func (s *Session) Actor() user.Actor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actor
}

// Close tears down every feed, the sampler and chat presence, then closes
// Events. It is safe to call more than once.
func (s *Session) Close() {
	s.cancel()
	<-s.done
}

func (s *Session) run(profile, grant *synclayer.Subscription) {
	defer close(s.done)
	defer close(s.events)
	defer s.c.unregister(s)
	defer func() {
		s.mu.Lock()
		s.closeScopeLocked()
		s.mu.Unlock()
		profile.Close()
		grant.Close()
		s.c.logger.Info(context.WithoutCancel(s.ctx), "session_closed", "Session closed", map[string]any{"user_id": s.userID})
	}()

	profiles, grants := profile.Updates(), grant.Updates()
	for profiles != nil || grants != nil {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.alerts:
			s.send(s.ctx, ev)
		case snap, ok := <-profiles:
			if !ok {
				profiles = nil
				continue
			}
			s.send(s.ctx, Event{Topic: TopicProfile, Payload: View(snap.Doc())})
			s.refresh()
		case _, ok := <-grants:
			if !ok {
				grants = nil
				continue
			}
			s.refresh()
		}
	}
}

// refresh re-resolves the actor and swaps the scope if role or block
// status changed.
func (s *Session) refresh() {
	actor, err := s.c.actors.Resolve(s.ctx, s.userID)
	if err != nil {
		if !errors.Is(err, apperr.ErrForbidden) {
			s.c.logger.Warn(s.ctx, "session_resolve_failed", "Failed to resolve session actor", err, map[string]any{"user_id": s.userID})
			return
		}
		// profile removed
		actor = user.Actor{ID: s.userID, Blocked: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if actor.Role == s.actor.Role && actor.Blocked == s.actor.Blocked {
		s.actor = actor
		return
	}
	s.c.logger.Info(s.ctx, "session_rescoped", "Session role changed", map[string]any{
		"user_id": s.userID, "from": s.actor.Role, "to": actor.Role, "blocked": actor.Blocked,
	})
	s.rescopeLocked(actor)
}

func (s *Session) rescopeLocked(actor user.Actor) {
	s.closeScopeLocked()
	s.actor = actor

	ctx, cancel := context.WithCancel(s.ctx)
	sc := &scope{ctx: ctx, cancel: cancel, chats: make(map[string]context.CancelFunc), presences: make(map[string]*chatsvc.Presence)}
	s.scope = sc

	state := Event{Topic: TopicSession, Payload: State{UserID: actor.ID, Role: actor.Role, Blocked: actor.Blocked}}
	sc.wg.Add(1)
	go func() {
		defer sc.wg.Done()
		s.send(ctx, state)
	}()

	for _, f := range feedsFor(actor) {
		var (
			sub *synclayer.Subscription
			err error
		)
		if f.docID != "" {
			sub, err = s.c.layer.SubscribeDoc(ctx, f.collection, f.docID)
		} else {
			sub, err = s.c.layer.SubscribeQuery(ctx, f.collection, f.query)
		}
		if err != nil {
			s.c.logger.Warn(ctx, "session_feed_failed", "Failed to open feed", err, map[string]any{"topic": f.topic})
			continue
		}
		sc.wg.Add(1)
		go func(f feed) {
			defer sc.wg.Done()
			s.forward(ctx, f, sub)
		}(f)
	}

	if actor.Role.IsDriver() && !actor.Blocked && s.c.sampler != nil {
		sc.wg.Add(1)
		go func() {
			defer sc.wg.Done()
			if err := s.c.sampler.Run(ctx, actor.ID); err != nil {
				s.c.logger.Warn(ctx, "session_tracker_failed", "Location sampler stopped", err, map[string]any{"driver_id": actor.ID})
			}
		}()
	}
}

// closeScopeLocked stops everything in the current scope and waits for it.
func (s *Session) closeScopeLocked() {
	sc := s.scope
	if sc == nil {
		return
	}
	s.scope = nil
	for rideID, p := range sc.presences {
		if err := p.Close(context.WithoutCancel(s.ctx)); err != nil {
			s.c.logger.Warn(s.ctx, "session_presence_close_failed", "Failed to clear typing flag", err, map[string]any{"ride_id": rideID})
		}
	}
	sc.cancel()
	sc.wg.Wait()
}

func (s *Session) forward(ctx context.Context, f feed, sub *synclayer.Subscription) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub.Updates():
			if !ok {
				if err := sub.Err(); err != nil {
					s.c.logger.Warn(ctx, "session_feed_closed", "Feed ended with error", err, map[string]any{"topic": f.topic})
				}
				return
			}
			var payload any
			if f.docID != "" {
				payload = View(snap.Doc())
			} else {
				payload = Views(snap.Docs)
			}
			if !s.send(ctx, Event{Topic: f.topic, Payload: payload}) {
				return
			}
		}
	}
}

func (s *Session) send(ctx context.Context, ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// OpenChat starts streaming a ride's messages into the session. Opening
// an already open chat is a no-op.
func (s *Session) OpenChat(ctx context.Context, rideID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, err := s.activeScopeLocked("session.open_chat")
	if err != nil {
		return err
	}
	if _, ok := sc.chats[rideID]; ok {
		return nil
	}
	chatCtx, cancel := context.WithCancel(sc.ctx)
	feed, err := s.c.chat.Subscribe(chatCtx, rideID, s.userID)
	if err != nil {
		cancel()
		return err
	}
	sc.chats[rideID] = cancel
	sc.wg.Add(1)
	go func() {
		defer sc.wg.Done()
		defer feed.Close()
		for {
			select {
			case <-chatCtx.Done():
				return
			case msgs, ok := <-feed.Updates():
				if !ok {
					return
				}
				if msgs == nil {
					msgs = []chat.Message{}
				}
				if !s.send(chatCtx, Event{Topic: TopicChat, RideID: rideID, Payload: msgs}) {
					return
				}
			}
		}
	}()
	return nil
}

// CloseChat stops a ride's chat stream and clears this user's typing flag.
func (s *Session) CloseChat(ctx context.Context, rideID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc := s.scope
	if sc == nil {
		return nil
	}
	if cancel, ok := sc.chats[rideID]; ok {
		cancel()
		delete(sc.chats, rideID)
	}
	if p, ok := sc.presences[rideID]; ok {
		delete(sc.presences, rideID)
		return p.Close(ctx)
	}
	return nil
}

// Keystroke marks the user as typing on rideID.
func (s *Session) Keystroke(ctx context.Context, rideID string) error {
	s.mu.Lock()
	sc, err := s.activeScopeLocked("session.keystroke")
	if err != nil {
		s.mu.Unlock()
		return err
	}
	p, ok := sc.presences[rideID]
	if !ok {
		p = s.c.chat.OpenPresence(rideID, s.userID)
		sc.presences[rideID] = p
	}
	s.mu.Unlock()
	return p.Keystroke(ctx)
}

// SendMessage posts text to rideID's chat as this user. Sending ends the
// typing indicator.
func (s *Session) SendMessage(ctx context.Context, rideID, text string) (*chat.Message, error) {
	s.mu.Lock()
	sc, err := s.activeScopeLocked("session.send")
	if err == nil {
		delete(sc.presences, rideID)
	}
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.c.chat.Send(ctx, rideID, s.userID, text)
}

// StopTyping clears the typing flag right away.
func (s *Session) StopTyping(ctx context.Context, rideID string) error {
	s.mu.Lock()
	var p *chatsvc.Presence
	if s.scope != nil {
		p = s.scope.presences[rideID]
		delete(s.scope.presences, rideID)
	}
	s.mu.Unlock()
	if p == nil {
		return s.c.chat.StopTyping(ctx, rideID, s.userID)
	}
	return p.Close(ctx)
}

func (s *Session) activeScopeLocked(op string) (*scope, error) {
	if s.scope == nil || s.scope.ctx.Err() != nil {
		return nil, apperr.E(apperr.KindInvalidState, op, "session closed", nil)
	}
	if s.actor.Blocked {
		return nil, apperr.E(apperr.KindForbidden, op, "account is blocked", nil)
	}
	return s.scope, nil
}
