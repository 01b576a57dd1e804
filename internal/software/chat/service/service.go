package service

import (
	"context"
	"sync"
	"time"

	"ridemarket/internal/domain/ride"
	"ridemarket/internal/domain/user"
	"ridemarket/internal/general/apperr"
	"ridemarket/internal/general/clock"
	"ridemarket/internal/general/logger"
	"ridemarket/internal/ports"
	"ridemarket/internal/software/identity"
	"ridemarket/internal/software/records"
	"ridemarket/internal/software/synclayer"
)

// DefaultQuietPeriod is how long a typing flag survives without keystrokes.
const DefaultQuietPeriod = 3 * time.Second

type typingKey struct {
	rideID string
	userID string
}

type typingEntry struct {
	timer *clock.Timer
}

// ChatService carries ride chat and typing presence.
type ChatService struct {
	logger   *logger.Logger
	clock    clock.Clock
	layer    *synclayer.Layer
	actors   ports.ActorResolver
	notifier ports.Notifier
	quiet    time.Duration

	mu     sync.Mutex
	timers map[typingKey]*typingEntry
}

var _ ports.ChatService = (*ChatService)(nil)

// NewChatService wires the chat service.
func NewChatService(
	logger *logger.Logger,
	clk clock.Clock,
	layer *synclayer.Layer,
	actors ports.ActorResolver,
	notifier ports.Notifier,
	quiet time.Duration,
) *ChatService {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	return &ChatService{
		logger:   logger,
		clock:    clk,
		layer:    layer,
		actors:   actors,
		notifier: notifier,
		quiet:    quiet,
		timers:   make(map[typingKey]*typingEntry),
	}
}

// participant resolves the caller and checks they belong to the ride.
// Operators may read any chat; only participants may write.
func (service *ChatService) participant(ctx context.Context, op, rideID, userID string, write bool) (user.Actor, *ride.Ride, error) {
	actor, err := service.actors.Resolve(ctx, userID)
	if err != nil {
		return user.Actor{}, nil, err
	}
	if err := identity.Require(op, actor); err != nil {
		return user.Actor{}, nil, err
	}
	r, err := records.Ride(ctx, service.layer, rideID)
	if err != nil {
		return user.Actor{}, nil, err
	}
	if !r.IsParticipant(actor.ID) && (write || !actor.Role.IsOperator()) {
		return user.Actor{}, nil, apperr.E(apperr.KindForbidden, op, "not a participant of this ride", nil)
	}
	if write && r.Status.Terminal() {
		return user.Actor{}, nil, apperr.E(apperr.KindInvalidState, op, "chat is closed for this ride", nil)
	}
	return actor, r, nil
}
