package service

import (
	"context"
	"errors"
	"time"

	"ridemarket/internal/domain/ride"
	"ridemarket/internal/general/apperr"
	"ridemarket/internal/ports"
)

const clearTimeout = 5 * time.Second

// Keystroke marks the user as typing and (re)starts the quiet-period timer
// that clears the flag.
func (service *ChatService) Keystroke(ctx context.Context, rideID, userID string) error {
	actor, r, err := service.participant(ctx, "chat.typing", rideID, userID, true)
	if err != nil {
		return err
	}
	key := typingKey{rideID: rideID, userID: actor.ID}

	service.mu.Lock()
	if entry, ok := service.timers[key]; ok && entry.timer.Reset(service.quiet) {
		service.mu.Unlock()
		return nil
	}
	entry := &typingEntry{}
	entry.timer = service.clock.AfterFunc(service.quiet, func() { service.expire(key, entry) })
	service.timers[key] = entry
	service.mu.Unlock()

	// The status may move between the read and the write; re-check once.
	for attempt := 0; ; attempt++ {
		if r.Typing[actor.ID] {
			return nil
		}
		_, err = service.layer.Update(ctx, ports.CollectionRides, rideID,
			ports.Patch{ride.TypingField(actor.ID): true},
			ports.Equals(ride.FieldStatus, r.Status),
		)
		if !errors.Is(err, ports.ErrPreconditionFailed) {
			return storeError("chat.typing", err)
		}
		if attempt > 0 {
			return apperr.E(apperr.KindConflict, "chat.typing", "ride changed, try again", err)
		}
		if _, r, err = service.participant(ctx, "chat.typing", rideID, userID, true); err != nil {
			return err
		}
	}
}

// StopTyping clears the flag right away.
func (service *ChatService) StopTyping(ctx context.Context, rideID, userID string) error {
	return service.stopTyping(ctx, rideID, userID, true)
}

// stopTyping cancels the timer and, if write is set, clears the stored flag.
func (service *ChatService) stopTyping(ctx context.Context, rideID, userID string, write bool) error {
	key := typingKey{rideID: rideID, userID: userID}
	service.mu.Lock()
	if entry, ok := service.timers[key]; ok {
		entry.timer.Stop()
		delete(service.timers, key)
		write = true
	}
	service.mu.Unlock()

	if !write {
		return nil
	}
	return service.clearFlag(ctx, key)
}

// expire runs when the quiet period ends. A newer keystroke may already
// have replaced entry, in which case the flag stays.
func (service *ChatService) expire(key typingKey, entry *typingEntry) {
	service.mu.Lock()
	if service.timers[key] != entry {
		service.mu.Unlock()
		return
	}
	delete(service.timers, key)
	service.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), clearTimeout)
	defer cancel()
	if err := service.clearFlag(ctx, key); err != nil {
		service.logger.Warn(ctx, "chat_typing_expire_failed", "Could not clear typing flag", err, map[string]any{
			"ride_id": key.rideID,
			"user_id": key.userID,
		})
	}
}

func (service *ChatService) clearFlag(ctx context.Context, key typingKey) error {
	_, err := service.layer.Update(ctx, ports.CollectionRides, key.rideID, ports.Patch{ride.TypingField(key.userID): nil})
	return storeError("chat.typing", err)
}

// storeError gives bare store sentinels a kind clients can act on.
func storeError(op string, err error) error {
	switch {
	case errors.Is(err, ports.ErrNotFound):
		return apperr.E(apperr.KindNotFound, op, "ride not found", err)
	case errors.Is(err, ports.ErrPreconditionFailed):
		return apperr.E(apperr.KindConflict, op, "ride changed, try again", err)
	default:
		return err
	}
}

// Presence is one session's typing state on one ride. Close releases the
// timer and clears the flag.
type Presence struct {
	service *ChatService
	rideID  string
	userID  string
}

// OpenPresence returns a typing handle for userID on rideID.
func (service *ChatService) OpenPresence(rideID, userID string) *Presence {
	return &Presence{service: service, rideID: rideID, userID: userID}
}

// Keystroke refreshes the typing flag.
func (p *Presence) Keystroke(ctx context.Context) error {
	return p.service.Keystroke(ctx, p.rideID, p.userID)
}

// Close cancels any pending timer and clears the flag if it was set.
func (p *Presence) Close(ctx context.Context) error {
	return p.service.stopTyping(ctx, p.rideID, p.userID, false)
}

// Pending reports whether a typing timer is armed, for tests and metrics.
func (service *ChatService) Pending(rideID, userID string) bool {
	service.mu.Lock()
	defer service.mu.Unlock()
	_, ok := service.timers[typingKey{rideID: rideID, userID: userID}]
	return ok
}
