package service

import (
	"context"

	"ridemarket/internal/domain/chat"
	"ridemarket/internal/domain/ride"
	"ridemarket/internal/general/apperr"
	"ridemarket/internal/ports"
	"ridemarket/internal/software/records"
	"ridemarket/internal/software/synclayer"
)

// Send appends a message from a participant of a non-terminal ride. The
// sender's typing flag is cleared first.
func (service *ChatService) Send(ctx context.Context, rideID, senderID, text string) (*chat.Message, error) {
	ctx = service.logger.WithRideID(ctx, rideID)
	actor, r, err := service.participant(ctx, "chat.send", rideID, senderID, true)
	if err != nil {
		return nil, err
	}
	msg, err := chat.NewMessage(rideID, actor.ID, actor.Name, text, service.clock.Now())
	if err != nil {
		return nil, apperr.E(apperr.KindInvalid, "chat.send", err.Error(), err)
	}

	if err := service.stopTyping(ctx, rideID, actor.ID, r.Typing[actor.ID]); err != nil {
		service.logger.Warn(ctx, "chat_typing_clear_failed", "Could not clear typing flag", err, nil)
	}

	fields, err := synclayer.Encode(msg)
	if err != nil {
		return nil, apperr.E(apperr.KindPersistenceFailure, "chat.send", "could not encode message", err)
	}
	doc, err := service.layer.Create(ctx, ports.CollectionChatMessages, fields)
	if err != nil {
		return nil, err
	}
	msg.ID = doc.ID
	msg.Seq = uint64(doc.Seq)

	service.logger.Debug(ctx, "chat_message_sent", "Chat message stored", map[string]any{"sender_id": actor.ID})
	service.notifyCounterpart(ctx, r, actor.ID, msg)
	return msg, nil
}

// Messages returns the ride's chat ordered by creation time, then arrival.
func (service *ChatService) Messages(ctx context.Context, rideID, userID string) ([]chat.Message, error) {
	if _, _, err := service.participant(ctx, "chat.read", rideID, userID, false); err != nil {
		return nil, err
	}
	docs, err := service.layer.Query(ctx, ports.CollectionChatMessages, records.MessagesQuery(rideID))
	if err != nil {
		return nil, err
	}
	return records.Messages(docs)
}

// Subscribe streams the ride's chat as sorted snapshots.
func (service *ChatService) Subscribe(ctx context.Context, rideID, userID string) (*MessageFeed, error) {
	if _, _, err := service.participant(ctx, "chat.subscribe", rideID, userID, false); err != nil {
		return nil, err
	}
	sub, err := service.layer.SubscribeQuery(ctx, ports.CollectionChatMessages, records.MessagesQuery(rideID))
	if err != nil {
		return nil, err
	}
	return newMessageFeed(sub, service), nil
}

func (service *ChatService) notifyCounterpart(ctx context.Context, r *ride.Ride, senderID string, msg *chat.Message) {
	if service.notifier == nil {
		return
	}
	recipient := r.Counterpart(senderID)
	if recipient == "" {
		return
	}
	event, err := ride.NewEvent(ride.EventChatMessage, r.ID, recipient, msg.SenderName, msg.Text, msg.CreatedAt)
	if err != nil {
		return
	}
	service.notifier.Notify(ctx, event.WithField("message_id", msg.ID))
}

// MessageFeed is a live, sorted view of one ride's chat.
type MessageFeed struct {
	sub     *synclayer.Subscription
	service *ChatService
	out     chan []chat.Message
	done    chan struct{}
}

func newMessageFeed(sub *synclayer.Subscription, service *ChatService) *MessageFeed {
	f := &MessageFeed{sub: sub, service: service, out: make(chan []chat.Message, 1), done: make(chan struct{})}
	go f.run()
	return f
}

// Updates yields the full message list after every change.
func (f *MessageFeed) Updates() <-chan []chat.Message { return f.out }

// Close stops the feed.
func (f *MessageFeed) Close() {
	f.sub.Close()
	<-f.done
}

func (f *MessageFeed) run() {
	defer close(f.done)
	defer close(f.out)
	for snap := range f.sub.Updates() {
		msgs, err := records.Messages(snap.Docs)
		if err != nil {
			f.service.logger.Error(context.Background(), "chat_feed_decode_failed", "Skipping unreadable chat snapshot", err, nil)
			continue
		}
		select {
		case <-f.out:
		default:
		}
		select {
		case f.out <- msgs:
		case <-f.sub.Done():
			return
		}
	}
}
