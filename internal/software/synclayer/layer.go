// Package synclayer is the single path from services to persistent state.
//
// Every write goes to the DocumentStore and, once committed, through the hub
// to every live subscription in this process. With a Relay configured the
// change is also published to other replicas, which feed it back in through
// ApplyRemote. The hub drops any change whose version is not newer than the
// last one it saw for that document, so subscribers never observe a
// document going backwards.
package synclayer

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"ridemarket/internal/general/apperr"
	"ridemarket/internal/general/logger"
	"ridemarket/internal/ports"
)

// Relay forwards committed changes to other replicas.
type Relay interface {
	Publish(ctx context.Context, change ports.Change) error
}

// Layer wraps a DocumentStore with change fan-out.
type Layer struct {
	store  ports.DocumentStore
	hub    *hub
	logger *logger.Logger
	origin string

	relayMu sync.RWMutex
	relay   Relay
}

// New wraps store. The origin id tags changes published to a relay.
func New(store ports.DocumentStore, log *logger.Logger) *Layer {
	if log == nil {
		log = logger.Discard()
	}
	return &Layer{
		store:  store,
		hub:    newHub(),
		logger: log,
		origin: uuid.NewString(),
	}
}

// Origin identifies this process in relayed changes.
func (l *Layer) Origin() string { return l.origin }

// SetRelay installs the cross-replica publisher.
func (l *Layer) SetRelay(relay Relay) {
	l.relayMu.Lock()
	l.relay = relay
	l.relayMu.Unlock()
}

// Get reads one document. A missing document is reported as ports.ErrNotFound.
func (l *Layer) Get(ctx context.Context, collection, id string) (*ports.Document, error) {
	doc, err := l.store.Get(ctx, collection, id)
	if err != nil {
		return nil, classify("sync.get", err)
	}
	return doc, nil
}

// Query runs a one-shot query.
func (l *Layer) Query(ctx context.Context, collection string, q ports.Query) ([]*ports.Document, error) {
	docs, err := l.store.Query(ctx, collection, q)
	if err != nil {
		return nil, classify("sync.query", err)
	}
	return docs, nil
}

// Set replaces or merges a document and broadcasts the result.
func (l *Layer) Set(ctx context.Context, collection, id string, fields map[string]any, merge bool) (*ports.Document, error) {
	doc, err := l.store.Set(ctx, collection, id, fields, merge)
	if err != nil {
		return nil, classify("sync.set", err)
	}
	l.commit(ctx, ports.Change{Collection: collection, ID: id, Version: doc.Version, Doc: doc})
	return doc, nil
}

// Create appends a document under a generated id and broadcasts it.
func (l *Layer) Create(ctx context.Context, collection string, fields map[string]any) (*ports.Document, error) {
	doc, err := l.store.Create(ctx, collection, fields)
	if err != nil {
		return nil, classify("sync.create", err)
	}
	l.commit(ctx, ports.Change{Collection: collection, ID: doc.ID, Version: doc.Version, Doc: doc})
	return doc, nil
}

// Update applies a conditional patch and broadcasts the result.
// Failed preconditions surface as ports.ErrPreconditionFailed.
func (l *Layer) Update(ctx context.Context, collection, id string, patch ports.Patch, conds ...ports.Precondition) (*ports.Document, error) {
	doc, err := l.store.Update(ctx, collection, id, patch, conds...)
	if err != nil {
		return nil, classify("sync.update", err)
	}
	l.commit(ctx, ports.Change{Collection: collection, ID: id, Version: doc.Version, Doc: doc})
	return doc, nil
}

// Delete removes a document and broadcasts the deletion.
func (l *Layer) Delete(ctx context.Context, collection, id string) error {
	version, err := l.store.Delete(ctx, collection, id)
	if err != nil {
		return classify("sync.delete", err)
	}
	l.commit(ctx, ports.Change{Collection: collection, ID: id, Version: version})
	return nil
}

// ApplyRemote feeds a change committed by another replica into the hub.
func (l *Layer) ApplyRemote(change ports.Change) {
	if change.Origin == l.origin {
		return
	}
	l.hub.publish(change)
}

// Close ends every open subscription.
func (l *Layer) Close() {
	for _, sub := range l.hub.all() {
		sub.Close()
	}
}

func (l *Layer) commit(ctx context.Context, change ports.Change) {
	change.Origin = l.origin
	l.hub.publish(change)

	l.relayMu.RLock()
	relay := l.relay
	l.relayMu.RUnlock()
	if relay == nil {
		return
	}
	if err := relay.Publish(context.WithoutCancel(ctx), change); err != nil {
		l.logger.Error(ctx, "sync_relay_publish_failed", "Failed to relay document change", err, map[string]any{
			"collection": change.Collection,
			"id":         change.ID,
			"version":    change.Version,
		})
	}
}

// classify keeps store sentinels visible and turns everything else into a
// persistence failure.
func classify(op string, err error) error {
	switch {
	case errors.Is(err, ports.ErrNotFound),
		errors.Is(err, ports.ErrPreconditionFailed),
		errors.Is(err, ports.ErrAlreadyExists),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return apperr.E(apperr.KindPersistenceFailure, op, "storage unavailable", err)
	}
}
