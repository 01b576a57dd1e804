package synclayer

import (
	"context"
	"sync"

	"ridemarket/internal/general/docmatch"
	"ridemarket/internal/ports"
)

// Snapshot is the current result of a subscription. Docs are private
// copies and may be kept by the receiver.
type Snapshot struct {
	Docs []*ports.Document
}

// Doc returns the single document of a document subscription, or nil if
// it does not exist.
func (s Snapshot) Doc() *ports.Document {
	if len(s.Docs) == 0 {
		return nil
	}
	return s.Docs[0]
}

type subKind int

const (
	kindDocument subKind = iota
	kindQuery
)

// Subscription streams snapshots of a document or a query window until
// Close is called or its context ends. Updates is closed afterwards.
type Subscription struct {
	layer      *Layer
	kind       subKind
	collection string
	id         string
	query      ports.Query

	updates chan Snapshot
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	mu    sync.Mutex
	inbox []ports.Change
	wake  chan struct{}
	err   error

	// owned by run
	known  map[string]int64
	window map[string]*ports.Document
}

// SubscribeDoc watches one document. The first snapshot reflects the
// stored state; a missing document yields an empty snapshot.
func (l *Layer) SubscribeDoc(ctx context.Context, collection, id string) (*Subscription, error) {
	sub := l.newSubscription(ctx, kindDocument, collection)
	sub.id = id
	return sub, sub.start()
}

// SubscribeQuery watches the ordered, bounded result of q.
func (l *Layer) SubscribeQuery(ctx context.Context, collection string, q ports.Query) (*Subscription, error) {
	sub := l.newSubscription(ctx, kindQuery, collection)
	sub.query = q
	return sub, sub.start()
}

func (l *Layer) newSubscription(ctx context.Context, kind subKind, collection string) *Subscription {
	subCtx, cancel := context.WithCancel(ctx)
	return &Subscription{
		layer:      l,
		kind:       kind,
		collection: collection,
		updates:    make(chan Snapshot, 1),
		ctx:        subCtx,
		cancel:     cancel,
		done:       make(chan struct{}),
		wake:       make(chan struct{}, 1),
		known:      make(map[string]int64),
		window:     make(map[string]*ports.Document),
	}
}

// Updates yields snapshots in commit order.
func (s *Subscription) Updates() <-chan Snapshot { return s.updates }

// Done is closed once the subscription has stopped.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err reports why the subscription stopped early, if it did.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the subscription and waits for its goroutine to exit.
// It is safe to call more than once.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

// start registers with the hub before the initial read so that no change
// committed in between is missed.
func (s *Subscription) start() error {
	s.layer.hub.register(s)
	if err := s.load(); err != nil {
		s.layer.hub.unregister(s)
		s.cancel()
		close(s.updates)
		close(s.done)
		return err
	}
	go s.run()
	return nil
}

func (s *Subscription) enqueue(change ports.Change) {
	if s.kind == kindDocument && change.ID != s.id {
		return
	}
	s.mu.Lock()
	s.inbox = append(s.inbox, change)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) load() error {
	switch s.kind {
	case kindDocument:
		doc, err := s.layer.Get(s.ctx, s.collection, s.id)
		if err != nil {
			if isNotFound(err) {
				return nil
			}
			return err
		}
		s.known[doc.ID] = doc.Version
		s.window[doc.ID] = doc
	case kindQuery:
		return s.requery()
	}
	return nil
}

func (s *Subscription) requery() error {
	docs, err := s.layer.Query(s.ctx, s.collection, s.query)
	if err != nil {
		return err
	}
	next := make(map[string]*ports.Document, len(docs))
	for _, doc := range docs {
		if mine, ok := s.window[doc.ID]; ok && mine.Version > doc.Version {
			next[doc.ID] = mine
			continue
		}
		if s.known[doc.ID] > doc.Version {
			// A newer state was already applied and did not belong here.
			continue
		}
		s.known[doc.ID] = doc.Version
		next[doc.ID] = doc
	}
	s.window = next
	return nil
}

func (s *Subscription) run() {
	defer close(s.done)
	defer close(s.updates)
	defer s.layer.hub.unregister(s)

	if !s.emit() {
		return
	}
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
		}

		s.mu.Lock()
		batch := s.inbox
		s.inbox = nil
		s.mu.Unlock()

		changed, refill := false, false
		for _, change := range batch {
			c, r := s.apply(change)
			changed = changed || c
			refill = refill || r
		}
		if refill {
			if err := s.requery(); err != nil {
				s.fail(err)
				return
			}
			changed = true
		}
		if changed && !s.emit() {
			return
		}
	}
}

// apply folds one change into the local state. It reports whether the
// visible result changed and whether the query window must be refilled.
func (s *Subscription) apply(change ports.Change) (changed, refill bool) {
	if change.Version <= s.known[change.ID] {
		return false, false
	}
	s.known[change.ID] = change.Version

	_, inWindow := s.window[change.ID]
	if s.kind == kindDocument {
		if change.Doc == nil {
			delete(s.window, change.ID)
			return inWindow, false
		}
		s.window[change.ID] = docmatch.CloneDocument(change.Doc)
		return true, false
	}

	if change.Doc == nil || !docmatch.Matches(change.Doc.Fields, s.query.Filters) {
		if !inWindow {
			return false, false
		}
		full := s.query.Limit > 0 && len(s.window) >= s.query.Limit
		delete(s.window, change.ID)
		return true, full
	}

	s.window[change.ID] = docmatch.CloneDocument(change.Doc)
	if s.query.Limit > 0 && len(s.window) > s.query.Limit {
		s.trim()
		_, kept := s.window[change.ID]
		return kept || inWindow, false
	}
	return true, false
}

// trim drops the documents that fall past the query limit.
func (s *Subscription) trim() {
	ordered := docmatch.Select(s.windowDocs(), ports.Query{OrderBy: s.query.OrderBy, Desc: s.query.Desc, Limit: s.query.Limit})
	next := make(map[string]*ports.Document, len(ordered))
	for _, doc := range ordered {
		next[doc.ID] = doc
	}
	s.window = next
}

func (s *Subscription) windowDocs() []*ports.Document {
	docs := make([]*ports.Document, 0, len(s.window))
	for _, doc := range s.window {
		docs = append(docs, doc)
	}
	return docs
}

func (s *Subscription) snapshot() Snapshot {
	var docs []*ports.Document
	if s.kind == kindQuery {
		docs = docmatch.Select(s.windowDocs(), ports.Query{OrderBy: s.query.OrderBy, Desc: s.query.Desc, Limit: s.query.Limit})
	} else {
		docs = s.windowDocs()
	}
	out := make([]*ports.Document, len(docs))
	for i, doc := range docs {
		out[i] = docmatch.CloneDocument(doc)
	}
	return Snapshot{Docs: out}
}

func (s *Subscription) emit() bool {
	snap := s.snapshot()
	// Replace an unread snapshot rather than block on a slow reader.
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- snap:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Subscription) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.layer.logger.Error(s.ctx, "sync_subscription_failed", "Subscription stopped", err, map[string]any{
		"collection": s.collection,
	})
}
