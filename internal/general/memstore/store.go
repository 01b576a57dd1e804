// Package memstore is an in-process DocumentStore used for single-node
// development and by service tests.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"ridemarket/internal/general/clock"
	"ridemarket/internal/general/docmatch"
	"ridemarket/internal/ports"
)

// Store keeps documents in maps guarded by one mutex, so every conditional
// write is atomic with respect to all others.
type Store struct {
	clock clock.Clock

	mu      sync.Mutex
	version int64
	seq     map[string]int64
	colls   map[string]map[string]*ports.Document
}

var _ ports.DocumentStore = (*Store)(nil)

// New returns an empty store.
func New(c clock.Clock) *Store {
	if c == nil {
		c = clock.Real()
	}
	return &Store{
		clock: c,
		seq:   make(map[string]int64),
		colls: make(map[string]map[string]*ports.Document),
	}
}

func (s *Store) coll(name string) map[string]*ports.Document {
	m, ok := s.colls[name]
	if !ok {
		m = make(map[string]*ports.Document)
		s.colls[name] = m
	}
	return m
}

// Get returns a copy of the stored document.
func (s *Store) Get(_ context.Context, collection, id string) (*ports.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.coll(collection)[id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ports.ErrNotFound)
	}
	return docmatch.CloneDocument(doc), nil
}

// Set replaces or merges a document, creating it when absent.
func (s *Store) Set(_ context.Context, collection, id string, fields map[string]any, merge bool) (*ports.Document, error) {
	normalized, err := docmatch.Normalize(fields)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	docs := s.coll(collection)
	existing, ok := docs[id]
	if ok && merge {
		patch := make(ports.Patch, len(normalized))
		for k, v := range normalized {
			patch[k] = v
		}
		merged, err := docmatch.ApplyPatch(existing.Fields, patch)
		if err != nil {
			return nil, err
		}
		normalized = merged
	}
	return s.putLocked(collection, id, normalized, existing), nil
}

// Create stores a new document under a random id.
func (s *Store) Create(_ context.Context, collection string, fields map[string]any) (*ports.Document, error) {
	normalized, err := docmatch.Normalize(fields)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(collection, uuid.NewString(), normalized, nil), nil
}

// Update applies patch if every precondition holds on the current state.
func (s *Store) Update(_ context.Context, collection, id string, patch ports.Patch, conds ...ports.Precondition) (*ports.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.coll(collection)[id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ports.ErrNotFound)
	}
	if err := docmatch.CheckPreconditions(existing.Fields, conds); err != nil {
		return nil, err
	}
	next, err := docmatch.ApplyPatch(existing.Fields, patch)
	if err != nil {
		return nil, err
	}
	return s.putLocked(collection, id, next, existing), nil
}

// Delete removes a document.
func (s *Store) Delete(_ context.Context, collection, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := s.coll(collection)
	if _, ok := docs[id]; !ok {
		return 0, fmt.Errorf("%s/%s: %w", collection, id, ports.ErrNotFound)
	}
	delete(docs, id)
	s.version++
	return s.version, nil
}

// Query returns copies of the matching documents.
func (s *Store) Query(_ context.Context, collection string, q ports.Query) ([]*ports.Document, error) {
	s.mu.Lock()
	all := make([]*ports.Document, 0, len(s.coll(collection)))
	for _, doc := range s.coll(collection) {
		all = append(all, doc)
	}
	selected := docmatch.Select(all, q)
	out := make([]*ports.Document, len(selected))
	for i, doc := range selected {
		out[i] = docmatch.CloneDocument(doc)
	}
	s.mu.Unlock()
	return out, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func (s *Store) putLocked(collection, id string, fields map[string]any, existing *ports.Document) *ports.Document {
	s.version++
	doc := &ports.Document{
		Collection: collection,
		ID:         id,
		Fields:     fields,
		Version:    s.version,
		UpdateTime: s.clock.Now().UTC().Truncate(time.Microsecond),
	}
	if existing != nil {
		doc.Seq = existing.Seq
	} else {
		s.seq[collection]++
		doc.Seq = s.seq[collection]
	}
	s.coll(collection)[id] = doc
	return docmatch.CloneDocument(doc)
}
