package synclayer

import (
	"sync"

	"ridemarket/internal/ports"
)

type docKey struct {
	collection string
	id         string
}

// hub serializes committed changes into one global order. Changes are
// enqueued to every subscription of the collection while holding mu, so
// all subscriptions receive them in the same relative order.
type hub struct {
	mu       sync.Mutex
	versions map[docKey]int64
	subs     map[string]map[*Subscription]struct{}
}

func newHub() *hub {
	return &hub{
		versions: make(map[docKey]int64),
		subs:     make(map[string]map[*Subscription]struct{}),
	}
}

// publish delivers change unless a newer version of the document was
// already published. It reports whether the change was delivered.
func (h *hub) publish(change ports.Change) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := docKey{change.Collection, change.ID}
	if change.Version <= h.versions[key] {
		return false
	}
	h.versions[key] = change.Version

	for sub := range h.subs[change.Collection] {
		sub.enqueue(change)
	}
	return true
}

func (h *hub) register(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[sub.collection]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[sub.collection] = set
	}
	set[sub] = struct{}{}
}

func (h *hub) unregister(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[sub.collection]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.collection)
		}
	}
}

func (h *hub) all() []*Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*Subscription
	for _, set := range h.subs {
		for sub := range set {
			out = append(out, sub)
		}
	}
	return out
}

func (h *hub) count(collection string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[collection])
}
