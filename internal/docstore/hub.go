package docstore

import "sync"

type change struct {
	collection string
	record     Record
}

// hub fans committed changes out to the subscriptions of the touched collections.
type hub struct {
	mu   sync.Mutex
	next uint64
	subs map[string]map[uint64]*Subscription
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[uint64]*Subscription)}
}

func (h *hub) add(collection string, filter Filter) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	sub := newSubscription(h.next, collection, filter)
	if h.subs[collection] == nil {
		h.subs[collection] = make(map[uint64]*Subscription)
	}
	h.subs[collection][sub.id] = sub
	sub.release = func() { h.remove(collection, sub.id) }
	return sub
}

func (h *hub) remove(collection string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[collection]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(h.subs, collection)
		}
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, set := range h.subs {
		n += len(set)
	}
	return n
}

// publish must be called in commit order.
func (h *hub) publish(seq uint64, changes []change) {
	if len(changes) == 0 {
		return
	}
	seen := make(map[string]bool)
	var targets []*Subscription
	h.mu.Lock()
	for _, c := range changes {
		if seen[c.collection] {
			continue
		}
		seen[c.collection] = true
		for _, sub := range h.subs[c.collection] {
			targets = append(targets, sub)
		}
	}
	h.mu.Unlock()
	for _, sub := range targets {
		sub.apply(seq, changes)
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	var all []*Subscription
	for _, set := range h.subs {
		for _, sub := range set {
			all = append(all, sub)
		}
	}
	h.mu.Unlock()
	for _, sub := range all {
		sub.Close()
	}
}
