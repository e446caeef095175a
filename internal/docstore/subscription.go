package docstore

import (
	"sort"
	"sync"
)

// Subscription is a live query. It keeps the current matching set and pushes a full
// Snapshot on C whenever a committed change adds, modifies or removes a member.
//
// The channel holds at most one pending snapshot: a consumer that falls behind skips
// intermediate revisions but never receives an older snapshot after a newer one.
type Subscription struct {
	id         uint64
	collection string
	filter     Filter

	mu      sync.Mutex
	ch      chan Snapshot
	members map[string]Record
	lastSeq uint64
	sent    bool
	closed  bool

	release func()
	stop    func() bool
}

func newSubscription(id uint64, collection string, filter Filter) *Subscription {
	return &Subscription{
		id:         id,
		collection: collection,
		filter:     filter,
		ch:         make(chan Snapshot, 1),
		members:    make(map[string]Record),
	}
}

// C returns the snapshot channel. It is closed by Close.
func (s *Subscription) C() <-chan Snapshot { return s.ch }

func (s *Subscription) Collection() string { return s.collection }

func (s *Subscription) Filter() Filter { return s.filter }

// Close tears the subscription down. Once Close returns no further snapshot is
// delivered, and a snapshot still buffered is discarded. Close is idempotent.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	select {
	case <-s.ch:
	default:
	}
	close(s.ch)
	stop, release := s.stop, s.release
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
	if release != nil {
		release()
	}
}

func (s *Subscription) setStop(stop func() bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		stop()
		return
	}
	s.stop = stop
	s.mu.Unlock()
}

// Closed reports whether Close has been called.
func (s *Subscription) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Subscription) init(seq uint64, records []Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for _, r := range records {
		s.members[r.ID] = r.Clone()
	}
	s.deliverLocked(seq)
}

func (s *Subscription) apply(seq uint64, changes []change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	touched := false
	for _, c := range changes {
		if c.collection != s.collection {
			continue
		}
		if s.filter.Match(c.record.Fields) {
			s.members[c.record.ID] = c.record.Clone()
			touched = true
			continue
		}
		if _, ok := s.members[c.record.ID]; ok {
			delete(s.members, c.record.ID)
			touched = true
		}
	}
	if touched {
		s.deliverLocked(seq)
	}
}

func (s *Subscription) deliverLocked(seq uint64) {
	if s.sent && seq <= s.lastSeq {
		return
	}
	records := make([]Record, 0, len(s.members))
	// Each snapshot owns its Fields; consumers may modify them.
	for _, r := range s.members {
		records = append(records, r.Clone())
	}
	sort.Slice(records, func(i, j int) bool { return records[i].seq < records[j].seq })
	snap := Snapshot{Collection: s.collection, Seq: seq, Records: records}
	// Only this method sends, always under s.mu, so after draining the send cannot block.
	select {
	case <-s.ch:
	default:
	}
	s.ch <- snap
	s.lastSeq = seq
	s.sent = true
}
