// Package projection builds the live, role-scoped view a session renders: the owner
// sees every worker, every job and the unread notifications; a worker sees only their
// own pending jobs.
package projection

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"jobline/internal/directory"
	"jobline/internal/docstore"
	"jobline/internal/domain"
	"jobline/internal/feed"
)

// Query is one live subscription a projection opens.
type Query struct {
	Collection string
	Filter     docstore.Filter
}

// JobsFilter scopes the jobs collection for v.
func JobsFilter(v domain.Viewer) docstore.Filter {
	if v.IsWorker() {
		return docstore.Where("assignedToId", v.Worker.ID).And("status", domain.JobStatusPending)
	}
	return nil
}

// Queries returns the subscriptions backing v's view.
func Queries(v domain.Viewer) []Query {
	switch {
	case v.IsOwner():
		return []Query{
			{Collection: domain.CollectionWorkers},
			{Collection: domain.CollectionJobs},
			{Collection: domain.CollectionNotifications, Filter: feed.UnreadFilter()},
		}
	case v.IsWorker():
		return []Query{{Collection: domain.CollectionJobs, Filter: JobsFilter(v)}}
	}
	return nil
}

// View is the merged state of every query of one viewer. Seq is the newest store
// revision reflected in it.
type View struct {
	Viewer        domain.Viewer
	Workers       []domain.Worker
	Jobs          []domain.Job
	Notifications []domain.Notification
	Seq           uint64
}

func (v View) UnreadCount() int {
	n := 0
	for _, note := range v.Notifications {
		if !note.Read {
			n++
		}
	}
	return n
}

// ScopeJobs keeps only the jobs v may see.
func ScopeJobs(v domain.Viewer, jobs []domain.Job) []domain.Job {
	if v.IsOwner() {
		return jobs
	}
	out := make([]domain.Job, 0, len(jobs))
	if !v.IsWorker() {
		return out
	}
	for _, j := range jobs {
		if j.AssignedToID == v.Worker.ID && j.Pending() {
			out = append(out, j)
		}
	}
	return out
}

// SortJobs orders jobs newest first.
func SortJobs(jobs []domain.Job) {
	sort.SliceStable(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
}

func sortNotifications(notes []domain.Notification) {
	sort.SliceStable(notes, func(i, j int) bool { return notes[i].CreatedAt.After(notes[j].CreatedAt) })
}

var ErrNoRole = errors.New("viewer has no role")

// Projection merges the snapshots of a viewer's subscriptions. Nothing is emitted
// until every subscription has delivered its initial snapshot.
type Projection struct {
	viewer domain.Viewer
	logger *slog.Logger
	subs   []*docstore.Subscription
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	out      chan View
	current  View
	received map[string]bool
	ready    bool
	closed   bool
}

// Open subscribes every query of viewer. Cancelling ctx closes the projection's
// subscriptions; Close must still be called to release it.
func Open(ctx context.Context, store docstore.Store, viewer domain.Viewer, logger *slog.Logger) (*Projection, error) {
	queries := Queries(viewer)
	if len(queries) == 0 {
		return nil, ErrNoRole
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	p := &Projection{
		viewer:   viewer,
		logger:   logger,
		cancel:   cancel,
		out:      make(chan View, 1),
		current:  View{Viewer: viewer},
		received: make(map[string]bool, len(queries)),
	}
	for _, q := range queries {
		sub, err := store.Subscribe(ctx, q.Collection, q.Filter)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.subs = append(p.subs, sub)
	}
	for _, sub := range p.subs {
		p.wg.Add(1)
		go p.follow(sub)
	}
	logger.Debug("projection opened", "role", viewer.Role, "actor_id", viewer.ActorID(), "queries", len(queries))
	return p, nil
}

func (p *Projection) follow(sub *docstore.Subscription) {
	defer p.wg.Done()
	for snap := range sub.C() {
		p.apply(snap)
	}
}

func (p *Projection) apply(snap docstore.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	var err error
	switch snap.Collection {
	case domain.CollectionWorkers:
		var workers []domain.Worker
		if workers, err = directory.Decode(snap.Records); err == nil {
			p.current.Workers = workers
		}
	case domain.CollectionJobs:
		var jobs []domain.Job
		if jobs, err = DecodeJobs(snap.Records); err == nil {
			jobs = ScopeJobs(p.viewer, jobs)
			SortJobs(jobs)
			p.current.Jobs = jobs
		}
	case domain.CollectionNotifications:
		var notes []domain.Notification
		if notes, err = feed.Decode(snap.Records); err == nil {
			sortNotifications(notes)
			p.current.Notifications = notes
		}
	}
	if err != nil {
		p.logger.Warn("projection decode failed", "collection", snap.Collection, "error", err)
		return
	}
	p.received[snap.Collection] = true
	if snap.Seq > p.current.Seq {
		p.current.Seq = snap.Seq
	}
	if !p.ready {
		if len(p.received) < len(p.subs) {
			return
		}
		p.ready = true
	}
	select {
	case <-p.out:
	default:
	}
	p.out <- p.snapshotLocked()
}

func (p *Projection) snapshotLocked() View {
	v := p.current
	v.Workers = append([]domain.Worker(nil), p.current.Workers...)
	v.Jobs = append([]domain.Job(nil), p.current.Jobs...)
	v.Notifications = append([]domain.Notification(nil), p.current.Notifications...)
	return v
}

// Updates yields the newest view after each change. A slow reader sees only the
// latest pending view. The channel is closed by Close.
func (p *Projection) Updates() <-chan View { return p.out }

// Current returns the latest merged view and whether every initial snapshot arrived.
func (p *Projection) Current() (View, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked(), p.ready
}

func (p *Projection) Viewer() domain.Viewer { return p.viewer }

// Close releases every subscription. After Close returns no further view is
// delivered. Close is idempotent.
func (p *Projection) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	select {
	case <-p.out:
	default:
	}
	close(p.out)
	p.mu.Unlock()

	p.cancel()
	for _, sub := range p.subs {
		sub.Close()
	}
	p.wg.Wait()
	p.logger.Debug("projection closed", "role", p.viewer.Role, "actor_id", p.viewer.ActorID())
}

// DecodeJobs converts job records.
func DecodeJobs(records []docstore.Record) ([]domain.Job, error) {
	out := make([]domain.Job, 0, len(records))
	for _, rec := range records {
		var j domain.Job
		if err := rec.Decode(&j); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}
