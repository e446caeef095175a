package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"jobline/internal/config"
	"jobline/internal/directory"
	"jobline/internal/docstore"
	"jobline/internal/domain"
	"jobline/internal/engine/auth"
	"jobline/internal/events"
	"jobline/internal/feed"
	"jobline/internal/projection"
	"jobline/internal/repo"
)

// UnknownAssigneeName is recorded when the assigned worker has no display name.
const UnknownAssigneeName = "Unknown"

// ValidationError reports missing or malformed input.
type ValidationError = domain.ValidationError

// ErrJobNotPending is returned when completing a job that is already completed.
var ErrJobNotPending = errors.New("job is not pending")

type Engine struct {
	Store     docstore.Store
	Directory directory.Directory
	Feed      feed.Feed
	Repo      repo.Repo
	Events    events.Writer
	Policy    auth.Policy
	Logger    *slog.Logger
	Now       func() time.Time
}

func New(store docstore.Store, db *sqlx.DB, cfg *config.Config, logger *slog.Logger) Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return Engine{
		Store:     store,
		Directory: directory.Directory{Store: store},
		Feed:      feed.Feed{Store: store},
		Repo:      repo.Repo{DB: db},
		Events:    events.Writer{DB: db},
		Policy:    auth.NewPolicy(cfg),
		Logger:    logger,
		Now:       time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// audit appends to the event log after the store write committed. The write already
// happened, so a failure is logged and not returned.
func (e Engine) audit(ctx context.Context, evtType, entityKind, entityID string, v domain.Viewer, payload events.EventPayload) {
	w := e.Events
	w.Now = e.now
	if _, err := w.Append(context.WithoutCancel(ctx), evtType, entityKind, entityID, v.ActorID(), payload); err != nil {
		e.logger().Error("audit append failed", "type", evtType, "entity_id", entityID, "error", err)
	}
}

// WorkerCreateOptions are parameters for adding a worker.
type WorkerCreateOptions struct {
	Name     string
	Email    string
	Password string
}

func (e Engine) AddWorker(ctx context.Context, v domain.Viewer, opts WorkerCreateOptions) (domain.Worker, error) {
	if err := e.Policy.Require(v, auth.PermWorkerCreate); err != nil {
		return domain.Worker{}, err
	}
	w, err := e.Directory.Add(ctx, opts.Name, opts.Email, opts.Password)
	if err != nil {
		return domain.Worker{}, err
	}
	e.audit(ctx, events.WorkerCreated, "worker", w.ID, v, events.EventPayload{"name": w.Name, "email": w.Email})
	e.logger().Info("worker added", "worker_id", w.ID)
	return w, nil
}

func (e Engine) ListWorkers(ctx context.Context, v domain.Viewer) ([]domain.Worker, error) {
	if err := e.Policy.Require(v, auth.PermWorkerList); err != nil {
		return nil, err
	}
	return e.Directory.List(ctx)
}

// JobCreateOptions are parameters for creating a job.
type JobCreateOptions struct {
	Title       string
	Description string
	Reward      float64
	AssigneeID  string
}

// ParseReward parses a textual reward. It must be a finite, non-negative number.
func ParseReward(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ValidationError{Field: "reward"}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, ValidationError{Field: "reward", Reason: "must be a number"}
	}
	if err := checkReward(f); err != nil {
		return 0, err
	}
	return f, nil
}

func checkReward(f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ValidationError{Field: "reward", Reason: "must be finite"}
	}
	if f < 0 {
		return ValidationError{Field: "reward", Reason: "must not be negative"}
	}
	return nil
}

// CreateJob assigns a new pending job. The assignee's current name is copied onto the
// job and not updated afterwards.
func (e Engine) CreateJob(ctx context.Context, v domain.Viewer, opts JobCreateOptions) (domain.Job, error) {
	if err := e.Policy.Require(v, auth.PermJobCreate); err != nil {
		return domain.Job{}, err
	}
	switch {
	case strings.TrimSpace(opts.Title) == "":
		return domain.Job{}, ValidationError{Field: "title"}
	case strings.TrimSpace(opts.Description) == "":
		return domain.Job{}, ValidationError{Field: "description"}
	case strings.TrimSpace(opts.AssigneeID) == "":
		return domain.Job{}, ValidationError{Field: "assignee_id"}
	}
	if err := checkReward(opts.Reward); err != nil {
		return domain.Job{}, err
	}
	worker, err := e.Directory.Get(ctx, opts.AssigneeID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return domain.Job{}, ValidationError{Field: "assignee_id", Reason: fmt.Sprintf("references unknown worker %s", opts.AssigneeID)}
		}
		return domain.Job{}, err
	}
	name := worker.Name
	if strings.TrimSpace(name) == "" {
		name = UnknownAssigneeName
	}
	rec, err := e.Store.Create(ctx, domain.CollectionJobs, docstore.Fields{
		"title":          opts.Title,
		"description":    opts.Description,
		"reward":         opts.Reward,
		"assignedToId":   worker.ID,
		"assignedToName": name,
		"status":         domain.JobStatusPending,
	})
	if err != nil {
		return domain.Job{}, err
	}
	var job domain.Job
	if err := rec.Decode(&job); err != nil {
		return domain.Job{}, err
	}
	e.audit(ctx, events.JobCreated, "job", job.ID, v, events.EventPayload{
		"title": job.Title, "reward": job.Reward, "assigned_to_id": job.AssignedToID,
	})
	e.logger().Info("job created", "job_id", job.ID, "assigned_to_id", job.AssignedToID)
	return job, nil
}

// ListJobs returns the jobs visible to v, newest first: every job for the owner, the
// worker's own pending jobs otherwise.
func (e Engine) ListJobs(ctx context.Context, v domain.Viewer) ([]domain.Job, error) {
	if err := e.Policy.Require(v, auth.PermJobList); err != nil {
		return nil, err
	}
	records, err := e.Store.QueryOnce(ctx, domain.CollectionJobs, projection.JobsFilter(v))
	if err != nil {
		return nil, err
	}
	jobs, err := projection.DecodeJobs(records)
	if err != nil {
		return nil, err
	}
	jobs = projection.ScopeJobs(v, jobs)
	projection.SortJobs(jobs)
	return jobs, nil
}

func (e Engine) GetJob(ctx context.Context, v domain.Viewer, id string) (domain.Job, error) {
	if err := e.Policy.Require(v, auth.PermJobList); err != nil {
		return domain.Job{}, err
	}
	rec, err := e.Store.Get(ctx, domain.CollectionJobs, id)
	if err != nil {
		return domain.Job{}, err
	}
	var job domain.Job
	if err := rec.Decode(&job); err != nil {
		return domain.Job{}, err
	}
	if v.IsWorker() && job.AssignedToID != v.Worker.ID {
		return domain.Job{}, docstore.NotFoundError{Collection: domain.CollectionJobs, ID: id}
	}
	return job, nil
}

func ensureJobTransition(oldStatus, newStatus string) error {
	switch oldStatus {
	case domain.JobStatusPending:
		if newStatus == domain.JobStatusCompleted {
			return nil
		}
	case domain.JobStatusCompleted:
		return fmt.Errorf("%w: already %s", ErrJobNotPending, oldStatus)
	}
	return fmt.Errorf("invalid job status transition %s -> %s", oldStatus, newStatus)
}

// CompleteJob marks the viewer's pending job completed and appends the owner
// notification in the same store transaction. A repeated call is an error, not a
// silent success: it returns ErrJobNotPending and appends nothing.
func (e Engine) CompleteJob(ctx context.Context, v domain.Viewer, jobID string) (domain.Job, domain.Notification, error) {
	if err := e.Policy.Require(v, auth.PermJobComplete); err != nil {
		return domain.Job{}, domain.Notification{}, err
	}
	if !v.IsWorker() {
		return domain.Job{}, domain.Notification{}, auth.ForbiddenError{Permission: auth.PermJobComplete, Reason: "only workers complete jobs"}
	}
	if strings.TrimSpace(jobID) == "" {
		return domain.Job{}, domain.Notification{}, ValidationError{Field: "job_id"}
	}
	var (
		job  domain.Job
		note domain.Notification
	)
	err := e.Store.RunInTx(ctx, func(tx docstore.Tx) error {
		rec, err := tx.Get(ctx, domain.CollectionJobs, jobID)
		if err != nil {
			return err
		}
		if err := rec.Decode(&job); err != nil {
			return err
		}
		if job.AssignedToID != v.Worker.ID {
			return auth.ForbiddenError{Permission: auth.PermJobComplete, Reason: "job is assigned to another worker"}
		}
		if err := ensureJobTransition(job.Status, domain.JobStatusCompleted); err != nil {
			return err
		}
		if err := tx.Update(ctx, domain.CollectionJobs, jobID, docstore.Fields{"status": domain.JobStatusCompleted}); err != nil {
			return err
		}
		job.Status = domain.JobStatusCompleted
		note, err = e.Feed.Append(ctx, tx, feed.CompletionMessage(job.Title, v.Worker.Name))
		return err
	})
	if err != nil {
		return domain.Job{}, domain.Notification{}, err
	}
	e.audit(ctx, events.JobCompleted, "job", job.ID, v, events.EventPayload{"title": job.Title, "reward": job.Reward})
	e.audit(ctx, events.NotificationCreated, "notification", note.ID, v, events.EventPayload{"message": note.Message, "job_id": job.ID})
	e.logger().Info("job completed", "job_id", job.ID, "worker_id", v.Worker.ID, "notification_id", note.ID)
	return job, note, nil
}

// ListNotifications returns unread notifications, newest first.
func (e Engine) ListNotifications(ctx context.Context, v domain.Viewer) ([]domain.Notification, error) {
	if err := e.Policy.Require(v, auth.PermNotificationRead); err != nil {
		return nil, err
	}
	notes, err := e.Feed.Unread(ctx)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(notes)-1; i < j; i, j = i+1, j-1 {
		notes[i], notes[j] = notes[j], notes[i]
	}
	return notes, nil
}

// AcknowledgeNotification marks a notification read. Acknowledging an already read
// notification succeeds without a change.
func (e Engine) AcknowledgeNotification(ctx context.Context, v domain.Viewer, id string) (domain.Notification, error) {
	if err := e.Policy.Require(v, auth.PermNotificationAck); err != nil {
		return domain.Notification{}, err
	}
	if strings.TrimSpace(id) == "" {
		return domain.Notification{}, ValidationError{Field: "notification_id"}
	}
	n, changed, err := e.Feed.Acknowledge(ctx, id)
	if err != nil {
		return domain.Notification{}, err
	}
	if changed {
		e.audit(ctx, events.NotificationAcknowledged, "notification", n.ID, v, nil)
		e.logger().Info("notification acknowledged", "notification_id", n.ID)
	}
	return n, nil
}

// ListEvents returns audit events newest first, older than cursor when it is positive.
func (e Engine) ListEvents(ctx context.Context, v domain.Viewer, limit int, cursor int64, f repo.EventFilters) ([]domain.Event, error) {
	if err := e.Policy.Require(v, auth.PermEventsRead); err != nil {
		return nil, err
	}
	return e.Repo.LatestEventsFrom(ctx, limit, cursor, f)
}

// RecordSession appends a session.started or session.ended event.
func (e Engine) RecordSession(ctx context.Context, evtType, sessionID string, v domain.Viewer) {
	e.audit(ctx, evtType, "session", sessionID, v, events.EventPayload{"role": string(v.Role)})
}
