// Package repo reads the audit log and the webhook delivery cursors.
package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"jobline/internal/domain"
)

type Repo struct {
	DB *sqlx.DB
}

var ErrNotFound = errors.New("not found")

// EventFilters narrows LatestEventsFrom. Empty fields match everything.
type EventFilters struct {
	Type       string
	EntityKind string
	EntityID   string
	ActorID    string
}

const eventColumns = `id,ts,type,entity_kind,entity_id,actor_id,payload_json`

func (r Repo) LatestEvents(ctx context.Context, limit int, f EventFilters) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, f)
}

// LatestEventsFrom returns events newest first. A positive cursor returns only events
// older than it.
func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, f EventFilters) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	clauses := []string{"1=1"}
	var args []any
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if f.ActorID != "" {
		clauses = append(clauses, "actor_id=?")
		args = append(args, f.ActorID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	query := fmt.Sprintf(`SELECT %s FROM events WHERE %s ORDER BY id DESC LIMIT ?`, eventColumns, strings.Join(clauses, " AND "))
	args = append(args, limit)
	var res []domain.Event
	if err := r.DB.SelectContext(ctx, &res, query, args...); err != nil {
		return nil, err
	}
	return res, nil
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	var res []domain.Event
	err := r.DB.SelectContext(ctx, &res,
		fmt.Sprintf(`SELECT %s FROM events WHERE id>? ORDER BY id ASC LIMIT ?`, eventColumns), cursor, limit)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// LatestEventID returns the most recent event ID, or 0 on an empty log.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	if err := r.DB.GetContext(ctx, &id, `SELECT COALESCE(MAX(id),0) FROM events`); err != nil {
		return 0, err
	}
	return id, nil
}

func (r Repo) GetEvent(ctx context.Context, id int64) (domain.Event, error) {
	var e domain.Event
	err := r.DB.GetContext(ctx, &e, fmt.Sprintf(`SELECT %s FROM events WHERE id=?`, eventColumns), id)
	if errors.Is(err, sql.ErrNoRows) {
		return e, ErrNotFound
	}
	return e, err
}

// WebhookCursor returns the last delivered event ID for url.
func (r Repo) WebhookCursor(ctx context.Context, url string) (int64, error) {
	var id int64
	err := r.DB.GetContext(ctx, &id, `SELECT last_event_id FROM webhook_cursors WHERE url=?`, url)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return id, err
}

func (r Repo) SetWebhookCursor(ctx context.Context, url string, eventID int64, now time.Time) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO webhook_cursors(url,last_event_id,updated_at) VALUES (?,?,?)
ON CONFLICT(url) DO UPDATE SET last_event_id=excluded.last_event_id, updated_at=excluded.updated_at`,
		url, eventID, now.UTC().Format(time.RFC3339))
	return err
}
