// Package events appends entries to the audit log.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const (
	WorkerCreated            = "worker.created"
	JobCreated               = "job.created"
	JobCompleted             = "job.completed"
	NotificationCreated      = "notification.created"
	NotificationAcknowledged = "notification.acknowledged"
	SessionStarted           = "session.started"
	SessionEnded             = "session.ended"
)

// Types lists every event type the system writes.
var Types = []string{
	WorkerCreated, JobCreated, JobCompleted, NotificationCreated,
	NotificationAcknowledged, SessionStarted, SessionEnded,
}

type Writer struct {
	DB  *sqlx.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append writes one event and returns its id.
func (w Writer) Append(ctx context.Context, evtType, entityKind, entityID, actorID string, payload EventPayload) (int64, error) {
	if w.DB == nil {
		return 0, nil
	}
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339Nano)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal event payload: %w", err)
	}
	res, err := w.DB.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, entityKind, entityID, actorID, string(data))
	if err != nil {
		return 0, fmt.Errorf("append %s event: %w", evtType, err)
	}
	return res.LastInsertId()
}
