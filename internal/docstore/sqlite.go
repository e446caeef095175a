package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Namespace returns the collection prefix for an application id.
func Namespace(appID string) string {
	if appID == "" {
		appID = "default-app-id"
	}
	return path.Join("artifacts", appID, "public", "data")
}

// SQLite stores documents in the documents table. Writes and subscription
// registration are serialized, so every subscriber observes commits in order and a
// new subscriber's initial snapshot is consistent with the pushes that follow it.
// Pushes reach subscribers of this instance only.
type SQLite struct {
	db        *sqlx.DB
	namespace string
	logger    *slog.Logger
	now       func() time.Time

	writeMu sync.Mutex
	seq     uint64
	lastTS  time.Time
	hub     *hub
}

type Option func(*SQLite)

func WithNamespace(appID string) Option {
	return func(s *SQLite) { s.namespace = Namespace(appID) }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *SQLite) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *SQLite) { s.now = now }
}

func NewSQLite(db *sqlx.DB, opts ...Option) *SQLite {
	s := &SQLite{
		db:        db,
		namespace: Namespace(""),
		logger:    slog.Default(),
		now:       time.Now,
		hub:       newHub(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Store = (*SQLite)(nil)

type documentRow struct {
	Seq       int64  `db:"seq"`
	ID        string `db:"id"`
	DataJSON  string `db:"data_json"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
}

func (r documentRow) record() (Record, error) {
	rec := Record{ID: r.ID, seq: r.Seq, Fields: Fields{}}
	if err := json.Unmarshal([]byte(r.DataJSON), &rec.Fields); err != nil {
		return rec, fmt.Errorf("document %s: %w", r.ID, err)
	}
	var err error
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, r.CreatedAt); err != nil {
		return rec, fmt.Errorf("document %s created_at: %w", r.ID, err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, r.UpdatedAt); err != nil {
		return rec, fmt.Errorf("document %s updated_at: %w", r.ID, err)
	}
	return rec, nil
}

func (s *SQLite) path(collection string) string {
	return s.namespace + "/" + collection
}

// stamp returns a strictly increasing creation timestamp. Callers hold writeMu.
func (s *SQLite) stamp() time.Time {
	now := s.now().UTC()
	if !now.After(s.lastTS) {
		now = s.lastTS.Add(time.Nanosecond)
	}
	s.lastTS = now
	return now
}

func (s *SQLite) Create(ctx context.Context, collection string, fields Fields) (Record, error) {
	var rec Record
	err := s.RunInTx(ctx, func(tx Tx) error {
		var err error
		rec, err = tx.Create(ctx, collection, fields)
		return err
	})
	return rec, err
}

func (s *SQLite) Update(ctx context.Context, collection, id string, fields Fields) error {
	return s.RunInTx(ctx, func(tx Tx) error {
		return tx.Update(ctx, collection, id, fields)
	})
}

func (s *SQLite) Get(ctx context.Context, collection, id string) (Record, error) {
	rec, err := s.get(ctx, s.db, collection, id)
	return rec, storeErr("get", err)
}

func (s *SQLite) QueryOnce(ctx context.Context, collection string, filter Filter) ([]Record, error) {
	records, err := s.query(ctx, s.db, collection, filter)
	return records, storeErr("query", err)
}

// Subscribe registers a live query. The initial snapshot is already buffered on the
// returned subscription's channel. Cancelling ctx closes the subscription.
func (s *SQLite) Subscribe(ctx context.Context, collection string, filter Filter) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	records, err := s.query(ctx, s.db, collection, filter)
	if err != nil {
		return nil, storeErr("subscribe", err)
	}
	sub := s.hub.add(collection, filter)
	sub.init(s.seq, records)
	sub.setStop(context.AfterFunc(ctx, sub.Close))
	s.logger.Debug("subscription opened", "collection", collection, "filter", filter.String(), "records", len(records))
	return sub, nil
}

func (s *SQLite) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return storeErr("begin", err)
	}
	defer tx.Rollback()
	w := &sqliteTx{store: s, tx: tx}
	if err := fn(w); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storeErr("commit", err)
	}
	if len(w.changes) > 0 {
		s.seq++
		s.hub.publish(s.seq, w.changes)
	}
	return nil
}

// SubscriberCount returns the number of open subscriptions.
func (s *SQLite) SubscriberCount() int { return s.hub.count() }

// Close tears down every open subscription. The database is owned by the caller.
func (s *SQLite) Close() {
	s.hub.closeAll()
}

func (s *SQLite) get(ctx context.Context, q sqlx.QueryerContext, collection, id string) (Record, error) {
	var row documentRow
	err := sqlx.GetContext(ctx, q, &row,
		`SELECT seq,id,data_json,created_at,updated_at FROM documents WHERE collection=? AND id=?`,
		s.path(collection), id)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, NotFoundError{Collection: collection, ID: id}
	}
	if err != nil {
		return Record{}, err
	}
	return row.record()
}

// query loads the collection in insertion order and applies filter in Go so the
// same matching rule is used here and for pushed changes.
func (s *SQLite) query(ctx context.Context, q sqlx.QueryerContext, collection string, filter Filter) ([]Record, error) {
	var rows []documentRow
	if err := sqlx.SelectContext(ctx, q, &rows,
		`SELECT seq,id,data_json,created_at,updated_at FROM documents WHERE collection=? ORDER BY seq ASC`,
		s.path(collection)); err != nil {
		return nil, err
	}
	res := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		if filter.Match(rec.Fields) {
			res = append(res, rec)
		}
	}
	return res, nil
}

type sqliteTx struct {
	store   *SQLite
	tx      *sqlx.Tx
	changes []change
}

func (t *sqliteTx) Get(ctx context.Context, collection, id string) (Record, error) {
	rec, err := t.store.get(ctx, t.tx, collection, id)
	return rec, storeErr("get", err)
}

func (t *sqliteTx) Create(ctx context.Context, collection string, fields Fields) (Record, error) {
	body := stripReserved(fields)
	data, err := json.Marshal(body)
	if err != nil {
		return Record{}, storeErr("create", err)
	}
	ts := t.store.stamp()
	rec := Record{ID: uuid.New().String(), CreatedAt: ts, UpdatedAt: ts}
	stamp := ts.Format(time.RFC3339Nano)
	res, err := t.tx.ExecContext(ctx, `INSERT INTO documents(collection,id,data_json,created_at,updated_at) VALUES (?,?,?,?,?)`,
		t.store.path(collection), rec.ID, string(data), stamp, stamp)
	if err != nil {
		return Record{}, storeErr("create", err)
	}
	if rec.seq, err = res.LastInsertId(); err != nil {
		return Record{}, storeErr("create", err)
	}
	// Re-read the body through JSON so pushed records look exactly like loaded ones.
	if err := json.Unmarshal(data, &rec.Fields); err != nil {
		return Record{}, storeErr("create", err)
	}
	t.changes = append(t.changes, change{collection: collection, record: rec.Clone()})
	return rec, nil
}

func (t *sqliteTx) Update(ctx context.Context, collection, id string, fields Fields) error {
	rec, err := t.store.get(ctx, t.tx, collection, id)
	if err != nil {
		return storeErr("update", err)
	}
	merged := make(Fields, len(rec.Fields)+len(fields))
	maps.Copy(merged, rec.Fields)
	maps.Copy(merged, stripReserved(fields))
	data, err := json.Marshal(merged)
	if err != nil {
		return storeErr("update", err)
	}
	rec.UpdatedAt = t.store.now().UTC()
	if _, err := t.tx.ExecContext(ctx, `UPDATE documents SET data_json=?, updated_at=? WHERE collection=? AND id=?`,
		string(data), rec.UpdatedAt.Format(time.RFC3339Nano), t.store.path(collection), id); err != nil {
		return storeErr("update", err)
	}
	rec.Fields = Fields{}
	if err := json.Unmarshal(data, &rec.Fields); err != nil {
		return storeErr("update", err)
	}
	t.changes = append(t.changes, change{collection: collection, record: rec})
	return nil
}

// stripReserved drops keys owned by the store.
func stripReserved(fields Fields) Fields {
	out := make(Fields, len(fields))
	for k, v := range fields {
		if k == "id" || k == "createdAt" {
			continue
		}
		out[k] = v
	}
	return out
}
