// Package docstore is the document store adapter: schema-less collections with
// create, point update, one-shot queries and live query subscriptions that push the
// full matching set on every relevant change.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"
)

// Fields holds the schema-less body of a document.
type Fields map[string]any

// Record is a stored document with its store-assigned id and timestamps.
type Record struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	Fields    Fields

	seq int64
}

// Decode unmarshals the record into v, exposing the store-assigned id as "id" and the
// creation timestamp as "createdAt".
func (r Record) Decode(v any) error {
	doc := make(map[string]any, len(r.Fields)+2)
	maps.Copy(doc, r.Fields)
	doc["id"] = r.ID
	doc["createdAt"] = r.CreatedAt
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", r.ID, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode record %s: %w", r.ID, err)
	}
	return nil
}

// Clone returns a copy whose Fields can be modified without affecting r.
func (r Record) Clone() Record {
	r.Fields = maps.Clone(r.Fields)
	return r
}

// Snapshot is the full matching set of one subscription at store revision Seq.
type Snapshot struct {
	Collection string
	Seq        uint64
	Records    []Record
}

// Store is the contract the rest of the system consumes.
type Store interface {
	Create(ctx context.Context, collection string, fields Fields) (Record, error)
	Update(ctx context.Context, collection, id string, fields Fields) error
	Get(ctx context.Context, collection, id string) (Record, error)
	QueryOnce(ctx context.Context, collection string, filter Filter) ([]Record, error)
	Subscribe(ctx context.Context, collection string, filter Filter) (*Subscription, error)
	// RunInTx commits every write made through tx atomically, or none of them.
	// Subscribers are notified after commit.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the write surface available inside RunInTx.
type Tx interface {
	Get(ctx context.Context, collection, id string) (Record, error)
	Create(ctx context.Context, collection string, fields Fields) (Record, error)
	Update(ctx context.Context, collection, id string, fields Fields) error
}

// ErrNotFound matches any NotFoundError through errors.Is.
var ErrNotFound = errors.New("not found")

// NotFoundError reports a referenced id absent at write or read time.
type NotFoundError struct {
	Collection string
	ID         string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Collection, e.ID)
}

func (e NotFoundError) Is(target error) bool { return target == ErrNotFound }

// StoreError wraps a driver or transport failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var nf NotFoundError
	if errors.As(err, &nf) {
		return err
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
