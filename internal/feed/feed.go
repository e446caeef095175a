// Package feed records job completions as notifications for the owner.
package feed

import (
	"context"
	"fmt"

	"jobline/internal/docstore"
	"jobline/internal/domain"
)

type Feed struct {
	Store docstore.Store
}

// CompletionMessage is the text appended when a worker completes a job.
func CompletionMessage(jobTitle, workerName string) string {
	return fmt.Sprintf("Job \"%s\" completed by %s.", jobTitle, workerName)
}

// UnreadFilter selects notifications the owner has not acknowledged.
func UnreadFilter() docstore.Filter {
	return docstore.Where("read", false)
}

// Append adds an unread notification inside tx.
func (f Feed) Append(ctx context.Context, tx docstore.Tx, message string) (domain.Notification, error) {
	if message == "" {
		return domain.Notification{}, domain.ValidationError{Field: "message"}
	}
	rec, err := tx.Create(ctx, domain.CollectionNotifications, docstore.Fields{
		"message": message,
		"read":    false,
	})
	if err != nil {
		return domain.Notification{}, err
	}
	var n domain.Notification
	err = rec.Decode(&n)
	return n, err
}

// Acknowledge marks a notification read. changed is false when it already was.
func (f Feed) Acknowledge(ctx context.Context, id string) (domain.Notification, bool, error) {
	var (
		n       domain.Notification
		changed bool
	)
	err := f.Store.RunInTx(ctx, func(tx docstore.Tx) error {
		rec, err := tx.Get(ctx, domain.CollectionNotifications, id)
		if err != nil {
			return err
		}
		if err := rec.Decode(&n); err != nil {
			return err
		}
		if n.Read {
			return nil
		}
		if err := tx.Update(ctx, domain.CollectionNotifications, id, docstore.Fields{"read": true}); err != nil {
			return err
		}
		n.Read = true
		changed = true
		return nil
	})
	if err != nil {
		return domain.Notification{}, false, err
	}
	return n, changed, nil
}

// Unread returns unread notifications oldest first.
func (f Feed) Unread(ctx context.Context) ([]domain.Notification, error) {
	records, err := f.Store.QueryOnce(ctx, domain.CollectionNotifications, UnreadFilter())
	if err != nil {
		return nil, err
	}
	return Decode(records)
}

func (f Feed) Subscribe(ctx context.Context) (*docstore.Subscription, error) {
	return f.Store.Subscribe(ctx, domain.CollectionNotifications, UnreadFilter())
}

func Decode(records []docstore.Record) ([]domain.Notification, error) {
	out := make([]domain.Notification, 0, len(records))
	for _, rec := range records {
		var n domain.Notification
		if err := rec.Decode(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
