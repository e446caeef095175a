// Package directory keeps the worker records: display name and login credentials.
// Workers are append-only.
package directory

import (
	"context"
	"strings"

	"jobline/internal/docstore"
	"jobline/internal/domain"
)

type Directory struct {
	Store docstore.Store
}

// Add creates a worker. Name, email and password are all required.
func (d Directory) Add(ctx context.Context, name, email, password string) (domain.Worker, error) {
	switch {
	case strings.TrimSpace(name) == "":
		return domain.Worker{}, domain.ValidationError{Field: "name"}
	case strings.TrimSpace(email) == "":
		return domain.Worker{}, domain.ValidationError{Field: "email"}
	case password == "":
		return domain.Worker{}, domain.ValidationError{Field: "password"}
	}
	rec, err := d.Store.Create(ctx, domain.CollectionWorkers, docstore.Fields{
		"name":     name,
		"email":    email,
		"password": password,
	})
	if err != nil {
		return domain.Worker{}, err
	}
	var w domain.Worker
	err = rec.Decode(&w)
	return w, err
}

func (d Directory) Get(ctx context.Context, id string) (domain.Worker, error) {
	rec, err := d.Store.Get(ctx, domain.CollectionWorkers, id)
	if err != nil {
		return domain.Worker{}, err
	}
	var w domain.Worker
	err = rec.Decode(&w)
	return w, err
}

// List returns every worker in creation order.
func (d Directory) List(ctx context.Context) ([]domain.Worker, error) {
	records, err := d.Store.QueryOnce(ctx, domain.CollectionWorkers, nil)
	if err != nil {
		return nil, err
	}
	return Decode(records)
}

// FindByCredentials runs a single query for an exact email and password match. When
// several workers share the pair the earliest one wins.
func (d Directory) FindByCredentials(ctx context.Context, email, password string) (domain.Worker, bool, error) {
	records, err := d.Store.QueryOnce(ctx, domain.CollectionWorkers,
		docstore.Where("email", email).And("password", password))
	if err != nil {
		return domain.Worker{}, false, err
	}
	if len(records) == 0 {
		return domain.Worker{}, false, nil
	}
	var w domain.Worker
	if err := records[0].Decode(&w); err != nil {
		return domain.Worker{}, false, err
	}
	return w, true, nil
}

// Subscribe opens a live query over all workers.
func (d Directory) Subscribe(ctx context.Context) (*docstore.Subscription, error) {
	return d.Store.Subscribe(ctx, domain.CollectionWorkers, nil)
}

func Decode(records []docstore.Record) ([]domain.Worker, error) {
	out := make([]domain.Worker, 0, len(records))
	for _, rec := range records {
		var w domain.Worker
		if err := rec.Decode(&w); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}
