package directory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"jobline/internal/db"
	"jobline/internal/docstore"
	"jobline/internal/domain"
	"jobline/internal/logging"
	"jobline/internal/migrate"
)

func newDirectory(t *testing.T) Directory {
	t.Helper()
	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "dir.db")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = migrate.Migrate(context.Background(), conn.DB)
	require.NoError(t, err)
	s := docstore.NewSQLite(conn, docstore.WithNamespace("test"), docstore.WithLogger(logging.Discard()))
	t.Cleanup(s.Close)
	return Directory{Store: s}
}

func TestAddValidates(t *testing.T) {
	d := newDirectory(t)
	ctx := context.Background()
	cases := []struct {
		name, email, password, field string
	}{
		{"", "a@example.com", "pw", "name"},
		{"Ann", "  ", "pw", "email"},
		{"Ann", "a@example.com", "", "password"},
	}
	for _, tc := range cases {
		_, err := d.Add(ctx, tc.name, tc.email, tc.password)
		var verr domain.ValidationError
		require.True(t, errors.As(err, &verr), "expected validation error for %s", tc.field)
		require.Equal(t, tc.field, verr.Field)
	}
	workers, err := d.List(ctx)
	require.NoError(t, err)
	require.Empty(t, workers)
}

func TestFindByCredentialsFirstMatchWins(t *testing.T) {
	d := newDirectory(t)
	ctx := context.Background()
	first, err := d.Add(ctx, "Ann", "ann@example.com", "pw")
	require.NoError(t, err)
	_, err = d.Add(ctx, "Ann Two", "ann@example.com", "pw")
	require.NoError(t, err)

	w, ok, err := d.FindByCredentials(ctx, "ann@example.com", "pw")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, first.ID, w.ID)

	_, ok, err = d.FindByCredentials(ctx, "ann@example.com", "nope")
	require.NoError(t, err)
	require.False(t, ok)

	got, err := d.Get(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, "Ann", got.Name)

	workers, err := d.List(ctx)
	require.NoError(t, err)
	require.Len(t, workers, 2)
	require.Equal(t, first.ID, workers[0].ID)
}
