package feed

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"jobline/internal/db"
	"jobline/internal/docstore"
	"jobline/internal/logging"
	"jobline/internal/migrate"
)

func newFeed(t *testing.T) Feed {
	t.Helper()
	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "feed.db")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = migrate.Migrate(context.Background(), conn.DB)
	require.NoError(t, err)
	s := docstore.NewSQLite(conn, docstore.WithNamespace("test"), docstore.WithLogger(logging.Discard()))
	t.Cleanup(s.Close)
	return Feed{Store: s}
}

func TestCompletionMessage(t *testing.T) {
	require.Equal(t, `Job "Fix sink" completed by Ann.`, CompletionMessage("Fix sink", "Ann"))
}

func TestAppendAndAcknowledge(t *testing.T) {
	f := newFeed(t)
	ctx := context.Background()
	var id string
	err := f.Store.RunInTx(ctx, func(tx docstore.Tx) error {
		n, err := f.Append(ctx, tx, CompletionMessage("Fix sink", "Ann"))
		id = n.ID
		return err
	})
	require.NoError(t, err)

	unread, err := f.Unread(ctx)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	require.False(t, unread[0].Read)

	n, changed, err := f.Acknowledge(ctx, id)
	require.NoError(t, err)
	require.True(t, changed)
	require.True(t, n.Read)

	_, changed, err = f.Acknowledge(ctx, id)
	require.NoError(t, err)
	require.False(t, changed)

	unread, err = f.Unread(ctx)
	require.NoError(t, err)
	require.Empty(t, unread)

	_, _, err = f.Acknowledge(ctx, "missing")
	require.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestAppendRejectsEmptyMessage(t *testing.T) {
	f := newFeed(t)
	ctx := context.Background()
	err := f.Store.RunInTx(ctx, func(tx docstore.Tx) error {
		_, err := f.Append(ctx, tx, "")
		return err
	})
	require.Error(t, err)
}
