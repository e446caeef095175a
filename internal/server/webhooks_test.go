package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"jobline/internal/config"
	"jobline/internal/db"
	"jobline/internal/events"
	"jobline/internal/logging"
	"jobline/internal/migrate"
	"jobline/internal/repo"
)

type hookRecorder struct {
	mu       sync.Mutex
	received []webhookEvent
	secrets  []string
}

func (h *hookRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var evt webhookEvent
	if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.mu.Lock()
	h.received = append(h.received, evt)
	h.secrets = append(h.secrets, r.Header.Get("X-Jobline-Secret"))
	h.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (h *hookRecorder) events() []webhookEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]webhookEvent(nil), h.received...)
}

func TestWebhookDispatcherDeliversFilteredEvents(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "hooks.db")})
	require.NoError(t, err)
	defer conn.Close()
	_, err = migrate.Migrate(ctx, conn.DB)
	require.NoError(t, err)
	writer := events.Writer{DB: conn}
	_, err = writer.Append(ctx, events.JobCompleted, "job", "old", "w1", nil)
	require.NoError(t, err)

	rec := &hookRecorder{}
	hookSrv := httptest.NewServer(rec)
	defer hookSrv.Close()
	cfg := config.Default("hooks")
	cfg.Webhooks = []config.WebhookConfig{{URL: hookSrv.URL, Events: []string{events.JobCompleted}, Secret: "s3cret"}}
	r := repo.Repo{DB: conn}

	d := NewWebhookDispatcher(r, cfg, logging.Discard())
	require.NotNil(t, d, "expected a dispatcher for an active hook")
	d.DispatchAll(ctx)
	require.Empty(t, rec.events(), "events before the first round must be skipped")

	_, err = writer.Append(ctx, events.JobCreated, "job", "j1", "owner", nil)
	require.NoError(t, err)
	_, err = writer.Append(ctx, events.JobCompleted, "job", "j1", "w1", events.EventPayload{"reward": 50})
	require.NoError(t, err)
	d.DispatchAll(ctx)
	got := rec.events()
	require.Len(t, got, 1)
	require.Equal(t, "j1", got[0].EntityID)
	require.Equal(t, "hooks", got[0].AppID)
	require.Equal(t, "s3cret", rec.secrets[0])

	restarted := NewWebhookDispatcher(r, cfg, logging.Discard())
	restarted.DispatchAll(ctx)
	require.Len(t, rec.events(), 1, "restart redelivered events")
}

func TestNewWebhookDispatcherSkipsInactiveHooks(t *testing.T) {
	cfg := config.Default("hooks")
	off := false
	cfg.Webhooks = []config.WebhookConfig{{URL: "http://127.0.0.1:1", Enabled: &off}, {URL: " "}}
	require.Nil(t, NewWebhookDispatcher(repo.Repo{}, cfg, nil))
}

func TestEventFilter(t *testing.T) {
	require.True(t, newEventFilter(nil).match("anything"), "empty filter must match all")
	f := newEventFilter([]string{" job.completed ", ""})
	require.True(t, f.match("job.completed"))
	require.False(t, f.match("job.created"))
}
