package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"jobline/internal/config"
	"jobline/internal/domain"
	"jobline/internal/repo"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
)

// WebhookDispatcher forwards audit events to the configured hooks. Each hook keeps
// its own cursor in the database so a restart resumes after the last delivery.
type WebhookDispatcher struct {
	Repo     repo.Repo
	AppID    string
	Hooks    []config.WebhookConfig
	Interval time.Duration
	Logger   *slog.Logger
	Now      func() time.Time

	client *http.Client
}

// NewWebhookDispatcher returns nil when no hook is active.
func NewWebhookDispatcher(r repo.Repo, cfg *config.Config, logger *slog.Logger) *WebhookDispatcher {
	if cfg == nil {
		return nil
	}
	var hooks []config.WebhookConfig
	for _, h := range cfg.Webhooks {
		if h.Active() {
			hooks = append(hooks, h)
		}
	}
	if len(hooks) == 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookDispatcher{
		Repo:     r,
		AppID:    cfg.App.ID,
		Hooks:    hooks,
		Interval: defaultWebhookInterval,
		Logger:   logger,
		Now:      time.Now,
	}
}

// Run delivers events until ctx is done.
func (d *WebhookDispatcher) Run(ctx context.Context) error {
	interval := d.Interval
	if interval <= 0 {
		interval = defaultWebhookInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		d.DispatchAll(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// DispatchAll runs one delivery round over every hook.
func (d *WebhookDispatcher) DispatchAll(ctx context.Context) {
	for _, hook := range d.Hooks {
		if ctx.Err() != nil {
			return
		}
		d.dispatchWebhook(ctx, hook)
	}
}

func (d *WebhookDispatcher) dispatchWebhook(ctx context.Context, hook config.WebhookConfig) {
	log := d.Logger.With("url", hook.URL)
	cursor, err := d.cursorFor(ctx, hook)
	if err != nil {
		log.Error("webhook: init cursor failed", "error", err)
		return
	}
	evts, err := d.Repo.EventsAfter(ctx, defaultWebhookBatch, cursor)
	if err != nil {
		log.Error("webhook: fetch events failed", "error", err)
		return
	}
	if len(evts) == 0 {
		return
	}
	filter := newEventFilter(hook.Events)
	delivered := cursor
	defer func() {
		if delivered == cursor {
			return
		}
		if err := d.Repo.SetWebhookCursor(context.WithoutCancel(ctx), hook.URL, delivered, d.now()); err != nil {
			log.Error("webhook: save cursor failed", "error", err)
		}
	}()
	for _, evt := range evts {
		if filter.match(evt.Type) {
			if err := d.postEvent(ctx, hook, evt); err != nil {
				log.Warn("webhook: delivery failed", "event_id", evt.ID, "error", err)
				return
			}
			log.Debug("webhook: delivered", "event_id", evt.ID, "type", evt.Type)
		}
		delivered = evt.ID
	}
}

// cursorFor starts a new hook at the head of the log.
func (d *WebhookDispatcher) cursorFor(ctx context.Context, hook config.WebhookConfig) (int64, error) {
	cur, err := d.Repo.WebhookCursor(ctx, hook.URL)
	if err == nil {
		return cur, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return 0, err
	}
	cur, err = d.Repo.LatestEventID(ctx)
	if err != nil {
		return 0, err
	}
	return cur, d.Repo.SetWebhookCursor(ctx, hook.URL, cur, d.now())
}

func (d *WebhookDispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

type webhookEvent struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	AppID      string          `json:"app_id"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

func (d *WebhookDispatcher) postEvent(ctx context.Context, hook config.WebhookConfig, evt domain.Event) error {
	payload := json.RawMessage("{}")
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage(evt.Payload)
	}
	data, err := json.Marshal(webhookEvent{
		ID:         evt.ID,
		Type:       evt.Type,
		AppID:      d.AppID,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
		Payload:    payload,
	})
	if err != nil {
		return err
	}
	timeout := defaultWebhookTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	if d.client == nil {
		d.client = &http.Client{}
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Jobline-Event", evt.Type)
	req.Header.Set("X-Jobline-Delivery", fmt.Sprintf("%d", evt.ID))
	req.Header.Set("X-Jobline-App", d.AppID)
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Jobline-Secret", hook.Secret)
	}
	res, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type eventFilter map[string]struct{}

// newEventFilter returns nil, which matches everything, for an empty list.
func newEventFilter(types []string) eventFilter {
	set := eventFilter{}
	for _, t := range types {
		if key := strings.TrimSpace(t); key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

func (f eventFilter) match(evtType string) bool {
	if f == nil {
		return true
	}
	_, ok := f[evtType]
	return ok
}
