package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"scrumgame/internal/config"
	"scrumgame/internal/domain"
	"scrumgame/internal/engine"
)

const defaultWebhookTimeout = 5 * time.Second

// WebhookDispatcher forwards public events to the webhooks configured in
// each project's config. Delivery is best effort: failures are logged and
// the event is not retried.
type WebhookDispatcher struct {
	engine *engine.Engine
	client *http.Client
	logger *slog.Logger
}

func NewWebhookDispatcher(e *engine.Engine, logger *slog.Logger) *WebhookDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookDispatcher{
		engine: e,
		client: &http.Client{Timeout: defaultWebhookTimeout},
		logger: logger.With("component", "webhooks"),
	}
}

// Run delivers events until ctx ends or the event hub stops.
func (d *WebhookDispatcher) Run(ctx context.Context) {
	sub := d.engine.Events.Hub.Subscribe(func(e domain.Event) bool {
		return e.Visibility == domain.VisibilityPublic
	})
	defer d.engine.Events.Hub.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case ev, ok := <-sub.Values():
			if !ok {
				return
			}
			d.Dispatch(ctx, ev)
		}
	}
}

// Dispatch posts ev to every enabled webhook of its project that accepts the type.
func (d *WebhookDispatcher) Dispatch(ctx context.Context, ev domain.Event) {
	cfg, err := d.engine.Repo.GetProjectConfig(ctx, ev.ProjectID)
	if err != nil {
		d.logger.Debug("no project config", "project_id", ev.ProjectID, "error", err)
		return
	}
	for _, hook := range cfg.Webhooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if !newEventFilter(hook.Events).match(ev.Type) {
			continue
		}
		if err := d.postEvent(ctx, hook, ev); err != nil {
			d.logger.Warn("webhook delivery failed", "url", hook.URL, "event_id", ev.ID, "error", err)
		}
	}
}

func (d *WebhookDispatcher) postEvent(ctx context.Context, hook config.WebhookConfig, ev domain.Event) error {
	data, err := json.Marshal(eventResponse(ev))
	if err != nil {
		return err
	}
	client := d.client
	if hook.TimeoutSeconds > 0 {
		client = &http.Client{Timeout: time.Duration(hook.TimeoutSeconds) * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Scrumgame-Event", ev.Type)
	req.Header.Set("X-Scrumgame-Delivery", ev.ID)
	req.Header.Set("X-Scrumgame-Project", ev.ProjectID)
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Scrumgame-Secret", hook.Secret)
	}
	res, err := client.Do(req)
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

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(types []string) eventFilter {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		if key := strings.TrimSpace(t); key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(eventType string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[eventType]
	return ok
}
