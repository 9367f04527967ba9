package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"motorpool/internal/config"
	"motorpool/internal/domain"
	"motorpool/internal/engine"
)

const (
	webhookPollInterval   = 2 * time.Second
	defaultWebhookTimeout = 5 * time.Second
	webhookBatchSize      = 100
)

// hookState is one configured webhook endpoint plus its delivery state: an
// HTTP client with the hook's own timeout, the event-type filter, and a
// cursor into the event log. The cursor is primed to the latest event on
// first use so a restart does not replay history.
type hookState struct {
	cfg    config.WebhookConfig
	client *http.Client
	filter eventFilter
	cursor int64
	primed bool
}

type webhookDispatcher struct {
	engine engine.Engine
	fleet  string
	mu     sync.Mutex
	hooks  []*hookState
}

// newWebhookDispatcher builds the dispatcher for the fleet's configured
// webhooks, or returns nil when there is nothing to deliver to.
func newWebhookDispatcher(e engine.Engine) *webhookDispatcher {
	if e.Config == nil || strings.TrimSpace(e.Config.Fleet.ID) == "" {
		return nil
	}
	var hooks []*hookState
	for _, cfg := range e.Config.Webhooks {
		if cfg.Enabled != nil && !*cfg.Enabled {
			continue
		}
		if strings.TrimSpace(cfg.URL) == "" {
			continue
		}
		timeout := defaultWebhookTimeout
		if cfg.TimeoutSeconds > 0 {
			timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
		}
		hooks = append(hooks, &hookState{
			cfg:    cfg,
			client: &http.Client{Timeout: timeout},
			filter: newEventFilter(cfg.Events),
		})
	}
	if len(hooks) == 0 {
		return nil
	}
	return &webhookDispatcher{
		engine: e,
		fleet:  e.Config.Fleet.ID,
		hooks:  hooks,
	}
}

func startWebhookDispatcher(e engine.Engine) {
	if d := newWebhookDispatcher(e); d != nil {
		go d.run()
	}
}

func (d *webhookDispatcher) run() {
	ticker := time.NewTicker(webhookPollInterval)
	defer ticker.Stop()
	for {
		d.deliverPending(context.Background())
		<-ticker.C
	}
}

// deliverPending advances every hook through the event log. A failed
// delivery stops that hook's cursor so the event is retried on the next
// pass; filtered-out events advance the cursor without a POST.
func (d *webhookDispatcher) deliverPending(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, hook := range d.hooks {
		if !hook.primed {
			latest, err := d.engine.Repo.LatestEventID(ctx, d.fleet)
			if err != nil {
				log.Printf("webhook: prime cursor: %v", err)
				continue
			}
			hook.cursor = latest
			hook.primed = true
		}
		pending, err := d.engine.Repo.EventsAfter(ctx, webhookBatchSize, hook.cursor, d.fleet)
		if err != nil {
			log.Printf("webhook: fetch events: %v", err)
			continue
		}
		for _, evt := range pending {
			if hook.filter.match(evt.Type) {
				if err := d.post(ctx, hook, evt); err != nil {
					log.Printf("webhook: deliver %s to %s: %v", evt.Type, hook.cfg.URL, err)
					break
				}
			}
			hook.cursor = evt.ID
		}
	}
}

// webhookDelivery is the envelope POSTed to a hook. Reservation events carry
// the full reservation snapshot the transition committed; everything else
// keeps its raw payload.
type webhookDelivery struct {
	ID          int64               `json:"id"`
	Type        string              `json:"type"`
	FleetID     string              `json:"fleet_id"`
	EntityKind  string              `json:"entity_kind"`
	EntityID    string              `json:"entity_id,omitempty"`
	ActorID     string              `json:"actor_id"`
	TS          string              `json:"ts"`
	Reservation *domain.Reservation `json:"reservation,omitempty"`
	Payload     json.RawMessage     `json:"payload,omitempty"`
}

func newWebhookDelivery(evt domain.Event) webhookDelivery {
	delivery := webhookDelivery{
		ID:         evt.ID,
		Type:       evt.Type,
		FleetID:    evt.FleetID,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
	}
	raw := []byte(evt.Payload)
	if !json.Valid(raw) {
		return delivery
	}
	if strings.HasPrefix(evt.Type, "reservation.") {
		var snapshot struct {
			Reservation *domain.Reservation `json:"reservation"`
		}
		if err := json.Unmarshal(raw, &snapshot); err == nil && snapshot.Reservation != nil {
			delivery.Reservation = snapshot.Reservation
			return delivery
		}
	}
	delivery.Payload = json.RawMessage(raw)
	return delivery
}

func (d *webhookDispatcher) post(ctx context.Context, hook *hookState, evt domain.Event) error {
	body, err := json.Marshal(newWebhookDelivery(evt))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Motorpool-Event", evt.Type)
	req.Header.Set("X-Motorpool-Delivery", fmt.Sprintf("%d", evt.ID))
	req.Header.Set("X-Motorpool-Fleet", d.fleet)
	if strings.TrimSpace(hook.cfg.Secret) != "" {
		req.Header.Set("X-Motorpool-Secret", hook.cfg.Secret)
	}
	res, err := hook.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		if key := strings.TrimSpace(evt); key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
