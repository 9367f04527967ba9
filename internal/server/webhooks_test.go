package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"motorpool/internal/config"
	"motorpool/internal/db"
	"motorpool/internal/domain"
	"motorpool/internal/engine"
	"motorpool/internal/migrate"
)

type webhookRecorder struct {
	mu         sync.Mutex
	deliveries []webhookDelivery
	headers    []http.Header
}

func (r *webhookRecorder) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var d webhookDelivery
		if err := json.NewDecoder(req.Body).Decode(&d); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		r.mu.Lock()
		r.deliveries = append(r.deliveries, d)
		r.headers = append(r.headers, req.Header.Clone())
		r.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}
}

func newWebhookEngine(t *testing.T, cfg *config.Config) engine.Engine {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	e.Now = func() time.Time { return testNow }
	ctx := context.Background()
	if _, err := e.InitFleet(ctx, cfg.Fleet.ID, "Test Pool", "", "mgr-1"); err != nil {
		t.Fatalf("init fleet: %v", err)
	}
	for _, a := range []domain.Actor{
		{ID: "mgr-1", Role: domain.RoleManager},
		{ID: "emp-1", Role: domain.RoleEmployee},
	} {
		if err := e.Repo.UpsertActor(ctx, a); err != nil {
			t.Fatalf("seed actor %s: %v", a.ID, err)
		}
	}
	return e
}

func TestWebhookDeliversReservationSnapshot(t *testing.T) {
	rec := &webhookRecorder{}
	receiver := httptest.NewServer(rec.handler())
	defer receiver.Close()

	cfg := config.Default("pool-1")
	cfg.Webhooks = []config.WebhookConfig{{
		URL:            receiver.URL,
		Secret:         "hook-secret",
		Events:         []string{"reservation.created", "reservation.approved"},
		TimeoutSeconds: 3,
	}}
	e := newWebhookEngine(t, cfg)
	ctx := context.Background()
	manager := domain.Actor{ID: "mgr-1", Role: domain.RoleManager}
	employee := domain.Actor{ID: "emp-1", Role: domain.RoleEmployee}
	vehicle, err := e.AddVehicle(ctx, manager, engine.AddVehicleOptions{
		Name: "Van 1", Plate: "KAA 001A", Category: "van", OdometerKm: 1200,
	})
	if err != nil {
		t.Fatalf("add vehicle: %v", err)
	}

	d := newWebhookDispatcher(e)
	if d == nil {
		t.Fatalf("expected a dispatcher for the configured hook")
	}
	if got := d.hooks[0].client.Timeout; got != 3*time.Second {
		t.Fatalf("expected the hook's configured timeout, got %s", got)
	}

	// First pass primes the cursor past the seed events.
	d.deliverPending(ctx)
	if len(rec.deliveries) != 0 {
		t.Fatalf("expected no deliveries before new events, got %d", len(rec.deliveries))
	}

	res, err := e.CreateReservation(ctx, employee, engine.CreateReservationOptions{
		VehicleID: vehicle.ID,
		Start:     testNow.Add(time.Hour),
		End:       testNow.Add(3 * time.Hour),
		Purpose:   "site visit",
	})
	if err != nil {
		t.Fatalf("create reservation: %v", err)
	}
	if _, err := e.ApproveReservation(ctx, manager, res.ID, ""); err != nil {
		t.Fatalf("approve: %v", err)
	}

	d.deliverPending(ctx)
	if len(rec.deliveries) != 2 {
		t.Fatalf("expected created+approved deliveries, got %d", len(rec.deliveries))
	}

	created := rec.deliveries[0]
	if created.Type != "reservation.created" {
		t.Fatalf("expected reservation.created first, got %s", created.Type)
	}
	if created.Reservation == nil {
		t.Fatalf("delivery must carry the reservation snapshot")
	}
	if created.Reservation.ID != res.ID || created.Reservation.Reference != res.Reference {
		t.Fatalf("snapshot does not describe the reservation: %+v", created.Reservation)
	}
	if created.Reservation.Status != domain.ReservationPending {
		t.Fatalf("created snapshot should be pending, got %s", created.Reservation.Status)
	}
	approved := rec.deliveries[1]
	if approved.Type != "reservation.approved" || approved.Reservation == nil {
		t.Fatalf("unexpected second delivery: %+v", approved)
	}
	if approved.Reservation.Status != domain.ReservationApproved {
		t.Fatalf("approved snapshot should be approved, got %s", approved.Reservation.Status)
	}

	h := rec.headers[0]
	if h.Get("X-Motorpool-Event") != "reservation.created" {
		t.Fatalf("missing event header, got %q", h.Get("X-Motorpool-Event"))
	}
	if h.Get("X-Motorpool-Fleet") != "pool-1" {
		t.Fatalf("missing fleet header, got %q", h.Get("X-Motorpool-Fleet"))
	}
	if h.Get("X-Motorpool-Secret") != "hook-secret" {
		t.Fatalf("missing secret header, got %q", h.Get("X-Motorpool-Secret"))
	}

	// A cancelled event is outside the hook's filter: the cursor advances
	// without a POST.
	if _, err := e.CancelReservation(ctx, employee, res.ID, "plans changed"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	d.deliverPending(ctx)
	if len(rec.deliveries) != 2 {
		t.Fatalf("filtered event must not be delivered, got %d deliveries", len(rec.deliveries))
	}
	d.deliverPending(ctx)
	if len(rec.deliveries) != 2 {
		t.Fatalf("cursor must advance past filtered events, got %d deliveries", len(rec.deliveries))
	}
}

func TestWebhookRetriesFailedDelivery(t *testing.T) {
	var mu sync.Mutex
	fail := true
	attempts := 0
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		mu.Lock()
		attempts++
		failing := fail
		mu.Unlock()
		if failing {
			http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer receiver.Close()

	cfg := config.Default("pool-1")
	cfg.Webhooks = []config.WebhookConfig{{URL: receiver.URL}}
	e := newWebhookEngine(t, cfg)
	ctx := context.Background()
	manager := domain.Actor{ID: "mgr-1", Role: domain.RoleManager}

	d := newWebhookDispatcher(e)
	d.deliverPending(ctx)

	if _, err := e.AddVehicle(ctx, manager, engine.AddVehicleOptions{
		Name: "Van 1", Plate: "KAA 001A", Category: "van",
	}); err != nil {
		t.Fatalf("add vehicle: %v", err)
	}

	d.deliverPending(ctx)
	cursorAfterFailure := d.hooks[0].cursor
	d.deliverPending(ctx)
	mu.Lock()
	if attempts < 2 {
		mu.Unlock()
		t.Fatalf("expected the failed event to be retried, got %d attempts", attempts)
	}
	if d.hooks[0].cursor != cursorAfterFailure {
		mu.Unlock()
		t.Fatalf("cursor must not advance past an undelivered event")
	}
	fail = false
	mu.Unlock()

	d.deliverPending(ctx)
	if d.hooks[0].cursor == cursorAfterFailure {
		t.Fatalf("cursor must advance after a successful delivery")
	}
}
