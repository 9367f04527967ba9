package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"motorpool/internal/config"
	"motorpool/internal/db"
	"motorpool/internal/domain"
	"motorpool/internal/engine"
	"motorpool/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

var testNow = time.Date(2025, 3, 3, 8, 55, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*testServer, string) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("pool-1")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	e.Now = func() time.Time { return testNow }
	ctx := context.Background()
	if _, err := e.InitFleet(ctx, cfg.Fleet.ID, "Test Pool", "", "mgr-1"); err != nil {
		t.Fatalf("init fleet: %v", err)
	}
	if err := e.Repo.UpsertFleetConfig(ctx, cfg.Fleet.ID, cfg); err != nil {
		t.Fatalf("seed fleet config: %v", err)
	}
	for _, a := range []domain.Actor{
		{ID: "mgr-1", Name: "Maria", Role: domain.RoleManager},
		{ID: "emp-1", Name: "Evan", Role: domain.RoleEmployee},
		{ID: "drv-1", Name: "Dana", Role: domain.RoleDriver},
	} {
		if err := e.Repo.UpsertActor(ctx, a); err != nil {
			t.Fatalf("seed actor %s: %v", a.ID, err)
		}
	}
	manager := domain.Actor{ID: "mgr-1", Role: domain.RoleManager}
	vehicle, err := e.AddVehicle(ctx, manager, engine.AddVehicleOptions{
		ID: "veh-1", Name: "Van 1", Plate: "KAA 001A", Category: "van", OdometerKm: 1200,
	})
	if err != nil {
		t.Fatalf("add vehicle: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: "test-secret", AllowActorHeader: true, DevLogin: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(testSrv.Close)
	return testSrv, vehicle.ID
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func asEmployee() map[string]string { return map[string]string{"X-Actor-Id": "emp-1"} }
func asManager() map[string]string  { return map[string]string{"X-Actor-Id": "mgr-1"} }

func errCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return envelope.Error.Code
}

func TestReservationLifecycleOverHTTP(t *testing.T) {
	srv, vehicleID := newTestServer(t)
	client := srv.Client()

	createRes, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/reservations", map[string]any{
		"vehicle_id": vehicleID,
		"start":      "2025-03-03T09:00:00Z",
		"end":        "2025-03-03T12:00:00Z",
		"purpose":    "Client site visit",
	}, asEmployee())
	if createRes.StatusCode != http.StatusCreated {
		t.Fatalf("create reservation status %d: %s", createRes.StatusCode, string(data))
	}
	var created domain.Reservation
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal reservation: %v", err)
	}
	if created.Status != domain.ReservationPending {
		t.Fatalf("expected pending, got %s", created.Status)
	}
	if created.Reference == "" {
		t.Fatalf("expected a reference on the created reservation")
	}

	conflictRes, conflictBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/reservations", map[string]any{
		"vehicle_id": vehicleID,
		"start":      "2025-03-03T10:00:00Z",
		"end":        "2025-03-03T11:00:00Z",
		"purpose":    "Overlapping run",
	}, asEmployee())
	if conflictRes.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for overlap, got %d: %s", conflictRes.StatusCode, string(conflictBody))
	}
	if code := errCode(t, conflictBody); code != "conflict" {
		t.Fatalf("expected conflict code, got %q", code)
	}

	approveRes, approveBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/reservations/"+created.ID+"/approve", map[string]any{}, asManager())
	if approveRes.StatusCode != http.StatusOK {
		t.Fatalf("approve status %d: %s", approveRes.StatusCode, string(approveBody))
	}
	var approved domain.Reservation
	if err := json.Unmarshal(approveBody, &approved); err != nil {
		t.Fatalf("unmarshal approved: %v", err)
	}
	if approved.Status != domain.ReservationApproved {
		t.Fatalf("expected approved, got %s", approved.Status)
	}
	if approved.CheckInToken == "" {
		t.Fatalf("expected a check-in token after approval")
	}

	checkInRes, checkInBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/reservations/"+created.ID+"/check-in", map[string]any{
		"odometer_km": 1200,
	}, asEmployee())
	if checkInRes.StatusCode != http.StatusOK {
		t.Fatalf("check-in status %d: %s", checkInRes.StatusCode, string(checkInBody))
	}

	checkOutRes, checkOutBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/reservations/"+created.ID+"/check-out", map[string]any{
		"odometer_km": 1350,
		"rating":      5,
	}, asEmployee())
	if checkOutRes.StatusCode != http.StatusOK {
		t.Fatalf("check-out status %d: %s", checkOutRes.StatusCode, string(checkOutBody))
	}
	var done domain.Reservation
	if err := json.Unmarshal(checkOutBody, &done); err != nil {
		t.Fatalf("unmarshal checked out: %v", err)
	}
	if done.Status != domain.ReservationCheckedOut {
		t.Fatalf("expected checked_out, got %s", done.Status)
	}

	vehRes, vehBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/vehicles/"+vehicleID, nil, asEmployee())
	if vehRes.StatusCode != http.StatusOK {
		t.Fatalf("get vehicle status %d: %s", vehRes.StatusCode, string(vehBody))
	}
	var veh domain.Vehicle
	_ = json.Unmarshal(vehBody, &veh)
	if veh.Status != domain.VehicleAvailable {
		t.Fatalf("expected vehicle available after check-out, got %s", veh.Status)
	}
	if veh.OdometerKm != 1350 {
		t.Fatalf("expected odometer rolled forward to 1350, got %.1f", veh.OdometerKm)
	}
}

func TestErrorEnvelopes(t *testing.T) {
	srv, vehicleID := newTestServer(t)
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/v0/reservations", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d: %s", res.StatusCode, string(body))
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/reservations/missing", nil, asEmployee())
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(body))
	}
	if code := errCode(t, body); code != "not_found" {
		t.Fatalf("expected not_found code, got %q", code)
	}

	createRes, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/reservations", map[string]any{
		"vehicle_id": vehicleID,
		"start":      "2025-03-03T09:00:00Z",
		"end":        "2025-03-03T12:00:00Z",
		"purpose":    "Errand",
	}, asEmployee())
	if createRes.StatusCode != http.StatusCreated {
		t.Fatalf("create reservation status %d: %s", createRes.StatusCode, string(data))
	}
	var created domain.Reservation
	_ = json.Unmarshal(data, &created)

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/reservations/"+created.ID+"/approve", map[string]any{}, asEmployee())
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for employee approve, got %d: %s", res.StatusCode, string(body))
	}
	if code := errCode(t, body); code != "forbidden" {
		t.Fatalf("expected forbidden code, got %q", code)
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/reservations/"+created.ID+"/check-out", map[string]any{
		"odometer_km": 1300,
	}, asEmployee())
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for check-out of pending, got %d: %s", res.StatusCode, string(body))
	}
	if code := errCode(t, body); code != "invalid_transition" {
		t.Fatalf("expected invalid_transition code, got %q", code)
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/reservations", map[string]any{
		"vehicle_id": vehicleID,
		"start":      "2025-03-03T12:00:00Z",
		"end":        "2025-03-03T09:00:00Z",
		"purpose":    "Backwards window",
	}, asEmployee())
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for backwards window, got %d: %s", res.StatusCode, string(body))
	}
	if code := errCode(t, body); code != "bad_request" {
		t.Fatalf("expected bad_request code, got %q", code)
	}
}

func TestAvailabilityAndSchedule(t *testing.T) {
	srv, vehicleID := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/reservations", map[string]any{
		"vehicle_id": vehicleID,
		"start":      "2025-03-03T09:00:00Z",
		"end":        "2025-03-03T12:00:00Z",
		"purpose":    "Morning run",
	}, asEmployee())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create reservation: %d %s", res.StatusCode, string(data))
	}

	availRes, availBody := doJSON(t, client, http.MethodGet,
		srv.URL+"/v0/availability?start=2025-03-03T10:00:00Z&end=2025-03-03T11:00:00Z", nil, asEmployee())
	if availRes.StatusCode != http.StatusOK {
		t.Fatalf("availability status %d: %s", availRes.StatusCode, string(availBody))
	}
	var free []domain.Vehicle
	_ = json.Unmarshal(availBody, &free)
	if len(free) != 0 {
		t.Fatalf("expected no free vehicles during pending window, got %d", len(free))
	}

	availRes, availBody = doJSON(t, client, http.MethodGet,
		srv.URL+"/v0/availability?start=2025-03-03T12:00:00Z&end=2025-03-03T14:00:00Z", nil, asEmployee())
	if availRes.StatusCode != http.StatusOK {
		t.Fatalf("availability status %d: %s", availRes.StatusCode, string(availBody))
	}
	free = nil
	_ = json.Unmarshal(availBody, &free)
	if len(free) != 1 {
		t.Fatalf("expected the van free after the window, got %d", len(free))
	}

	badRes, badBody := doJSON(t, client, http.MethodGet,
		srv.URL+"/v0/availability?start=not-a-time&end=2025-03-03T14:00:00Z", nil, asEmployee())
	if badRes.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed start, got %d: %s", badRes.StatusCode, string(badBody))
	}

	schedRes, schedBody := doJSON(t, client, http.MethodGet,
		srv.URL+"/v0/vehicles/"+vehicleID+"/schedule?from=2025-03-03T00:00:00Z&to=2025-03-04T00:00:00Z", nil, asEmployee())
	if schedRes.StatusCode != http.StatusOK {
		t.Fatalf("schedule status %d: %s", schedRes.StatusCode, string(schedBody))
	}
	var sched []domain.Reservation
	_ = json.Unmarshal(schedBody, &sched)
	if len(sched) != 1 {
		t.Fatalf("expected one scheduled reservation, got %d", len(sched))
	}
}

func TestDevLoginToken(t *testing.T) {
	srv, _ := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{
		"actor_id": "mgr-1",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	if login.Token == "" {
		t.Fatalf("expected a token")
	}

	statusRes, statusBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/status", nil,
		map[string]string{"Authorization": "Bearer " + login.Token})
	if statusRes.StatusCode != http.StatusOK {
		t.Fatalf("status with token: %d %s", statusRes.StatusCode, string(statusBody))
	}
	var status FleetStatusResponse
	if err := json.Unmarshal(statusBody, &status); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if status.FleetID != "pool-1" {
		t.Fatalf("expected fleet pool-1, got %s", status.FleetID)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, _ := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/api-keys", map[string]any{
		"actor_id": "emp-1",
		"name":     "ci",
	}, asManager())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create api key status %d: %s", res.StatusCode, string(data))
	}
	var created CreateAPIKeyResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal api key: %v", err)
	}
	if created.Key == "" {
		t.Fatalf("expected plaintext key in create response")
	}

	listRes, listBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/reservations", nil,
		map[string]string{"X-Api-Key": created.Key})
	if listRes.StatusCode != http.StatusOK {
		t.Fatalf("list with api key: %d %s", listRes.StatusCode, string(listBody))
	}

	forbidRes, forbidBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/api-keys", map[string]any{
		"actor_id": "emp-1",
	}, asEmployee())
	if forbidRes.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for employee key creation, got %d: %s", forbidRes.StatusCode, string(forbidBody))
	}
}
