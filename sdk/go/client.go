package motorpoolsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Motorpool HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Vehicle represents the API vehicle model (partial).
type Vehicle struct {
	ID         string  `json:"id"`
	FleetID    string  `json:"fleet_id"`
	Name       string  `json:"name"`
	Plate      string  `json:"plate"`
	Category   string  `json:"category,omitempty"`
	Status     string  `json:"status"`
	OdometerKm float64 `json:"odometer_km"`
}

// Window is a half-open [start, end) interval. Times are RFC 3339.
type Window struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Reservation represents the API reservation model (partial).
type Reservation struct {
	ID          string `json:"id"`
	FleetID     string `json:"fleet_id"`
	VehicleID   string `json:"vehicle_id"`
	RequesterID string `json:"requester_id"`
	Reference   string `json:"reference"`
	Status      string `json:"status"`
	Window      Window `json:"window"`
	Purpose     string `json:"purpose"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	FleetID    string `json:"fleet_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateReservation requests a vehicle for a window. Times are RFC 3339.
func (c *Client) CreateReservation(ctx context.Context, vehicleID, start, end, purpose string) (Reservation, error) {
	body := map[string]any{
		"vehicle_id": vehicleID,
		"start":      start,
		"end":        end,
		"purpose":    purpose,
	}
	var resp Reservation
	err := c.do(ctx, http.MethodPost, "v0/reservations", body, &resp)
	return resp, err
}

// GetReservation fetches a reservation by id.
func (c *Client) GetReservation(ctx context.Context, id string) (Reservation, error) {
	var resp Reservation
	err := c.do(ctx, http.MethodGet, "v0/reservations/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Approve approves a pending reservation.
func (c *Client) Approve(ctx context.Context, id, comment string) (Reservation, error) {
	var resp Reservation
	err := c.do(ctx, http.MethodPost, "v0/reservations/"+url.PathEscape(id)+"/approve", map[string]any{"comment": comment}, &resp)
	return resp, err
}

// Cancel cancels a pending or approved reservation.
func (c *Client) Cancel(ctx context.Context, id, reason string) (Reservation, error) {
	var resp Reservation
	err := c.do(ctx, http.MethodPost, "v0/reservations/"+url.PathEscape(id)+"/cancel", map[string]any{"reason": reason}, &resp)
	return resp, err
}

// CheckIn records vehicle pickup with an odometer reading.
func (c *Client) CheckIn(ctx context.Context, id string, odometerKm float64) (Reservation, error) {
	var resp Reservation
	err := c.do(ctx, http.MethodPost, "v0/reservations/"+url.PathEscape(id)+"/check-in", map[string]any{"odometer_km": odometerKm}, &resp)
	return resp, err
}

// CheckOut records vehicle return with an odometer reading.
func (c *Client) CheckOut(ctx context.Context, id string, odometerKm float64) (Reservation, error) {
	var resp Reservation
	err := c.do(ctx, http.MethodPost, "v0/reservations/"+url.PathEscape(id)+"/check-out", map[string]any{"odometer_km": odometerKm}, &resp)
	return resp, err
}

// Availability lists vehicles free for a window. Times are RFC 3339.
func (c *Client) Availability(ctx context.Context, start, end, category string) ([]Vehicle, error) {
	endpoint := fmt.Sprintf("v0/availability?start=%s&end=%s", url.QueryEscape(start), url.QueryEscape(end))
	if category != "" {
		endpoint += "&category=" + url.QueryEscape(category)
	}
	var resp []Vehicle
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
