package clientsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/trip-progress/internal/models"
)

// API is the reconciliation service surface the adapter depends on. The
// production implementation speaks HTTP; tests substitute a fake.
type API interface {
	FetchSnapshot(ctx context.Context, tripID string) (models.Snapshot, error)
	SendManualAction(ctx context.Context, tripID string, action models.ManualAction, target *float64, observations string) (models.Snapshot, error)
	SendLocation(ctx context.Context, tripID string, lat, lng float64, speedKmh *float64) (models.Snapshot, error)
	Ping(ctx context.Context) error
}

// HTTPClient talks to the reconciliation service's REST surface with a short
// per-request timeout; a timed-out poll is abandoned, never retried inline.
type HTTPClient struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClient{BaseURL: baseURL, Client: &http.Client{Timeout: timeout}}
}

type wireEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	} else {
		buf.WriteString("{}")
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%v: %w", err, models.ErrConnectivity)
	}
	defer resp.Body.Close()

	var env wireEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", models.ErrConnectivity)
	}
	if !env.Success {
		return apiError(resp.StatusCode, env.Message)
	}
	if out != nil {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

func apiError(status int, msg string) error {
	switch status {
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", msg, models.ErrNotFound)
	case http.StatusConflict:
		return fmt.Errorf("%s: %w", msg, models.ErrInvalidState)
	default:
		return fmt.Errorf("api error %d: %s", status, msg)
	}
}

func (c *HTTPClient) FetchSnapshot(ctx context.Context, tripID string) (models.Snapshot, error) {
	var snap models.Snapshot
	err := c.do(ctx, http.MethodGet, "/trips/"+tripID, nil, &snap)
	return snap, err
}

func (c *HTTPClient) SendManualAction(ctx context.Context, tripID string, action models.ManualAction, target *float64, observations string) (models.Snapshot, error) {
	var snap models.Snapshot
	switch action {
	case models.ActionProgress:
		pct := 0.0
		if target != nil {
			pct = *target
		}
		err := c.do(ctx, http.MethodPost, "/trips/"+tripID+"/progress",
			map[string]any{"percentage": pct, "observations": observations}, &snap)
		return snap, err
	case models.ActionComplete:
		err := c.do(ctx, http.MethodPost, "/trips/"+tripID+"/complete",
			map[string]any{"observations": observations}, &snap)
		return snap, err
	case models.ActionCancel:
		err := c.do(ctx, http.MethodPost, "/trips/"+tripID+"/cancel",
			map[string]any{"observations": observations}, &snap)
		return snap, err
	default:
		return snap, fmt.Errorf("unsupported manual action %q", action)
	}
}

func (c *HTTPClient) SendLocation(ctx context.Context, tripID string, lat, lng float64, speedKmh *float64) (models.Snapshot, error) {
	var out struct {
		Snapshot models.Snapshot `json:"snapshot"`
	}
	err := c.do(ctx, http.MethodPatch, "/trips/"+tripID+"/location",
		map[string]any{"lat": lat, "lng": lng, "velocidad": speedKmh}, &out)
	return out.Snapshot, err
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/trips/real-time-metrics", nil, nil)
}
