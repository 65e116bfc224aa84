package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okian/mathboard/internal/domain/types"
)

// HTTPClient wraps http.Client with JSON helpers.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// NewHTTPClient creates a client for the service at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// getJSON performs a GET and decodes a 200 response into v.
func (c *HTTPClient) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: HTTP %d: %s", path, resp.StatusCode, bytes.TrimSpace(body))
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// postJSON posts body and returns the status code and the decoded ack.
func (c *HTTPClient) postJSON(ctx context.Context, path string, body any) (int, ack, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, ack{}, fmt.Errorf("marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return 0, ack{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, ack{}, fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	var a ack
	_ = json.NewDecoder(resp.Body).Decode(&a)
	return resp.StatusCode, a, nil
}

type ack struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// Health checks /healthz.
func (c *HTTPClient) Health(ctx context.Context) error {
	return c.getJSON(ctx, "/healthz", nil)
}

// Page fetches one window of the global leaderboard.
func (c *HTTPClient) Page(ctx context.Context, skip, limit int) ([]types.Entry, error) {
	var out []types.Entry
	err := c.getJSON(ctx, fmt.Sprintf("/leaderboard/global?skip=%d&limit=%d", skip, limit), &out)
	return out, err
}

// Top fetches the first n ranks.
func (c *HTTPClient) Top(ctx context.Context, n int) ([]types.Entry, error) {
	var out []types.Entry
	err := c.getJSON(ctx, fmt.Sprintf("/leaderboard/top?n=%d", n), &out)
	return out, err
}

// Rank fetches one player's rank.
func (c *HTTPClient) Rank(ctx context.Context, playerID string) (types.PlayerRank, error) {
	var out types.PlayerRank
	err := c.getJSON(ctx, "/leaderboard/rank/"+playerID, &out)
	return out, err
}

// RegisterPlayer posts one player to /players.
func (c *HTTPClient) RegisterPlayer(ctx context.Context, playerID, displayName string) error {
	body := map[string]string{"player_id": playerID, "display_name": displayName}
	status, a, err := c.postJSON(ctx, "/players", body)
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return fmt.Errorf("register %s: HTTP %d: %s %s", playerID, status, a.Code, a.Message)
	}
	return nil
}
