// Package backend is the JSON client for the BabyNest API server: the agent
// chat endpoint plus the record-keeping routes actions are dispatched to.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BabyNest/assistant/internal/models"
)

// DefaultTimeout bounds a single backend request.
const DefaultTimeout = 15 * time.Second

// Client talks JSON to the backend over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets the backend base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient swaps the underlying HTTP client, mainly for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// NewClient creates a backend client.
func NewClient(options ...Option) *Client {
	c := &Client{
		baseURL: "http://localhost:5001",
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Chat sends a free-text query to the backend agent and returns its reply.
func (c *Client) Chat(ctx context.Context, query, userID string) (string, error) {
	body, err := c.do(ctx, http.MethodPost, "/agent", map[string]any{
		"query":   query,
		"user_id": userID,
	})
	if err != nil {
		return "", err
	}
	response, ok := body["response"].(string)
	if !ok || response == "" {
		return "", fmt.Errorf("%w: agent reply missing response field", models.ErrRemoteFailure)
	}
	return response, nil
}

// Context fetches the user profile snapshot the agent keeps server-side.
func (c *Client) Context(ctx context.Context, userID string) (map[string]any, error) {
	path := "/agent/context?user_id=" + url.QueryEscape(userID)
	return c.do(ctx, http.MethodGet, path, nil)
}

// RefreshContext asks the backend to rebuild its cached user context.
func (c *Client) RefreshContext(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/agent/refresh", nil)
	return err
}

// Health reports whether the backend is reachable and its agent initialized.
func (c *Client) Health(ctx context.Context) (bool, error) {
	body, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return false, err
	}
	initialized, _ := body["agent_initialized"].(bool)
	return initialized, nil
}

// Post sends a JSON POST to the given path.
func (c *Client) Post(ctx context.Context, path string, payload map[string]any) (map[string]any, error) {
	return c.do(ctx, http.MethodPost, path, payload)
}

// Put sends a JSON PUT to the given path.
func (c *Client) Put(ctx context.Context, path string, payload map[string]any) (map[string]any, error) {
	return c.do(ctx, http.MethodPut, path, payload)
}

// Delete sends a DELETE to the given path.
func (c *Client) Delete(ctx context.Context, path string) (map[string]any, error) {
	return c.do(ctx, http.MethodDelete, path, nil)
}

// do performs the request and decodes the JSON body. Non-2xx statuses wrap
// models.ErrRemoteFailure so callers can branch on degraded-backend handling.
func (c *Client) do(ctx context.Context, method, path string, payload map[string]any) (map[string]any, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("backend: encode %s %s: %w", method, path, err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("backend: build %s %s: %w", method, path, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", models.ErrRemoteFailure, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s %s: %v", models.ErrRemoteFailure, method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Warn("Backend request failed", "method", method, "path", path, "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: %s %s returned %d", models.ErrRemoteFailure, method, path, resp.StatusCode)
	}

	body := make(map[string]any)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, fmt.Errorf("%w: decode %s %s: %v", models.ErrRemoteFailure, method, path, err)
		}
	}
	slog.Debug("Backend request completed", "method", method, "path", path, "status", resp.StatusCode)
	return body, nil
}
