package clienthttp

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

	"github.com/mediavault/mediavault/pkg/api"
)

// Client talks to the vault server's HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the given server URL. A bare host:port gets
// an http scheme prepended.
func New(serverURL string) *Client {
	base := strings.TrimSuffix(serverURL, "/")
	if !strings.HasPrefix(base, "http") {
		base = "http://" + base
	}
	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// BaseURL reports the normalized server URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}

// Enqueue submits one interactive transfer request.
func (c *Client) Enqueue(ctx context.Context, msgURL string) (api.EnqueueResponse, error) {
	var out api.EnqueueResponse
	err := c.do(ctx, http.MethodPost, "/transfers", api.EnqueueRequest{URL: msgURL}, &out)
	return out, err
}

// EnqueueBatch submits a season batch as bulk work.
func (c *Client) EnqueueBatch(ctx context.Context, req api.BatchRequest) (api.BatchResponse, error) {
	var out api.BatchResponse
	err := c.do(ctx, http.MethodPost, "/batches", req, &out)
	return out, err
}

// Cancel withdraws a queued or running transfer.
func (c *Client) Cancel(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/transfers/"+url.PathEscape(id), nil, nil)
}

// Status fetches the full scheduler status.
func (c *Client) Status(ctx context.Context) (api.StatusResponse, error) {
	var out api.StatusResponse
	err := c.do(ctx, http.MethodGet, "/status", nil, &out)
	return out, err
}

// EventsURL derives the websocket feed URL from the server URL.
func (c *Client) EventsURL() string {
	wsBase := strings.Replace(c.baseURL, "http", "ws", 1)
	return wsBase + "/events"
}
