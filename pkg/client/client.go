package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Client talks to one cyclone-master's admin introspection surface.
type Client struct {
	baseURL string
	opts    *options
}

// New creates a Client targeting baseURL (e.g. "http://localhost:6555").
func New(baseURL string, opts ...Option) *Client {
	o := defaultOptions()
	for _, apply := range opts {
		apply(o)
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), opts: o}
}

// ControllerInfo mirrors internal/master.ControllerInfo.
type ControllerInfo struct {
	ID       string `json:"id"`
	LastSeen int64  `json:"last_seen"`
}

// TaskInfo mirrors internal/master.TaskInfo.
type TaskInfo struct {
	Tid          string `json:"tid"`
	State        string `json:"state"`
	ControllerID string `json:"controller_id"`
	Timestamp    int64  `json:"timestamp"`
}

// Status mirrors the admin surface's /admin/status response.
type Status struct {
	Distribution    bool `json:"distribution"`
	ErrorCount      int  `json:"error_count"`
	TaskQueueLen    int  `json:"task_queue_len"`
	ResultQueueLen  int  `json:"result_queue_len"`
	ControllerCount int  `json:"controller_count"`
	TaskCount       int  `json:"task_count"`
}

// Status fetches /admin/status.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var s Status
	if err := c.getJSON(ctx, "/admin/status", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Controllers fetches /admin/controllers.
func (c *Client) Controllers(ctx context.Context) ([]ControllerInfo, error) {
	var list []ControllerInfo
	if err := c.getJSON(ctx, "/admin/controllers", &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Tasks fetches /admin/tasks.
func (c *Client) Tasks(ctx context.Context) ([]TaskInfo, error) {
	var list []TaskInfo
	if err := c.getJSON(ctx, "/admin/tasks", &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Health fetches /admin/health and returns nil if the master reports ok.
func (c *Client) Health(ctx context.Context) error {
	var body map[string]string
	if err := c.getJSON(ctx, "/admin/health", &body); err != nil {
		return err
	}
	if body["status"] != "ok" {
		return fmt.Errorf("client: admin health reported %q", body["status"])
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	c.opts.applyHeaders(req)

	resp, err := c.opts.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("client: %s: unexpected status %d: %s", path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: %s: decode response: %w", path, err)
	}
	return nil
}
