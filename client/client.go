// Package client implements the wire side of the config API: list, create,
// conditional update, conditional delete, job status and job trigger.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/robertmeta/trss-cli/model"
)

// API paths.
const (
	ConfigPath   = "/api/v1/config"
	StatusPath   = "/api/v1/status"
	StartJobPath = "/start_job"
)

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, strings.TrimSpace(e.Body))
}

// Client talks to a config API server.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client for the server at baseURL (e.g. "http://127.0.0.1:9093").
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// List fetches the whole collection in server order.
func (c *Client) List(ctx context.Context) ([]model.ConfigEntry, error) {
	var entries []model.ConfigEntry
	if err := c.do(ctx, http.MethodGet, ConfigPath, nil, &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []model.ConfigEntry{}
	}
	return entries, nil
}

// Create submits a new entry. The server appends it to the collection.
func (c *Client) Create(ctx context.Context, entry model.ConfigEntry) error {
	return c.do(ctx, http.MethodPut, ConfigPath, entry, nil)
}

// Update submits a conditional update.
func (c *Client) Update(ctx context.Context, req model.UpdateRequest) error {
	if req.Config == nil || req.Original == nil {
		return fmt.Errorf("update %d: config and original are both required", req.Index)
	}
	return c.do(ctx, http.MethodPatch, ConfigPath, req, nil)
}

// Delete submits a conditional delete.
func (c *Client) Delete(ctx context.Context, req model.DeleteRequest) error {
	if req.Config == nil {
		return fmt.Errorf("delete %d: config is required", req.Index)
	}
	return c.do(ctx, http.MethodDelete, ConfigPath, req, nil)
}

// Status fetches the job status.
func (c *Client) Status(ctx context.Context) (model.JobStatus, error) {
	var st model.JobStatus
	err := c.do(ctx, http.MethodGet, StatusPath, nil, &st)
	return st, err
}

// TriggerJob asks the server to start a fetch run.
func (c *Client) TriggerJob(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, StartJobPath, nil, nil)
}

// do sends body (if any) as JSON and decodes a 2xx response into out (if any).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s %s body: %w", method, path, err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("failed to build %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(text)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}
