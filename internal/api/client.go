// Package api is a client for a running overlay's HTTP endpoints.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/glowe/dartviz/internal/monitor"
	"github.com/glowe/dartviz/pkg/core"
)

// Client talks to the overlay HTTP server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new API client.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Healthcheck checks if the overlay is reachable.
func (c *Client) Healthcheck() error {
	resp, err := c.httpClient.Get(c.baseURL + "/status")
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
	}
	return nil
}

// Status fetches the overlay status report.
func (c *Client) Status() (monitor.Status, error) {
	var st monitor.Status
	resp, err := c.httpClient.Get(c.baseURL + "/status")
	if err != nil {
		return st, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, http.StatusOK); err != nil {
		return st, err
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return st, fmt.Errorf("decode status: %w", err)
	}
	return st, nil
}

// Snapshot copies the current overlay PNG to w.
func (c *Client) Snapshot(w io.Writer) error {
	resp, err := c.httpClient.Get(c.baseURL + "/overlay.png")
	if err != nil {
		return fmt.Errorf("snapshot request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, http.StatusOK); err != nil {
		return err
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("failed to copy snapshot: %w", err)
	}
	return nil
}

// Clear resets the overlay.
func (c *Client) Clear() error {
	return c.post("/clear", nil)
}

// Undo unblocks a repeat of the last throw ("I missed").
func (c *Client) Undo() error {
	return c.post("/undo", nil)
}

// Layout moves or resizes the reference box.
func (c *Client) Layout(l core.Layout) error {
	body, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal layout: %w", err)
	}
	return c.post("/layout", body)
}

func (c *Client) post(path string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", path, err)
	}
	defer resp.Body.Close()
	return checkStatus(resp, http.StatusAccepted)
}

// checkStatus turns an unexpected status into an error carrying the server's
// error message when there is one.
func checkStatus(resp *http.Response, want int) error {
	if resp.StatusCode == want {
		return nil
	}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&payload); err == nil && payload.Error != "" {
		return fmt.Errorf("%s %s returned status %d: %s", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, payload.Error)
	}
	return fmt.Errorf("%s %s returned status %d", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode)
}
