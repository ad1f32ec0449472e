/*
Copyright 2018-2024 Craig Johnston <cjimti@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package conapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Client reads a console's API over HTTP
type Client struct {
	client  *http.Client
	baseURL string
}

// NewClient creates a client for the API at addr (host:port or a URL)
func NewClient(addr string) *Client {
	baseURL := strings.TrimRight(addr, "/")
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	return &Client{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: baseURL,
	}
}

// BaseURL returns the API root
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) do(method, path string, result interface{}) error {
	req, err := http.NewRequest(method, c.baseURL+path, http.NoBody)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "HTTP request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return errors.Errorf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}

// Health returns the console's health summary
func (c *Client) Health() (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(http.MethodGet, "/api/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logs returns up to count of the most recent buffered events
func (c *Client) Logs(count int) ([]LogEntry, error) {
	var resp struct {
		Data LogsResponse `json:"data"`
	}
	if err := c.do(http.MethodGet, "/api/v1/logs?count="+strconv.Itoa(count), &resp); err != nil {
		return nil, err
	}
	return resp.Data.Logs, nil
}

// ClearLogs empties the console's buffer
func (c *Client) ClearLogs() error {
	return c.do(http.MethodDelete, "/api/v1/logs", nil)
}

// Sessions returns the connected sessions
func (c *Client) Sessions() ([]SessionInfo, error) {
	var resp struct {
		Data SessionsResponse `json:"data"`
	}
	if err := c.do(http.MethodGet, "/api/v1/sessions", &resp); err != nil {
		return nil, err
	}
	return resp.Data.Sessions, nil
}

// Reintercept asks the console to patch its namespace again
func (c *Client) Reintercept() (int, error) {
	var resp struct {
		Data ReinterceptResponse `json:"data"`
	}
	if err := c.do(http.MethodPost, "/api/v1/reintercept", &resp); err != nil {
		return 0, err
	}
	return resp.Data.Patched, nil
}
