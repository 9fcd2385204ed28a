package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const DefaultBaseURL = "http://127.0.0.1:7787/api"

// Client talks to a running sasswatch daemon.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
}

// APIError is a non-200 answer from the daemon.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	return fmt.Sprintf("API error: %s", e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == status
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{BaseURL: DefaultBaseURL, Timeout: 30 * time.Second}
}

func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/watches", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("Daemon unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Launch starts a watch for dir, relative to the daemon's project root.
func (c *Client) Launch(ctx context.Context, dir string) (string, error) {
	var out OKResponse
	if err := c.do(ctx, http.MethodPost, "/watches", DirRequest{Dir: dir}, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

func (c *Client) Clear(ctx context.Context, dir string) error {
	return c.do(ctx, http.MethodDelete, "/watches?dir="+url.QueryEscape(dir), nil, nil)
}

func (c *Client) ClearAll(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/watches/all", nil, nil)
}

func (c *Client) Relaunch(ctx context.Context) ([]Outcome, error) {
	var out []Outcome
	err := c.do(ctx, http.MethodPost, "/relaunch", nil, &out)
	return out, err
}

func (c *Client) Watches(ctx context.Context) ([]Watch, error) {
	var out []Watch
	err := c.do(ctx, http.MethodGet, "/watches", nil, &out)
	return out, err
}

func (c *Client) Dirs(ctx context.Context) ([]string, error) {
	var out []string
	err := c.do(ctx, http.MethodGet, "/dirs", nil, &out)
	return out, err
}

// AddDir adds dir to the pending list and optionally launches it.
func (c *Client) AddDir(ctx context.Context, dir string, launch bool) (AddResult, error) {
	var out AddResult
	err := c.do(ctx, http.MethodPost, "/dirs", DirRequest{Dir: dir, Launch: launch}, &out)
	return out, err
}

func (c *Client) RemoveDir(ctx context.Context, dir string) (string, error) {
	var out OKResponse
	err := c.do(ctx, http.MethodDelete, "/dirs?dir="+url.QueryEscape(dir), nil, &out)
	return out.Message, err
}

// do performs HTTP request with common error handling
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("HTTP request failed", "error", err, "path", path)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var er ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&er)
		c.logger.Debug("API request failed", "error", er.Error, "status", resp.StatusCode)
		return &APIError{Status: resp.StatusCode, Message: er.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
