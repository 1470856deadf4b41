// Package api is the HTTP and websocket client for the swarm backend.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ShayCichocki/nexus/internal/version"
	"github.com/ShayCichocki/nexus/pkg/models"
)

// DefaultTimeout bounds every request except Run, which the caller bounds.
const DefaultTimeout = 10 * time.Second

// maxErrorBody limits how much of a failed response is kept in a StatusError.
const maxErrorBody = 512

// Endpoints are the backend paths, relative to the base URL.
type Endpoints struct {
	Run    string `mapstructure:"run"`
	Status string `mapstructure:"status"`
	Logs   string `mapstructure:"logs"`
	Stream string `mapstructure:"stream"`
	Health string `mapstructure:"health"`
	Reset  string `mapstructure:"reset"`
}

// DefaultEndpoints returns the standard backend paths.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Run:    "/run",
		Status: "/status",
		Logs:   "/logs",
		Stream: "/logs-stream",
		Health: "/health",
		Reset:  "/reset",
	}
}

// withDefaults fills empty paths from DefaultEndpoints.
func (e Endpoints) withDefaults() Endpoints {
	d := DefaultEndpoints()
	if e.Run == "" {
		e.Run = d.Run
	}
	if e.Status == "" {
		e.Status = d.Status
	}
	if e.Logs == "" {
		e.Logs = d.Logs
	}
	if e.Stream == "" {
		e.Stream = d.Stream
	}
	if e.Health == "" {
		e.Health = d.Health
	}
	if e.Reset == "" {
		e.Reset = d.Reset
	}
	return e
}

// ClientConfig contains configuration for creating a new Client.
type ClientConfig struct {
	// BaseURL is the backend root, e.g. http://localhost:8000.
	BaseURL string
	// StreamURL overrides the websocket URL. Derived from BaseURL when empty.
	StreamURL string
	// Endpoints overrides individual paths; empty fields use defaults.
	Endpoints Endpoints
	// Timeout bounds non-run requests. Zero means DefaultTimeout.
	Timeout time.Duration
	// HTTPClient is used for REST calls. Nil means a fresh http.Client.
	HTTPClient *http.Client
	// Dialer is used for the log stream. Nil means websocket.DefaultDialer.
	Dialer *websocket.Dialer
	Logger *zap.Logger
}

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Client talks to the swarm backend.
type Client struct {
	base      *url.URL
	streamURL string
	endpoints Endpoints
	timeout   time.Duration
	http      *http.Client
	dialer    *websocket.Dialer
	logger    *zap.Logger
}

// NewClient validates cfg and creates a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend base URL is not set")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base URL must be http or https, got %q", cfg.BaseURL)
	}

	endpoints := cfg.Endpoints.withDefaults()

	streamURL := cfg.StreamURL
	if streamURL == "" {
		streamURL = deriveStreamURL(base, endpoints.Stream)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		base:      base,
		streamURL: streamURL,
		endpoints: endpoints,
		timeout:   timeout,
		http:      httpClient,
		dialer:    dialer,
		logger:    logger,
	}, nil
}

// BaseURL returns the normalised backend root.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// StreamURL returns the websocket URL of the log stream.
func (c *Client) StreamURL() string {
	return c.streamURL
}

// Run triggers one backend run. It is bounded only by ctx.
func (c *Client) Run(ctx context.Context) (*models.RunResult, error) {
	var result models.RunResult
	if err := c.do(ctx, http.MethodPost, c.endpoints.Run, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Status fetches the metrics snapshot.
func (c *Client) Status(ctx context.Context) (models.Status, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var status models.Status
	if err := c.do(ctx, http.MethodGet, c.endpoints.Status, &status); err != nil {
		return nil, err
	}
	return status, nil
}

// Logs fetches the full log, newest first.
func (c *Client) Logs(ctx context.Context) ([]models.LogEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var logs []models.LogEntry
	if err := c.do(ctx, http.MethodGet, c.endpoints.Logs, &logs); err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []models.LogEntry{}
	}
	return logs, nil
}

// Health fetches the backend health report.
func (c *Client) Health(ctx context.Context) (models.Status, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var health models.Status
	if err := c.do(ctx, http.MethodGet, c.endpoints.Health, &health); err != nil {
		return nil, err
	}
	return health, nil
}

// Reset clears backend state.
func (c *Client) Reset(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.do(ctx, http.MethodPost, c.endpoints.Reset, nil)
}

// Dial opens the log stream.
func (c *Client) Dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("User-Agent", version.UserAgent())

	conn, resp, err := c.dialer.DialContext(ctx, c.streamURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %d: %w", c.streamURL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", c.streamURL, err)
	}
	return conn, nil
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), nil)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("backend request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Method: method,
			Path:   path,
			Code:   resp.StatusCode,
			Body:   strings.TrimSpace(string(body)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) resolve(path string) string {
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + "/" + strings.TrimLeft(path, "/")
	return u.String()
}

func deriveStreamURL(base *url.URL, path string) string {
	u := *base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(base.Path, "/") + "/" + strings.TrimLeft(path, "/")
	return u.String()
}
