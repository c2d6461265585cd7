package dial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds every lifecycle request.
const DefaultTimeout = 5 * time.Second

// maxBody caps descriptor and info documents.
const maxBody = 64 * 1024

// Lifecycle errors.
var (
	ErrAppNotFound           = errors.New("dial: application not found")
	ErrNotRunning            = errors.New("dial: application not running")
	ErrStartFailed           = errors.New("dial: start failed")
	ErrStopFailed            = errors.New("dial: stop failed")
	ErrMissingApplicationURL = errors.New("dial: missing Application-URL header")
	ErrUnexpectedStatus      = errors.New("dial: unexpected HTTP status")
)

// Config configures lifecycle requests.
type Config struct {
	Timeout time.Duration

	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{Timeout: DefaultTimeout}
}

func (c Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// Resolver fetches device descriptors.
type Resolver struct {
	client *http.Client
	logger *slog.Logger
}

// NewResolver creates a descriptor resolver.
func NewResolver(config Config) *Resolver {
	return &Resolver{client: config.httpClient(), logger: config.logger()}
}

// Resolve fetches and parses the descriptor at location.
func (r *Resolver) Resolve(ctx context.Context, location string) (*Descriptor, error) {
	resp, body, err := do(ctx, r.client, http.MethodGet, location)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w %d for %s", ErrUnexpectedStatus, resp.StatusCode, location)
	}

	desc, err := parseDescriptor(body)
	if err != nil {
		return nil, fmt.Errorf("parse descriptor %s: %w", location, err)
	}
	desc.Location = location
	desc.ApplicationURL = resp.Header.Get("Application-URL")
	if desc.ApplicationURL == "" {
		return nil, fmt.Errorf("%w at %s", ErrMissingApplicationURL, location)
	}
	r.logger.Debug("resolved descriptor", "location", location, "name", desc.FriendlyName)
	return desc, nil
}

// Client drives applications below one Application-URL.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewClient creates a client for the application resources under baseURL.
func NewClient(baseURL string, config Config) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  config.httpClient(),
		logger:  config.logger(),
	}
}

// BaseURL returns the Application-URL the client works under.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Info returns the state of application app.
func (c *Client) Info(ctx context.Context, app string) (*AppInfo, error) {
	target := c.appURL(app)
	resp, body, err := do(ctx, c.client, http.MethodGet, target)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrAppNotFound, app)
	default:
		return nil, fmt.Errorf("%w %d for %s", ErrUnexpectedStatus, resp.StatusCode, target)
	}

	info, err := parseAppInfo(body)
	if err != nil {
		return nil, fmt.Errorf("parse info for %s: %w", app, err)
	}
	return info, nil
}

// Start asks the receiver to launch app.
func (c *Client) Start(ctx context.Context, app string) error {
	resp, _, err := do(ctx, c.client, http.MethodPost, c.appURL(app))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStartFailed, err)
	}
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		c.logger.Debug("application started", "app", app, "status", resp.StatusCode)
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w: %s", ErrStartFailed, ErrAppNotFound, app)
	default:
		return fmt.Errorf("%w: HTTP %d", ErrStartFailed, resp.StatusCode)
	}
}

// Stop resolves the run link of app and deletes it.
func (c *Client) Stop(ctx context.Context, app string) error {
	info, err := c.Info(ctx, app)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStopFailed, err)
	}
	if info.RunLink == "" {
		return fmt.Errorf("%w: %w: %s", ErrStopFailed, ErrNotRunning, app)
	}

	resp, _, err := do(ctx, c.client, http.MethodDelete, c.appURL(app)+"/"+url.PathEscape(info.RunLink))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStopFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: HTTP %d", ErrStopFailed, resp.StatusCode)
	}
	c.logger.Debug("application stopped", "app", app)
	return nil
}

func (c *Client) appURL(app string) string {
	return c.baseURL + "/" + url.PathEscape(app)
}

func do(ctx context.Context, client *http.Client, method, target string) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, nil, fmt.Errorf("read response body: %w", err)
	}
	return resp, body, nil
}
