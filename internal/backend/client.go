// Package backend is the HTTP transport shared by the session and config
// stores. It speaks JSON to the admin backend and carries the backend's
// session cookie the way a browser would with credentials included,
// persisting it so the CLI keeps its login across runs.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/lewisedginton/bot_manager_console/internal/localstore"
	"github.com/lewisedginton/bot_manager_console/pkg/logger"
)

// DefaultSessionCookie is the cookie name the admin backend issues.
const DefaultSessionCookie = "session"

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 10 << 20

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend: %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Config configures a Client.
type Config struct {
	// BaseURL is the backend API root, e.g. http://localhost:5000/api.
	BaseURL string
	// Timeout bounds each request. Zero leaves the transport default.
	Timeout time.Duration
	// CookieName is the session cookie to persist. Defaults to "session".
	CookieName string
	// Store persists the session cookie. Optional.
	Store localstore.Store
	// HTTPClient overrides the underlying client. Its Jar is replaced.
	HTTPClient *http.Client
	Logger     logger.Logger
}

// Client issues JSON requests against the admin backend.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	cookieName string
	store      localstore.Store
	log        logger.Logger
}

type persistedCookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Path    string    `json:"path,omitempty"`
	Expires time.Time `json:"expires,omitempty"`
}

// New creates a Client and restores a persisted session cookie, if any.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend base URL: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	httpClient := &http.Client{}
	if cfg.HTTPClient != nil {
		copied := *cfg.HTTPClient
		httpClient = &copied
	}
	httpClient.Jar = jar
	if cfg.Timeout > 0 {
		httpClient.Timeout = cfg.Timeout
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	cookieName := cfg.CookieName
	if cookieName == "" {
		cookieName = DefaultSessionCookie
	}

	c := &Client{
		baseURL:    base,
		httpClient: httpClient,
		cookieName: cookieName,
		store:      cfg.Store,
		log:        log.WithFields(logger.StringField("component", "backend")),
	}
	if err := c.restoreCookie(ctx); err != nil {
		c.log.Warn("Ignoring unreadable persisted session cookie", logger.ErrorField(err))
	}
	return c, nil
}

// BaseURL returns the backend API root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// URL resolves path against the API root.
func (c *Client) URL(path string) string {
	return c.baseURL.String() + "/" + strings.TrimLeft(path, "/")
}

// Do sends requestBody (JSON-encoded when non-nil) to path and decodes a 2xx
// JSON response into out (when non-nil).
func (c *Client) Do(ctx context.Context, method, path string, requestBody, out any) error {
	var body io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("backend: failed to encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), body)
	if err != nil {
		return fmt.Errorf("backend: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if requestBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := logger.GetCorrelationIDFromContext(ctx); id != "" {
		req.Header.Set(logger.CorrelationIDHeader, id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend: request to %s %s failed: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("backend: failed to read response body: %w", err)
	}

	c.persistCookie(ctx)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("backend: failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

// SessionCookie returns the current session cookie value, if any.
func (c *Client) SessionCookie() (string, bool) {
	for _, ck := range c.httpClient.Jar.Cookies(c.baseURL) {
		if ck.Name == c.cookieName {
			return ck.Value, true
		}
	}
	return "", false
}

// ClearSession expires the session cookie locally and forgets the persisted
// copy, independent of whatever the server did.
func (c *Client) ClearSession(ctx context.Context) error {
	c.httpClient.Jar.SetCookies(c.baseURL, []*http.Cookie{{
		Name:    c.cookieName,
		Value:   "",
		Path:    "/",
		MaxAge:  -1,
		Expires: time.Unix(1, 0),
	}})
	if c.store == nil {
		return nil
	}
	if err := c.store.Remove(ctx, localstore.KeySession); err != nil {
		return fmt.Errorf("clear persisted session cookie: %w", err)
	}
	return nil
}

func (c *Client) restoreCookie(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	var pc persistedCookie
	ok, err := localstore.GetJSON(ctx, c.store, localstore.KeySession, &pc)
	if err != nil || !ok {
		return err
	}
	if pc.Name != c.cookieName || pc.Value == "" {
		return nil
	}
	if !pc.Expires.IsZero() && pc.Expires.Before(time.Now()) {
		return c.store.Remove(ctx, localstore.KeySession)
	}
	path := pc.Path
	if path == "" {
		path = "/"
	}
	c.httpClient.Jar.SetCookies(c.baseURL, []*http.Cookie{{Name: pc.Name, Value: pc.Value, Path: path, Expires: pc.Expires}})
	return nil
}

func (c *Client) persistCookie(ctx context.Context) {
	if c.store == nil {
		return
	}
	value, ok := c.SessionCookie()
	if !ok {
		return
	}
	var current persistedCookie
	if found, _ := localstore.GetJSON(ctx, c.store, localstore.KeySession, &current); found && current.Value == value {
		return
	}
	if err := localstore.SetJSON(ctx, c.store, localstore.KeySession, persistedCookie{Name: c.cookieName, Value: value, Path: "/"}); err != nil {
		c.log.Warn("Failed to persist session cookie", logger.ErrorField(err))
	}
}
