// Package client talks to a running plate-spinner daemon.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/plate-spinner/plate-spinner/internal/session"
)

const DefaultTimeout = 5 * time.Second

// HTTPClient makes REST calls to the daemon.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a client targeting the given base URL (e.g. "http://127.0.0.1:7890").
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

func (c *HTTPClient) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *HTTPClient) Status(ctx context.Context) (*Status, error) {
	var s Status
	if err := c.do(ctx, http.MethodGet, "/status", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *HTTPClient) Sessions(ctx context.Context) ([]*session.Session, error) {
	var out []*session.Session
	if err := c.do(ctx, http.MethodGet, "/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) Session(ctx context.Context, id string) (*session.Session, error) {
	var s session.Session
	if err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(id), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Register creates the placeholder for a session about to start in
// projectPath and returns its id.
func (c *HTTPClient) Register(ctx context.Context, projectPath string) (string, error) {
	var out registerResponse
	body := map[string]string{"project_path": projectPath}
	if err := c.do(ctx, http.MethodPost, "/sessions/register", body, &out); err != nil {
		return "", err
	}
	return out.PlaceholderID, nil
}

// Stopped closes every open session in projectPath and returns how many
// were closed.
func (c *HTTPClient) Stopped(ctx context.Context, projectPath string) (int, error) {
	var out stoppedResponse
	body := map[string]string{"project_path": projectPath}
	if err := c.do(ctx, http.MethodPost, "/sessions/stopped", body, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (c *HTTPClient) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(id), nil, nil)
}

func (c *HTTPClient) DismissBanner(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/banner/dismiss", nil, nil)
}

func (c *HTTPClient) Shutdown(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/shutdown", nil, nil)
}

func (c *HTTPClient) PostEvent(ctx context.Context, ev *session.HookEvent) error {
	return c.do(ctx, http.MethodPost, "/events", ev, nil)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, e.Body)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(bytes.TrimSpace(respBody))}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
