package bamboo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/edulab/cibridge/pkg/ci"
)

// Config is the immutable connection configuration of one Bamboo server.
// It is created once at startup and passed by reference, there is no global
// client state.
type Config struct {
	URL         string
	Username    string
	Password    string
	ServiceUser string
	AdminGroup  string
	// WebHookBase is the externally reachable base URL results are pushed
	// to, e.g. https://platform.example.com.
	WebHookBase string
}

// Client wraps the HTTP communication with the Bamboo REST API. All requests
// use basic auth, responses with status 404 map onto ci.NotFoundError so the
// callers can treat "already gone" uniformly.
type Client struct {
	cfg  *Config
	http *http.Client
}

// NewClient creates a client for the given configuration.
func NewClient(cfg *Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := c.cfg.URL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// getJSON performs a GET and decodes the JSON response into out.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return ci.NewConnectorError(backendName, "GET", err).WithURL(req.URL.String())
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ci.NewNotFoundError("resource", req.URL.Path)
	}
	if resp.StatusCode != http.StatusOK {
		return ci.NewConnectorError(backendName, "GET", fmt.Errorf("unexpected status: %s", resp.Status)).WithURL(req.URL.String())
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

// postJSON performs a POST with a JSON body.
func (c *Client) postJSON(ctx context.Context, path string, payload any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, nil, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return ci.NewConnectorError(backendName, "POST", err).WithURL(req.URL.String())
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ci.NewNotFoundError("resource", req.URL.Path)
	}
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return ci.NewConnectorError(backendName, "POST", fmt.Errorf("unexpected status %s: %s", resp.Status, string(raw))).WithURL(req.URL.String())
	}
	return nil
}

// postAction performs a POST against one of Bamboo's form-style admin
// actions and returns the raw response body.
func (c *Client) postAction(ctx context.Context, path string, params url.Values) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, path, params, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", ci.NewConnectorError(backendName, "POST", err).WithURL(req.URL.String())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return string(raw), ci.NewNotFoundError("resource", req.URL.Path)
	}
	if resp.StatusCode >= 300 {
		return string(raw), ci.NewConnectorError(backendName, "POST", fmt.Errorf("unexpected status %s: %s", resp.Status, string(raw))).WithURL(req.URL.String())
	}
	return string(raw), nil
}

// deleteJSON performs a DELETE with a JSON body.
func (c *Client) deleteJSON(ctx context.Context, path string, payload any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := c.newRequest(ctx, http.MethodDelete, path, nil, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return ci.NewConnectorError(backendName, "DELETE", err).WithURL(req.URL.String())
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ci.NewNotFoundError("resource", req.URL.Path)
	}
	if resp.StatusCode >= 300 {
		return ci.NewConnectorError(backendName, "DELETE", fmt.Errorf("unexpected status: %s", resp.Status)).WithURL(req.URL.String())
	}
	return nil
}
