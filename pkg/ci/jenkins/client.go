package jenkins

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/edulab/cibridge/pkg/ci"
)

// Config is the connection configuration of one Jenkins master.
type Config struct {
	URL         string
	Username    string
	Token       string
	ServiceUser string
	AdminGroup  string
	// CredentialsID names the Jenkins credential used to check out
	// repositories from the VCS.
	CredentialsID string
	// WebHookBase is the externally reachable base URL the notification
	// plugin pushes results to.
	WebHookBase string
}

// Client wraps the Jenkins REST API. Every mutating request carries the CSRF
// crumb the master issued, the crumb is fetched lazily and refreshed when a
// request is rejected with 403.
type Client struct {
	cfg  *Config
	http *http.Client

	mu    sync.Mutex
	crumb crumb
}

type crumb struct {
	Field string `json:"crumbRequestField"`
	Value string `json:"crumb"`
}

// NewClient creates a client for the given configuration.
func NewClient(cfg *Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) getCrumb(ctx context.Context, force bool) (crumb, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.crumb.Value != "" && !force {
		return c.crumb, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL+"/crumbIssuer/api/json", nil)
	if err != nil {
		return crumb{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Token)
	resp, err := c.http.Do(req)
	if err != nil {
		return crumb{}, ci.NewConnectorError(backendName, "GET", err).WithURL(req.URL.String())
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		// Crumb issuer disabled on this master, requests go out without one.
		return crumb{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return crumb{}, ci.NewConnectorError(backendName, "GET", fmt.Errorf("unexpected status: %s", resp.Status)).WithURL(req.URL.String())
	}
	if err := json.NewDecoder(resp.Body).Decode(&c.crumb); err != nil {
		return crumb{}, fmt.Errorf("failed to decode crumb: %w", err)
	}
	return c.crumb, nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.URL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if method != http.MethodGet {
		cr, err := c.getCrumb(ctx, false)
		if err != nil {
			return nil, err
		}
		if cr.Value != "" {
			req.Header.Set(cr.Field, cr.Value)
		}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, ci.NewConnectorError(backendName, method, err).WithURL(req.URL.String())
	}
	if resp.StatusCode == http.StatusForbidden && method != http.MethodGet {
		// Stale crumb, refresh once and retry.
		resp.Body.Close()
		cr, err := c.getCrumb(ctx, true)
		if err != nil {
			return nil, err
		}
		if body != nil {
			reader = bytes.NewReader(body)
		}
		retry, err := http.NewRequestWithContext(ctx, method, c.cfg.URL+path, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		retry.SetBasicAuth(c.cfg.Username, c.cfg.Token)
		if contentType != "" {
			retry.Header.Set("Content-Type", contentType)
		}
		if cr.Value != "" {
			retry.Header.Set(cr.Field, cr.Value)
		}
		resp, err = c.http.Do(retry)
		if err != nil {
			return nil, ci.NewConnectorError(backendName, method, err).WithURL(retry.URL.String())
		}
	}
	return resp, nil
}

// getJSON performs a GET and decodes the JSON response into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ci.NewNotFoundError("job", path)
	}
	if resp.StatusCode != http.StatusOK {
		return ci.NewConnectorError(backendName, "GET", fmt.Errorf("unexpected status: %s", resp.Status)).WithURL(c.cfg.URL + path)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

// getXML performs a GET and returns the raw XML body.
func (c *Client) getXML(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ci.NewNotFoundError("job", path)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, ci.NewConnectorError(backendName, "GET", fmt.Errorf("unexpected status: %s", resp.Status)).WithURL(c.cfg.URL + path)
	}
	return io.ReadAll(resp.Body)
}

// postXML pushes a config.xml document.
func (c *Client) postXML(ctx context.Context, path string, config []byte) error {
	resp, err := c.do(ctx, http.MethodPost, path, "application/xml; charset=utf-8", config)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ci.NewNotFoundError("job", path)
	}
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return ci.NewConnectorError(backendName, "POST", fmt.Errorf("unexpected status %s: %s", resp.Status, string(raw))).WithURL(c.cfg.URL + path)
	}
	return nil
}

// post performs a bare POST against an action endpoint such as doDelete.
func (c *Client) post(ctx context.Context, path string) error {
	resp, err := c.do(ctx, http.MethodPost, path, "application/x-www-form-urlencoded", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ci.NewNotFoundError("job", path)
	}
	if resp.StatusCode >= 400 {
		return ci.NewConnectorError(backendName, "POST", fmt.Errorf("unexpected status: %s", resp.Status)).WithURL(c.cfg.URL + path)
	}
	return nil
}

// folderPath builds the URL path of a job inside its project folder. An empty
// job addresses the folder itself.
func folderPath(projectKey, job string) string {
	p := "/job/" + url.PathEscape(projectKey)
	if job != "" {
		p += "/job/" + url.PathEscape(job)
	}
	return p
}
