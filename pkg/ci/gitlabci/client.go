package gitlabci

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/edulab/cibridge/pkg/ci"
)

// Config is the connection configuration of one GitLab instance.
type Config struct {
	URL   string
	Token string
	// WebHookBase is the externally reachable base URL of the platform,
	// used inside the generated pipeline definition.
	WebHookBase string
}

// Client wraps the GitLab REST API v4. Authentication rides on an OAuth2
// static token source so the token is attached uniformly to every request.
type Client struct {
	cfg  *Config
	http *http.Client
}

// NewClient creates a client for the given configuration.
func NewClient(cfg *Config) *Client {
	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	client := oauth2.NewClient(context.Background(), source)
	client.Timeout = 30 * time.Second
	return &Client{cfg: cfg, http: client}
}

// projectPath encodes "namespace/repo" the way the API expects it in URLs.
func projectPath(namespace, repo string) string {
	return url.PathEscape(namespace + "/" + repo)
}

func (c *Client) request(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.URL+"/api/v4"+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, ci.NewConnectorError(backendName, method, err).WithURL(req.URL.String())
	}
	return resp, nil
}

// getJSON performs a GET and decodes the JSON response into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ci.NewNotFoundError("resource", path)
	}
	if resp.StatusCode != http.StatusOK {
		return ci.NewConnectorError(backendName, "GET", fmt.Errorf("unexpected status: %s", resp.Status)).WithURL(c.cfg.URL + "/api/v4" + path)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

// send performs a mutating request and discards the response body.
func (c *Client) send(ctx context.Context, method, path string, payload any) error {
	resp, err := c.request(ctx, method, path, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ci.NewNotFoundError("resource", path)
	}
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return ci.NewConnectorError(backendName, method, fmt.Errorf("unexpected status %s: %s", resp.Status, string(raw))).WithURL(c.cfg.URL + "/api/v4" + path)
	}
	return nil
}
