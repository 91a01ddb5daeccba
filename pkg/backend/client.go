// Package backend is a record store that talks to the platform API over HTTP.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ashutoshpw/coolify/internal/store"
	"github.com/ashutoshpw/coolify/pkg/deployment"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-retryablehttp"
)

// Client is the HTTP client for the platform API. It implements store.Store; every
// session shares the client's connection pool.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *retryablehttp.Client
	logger      hclog.Logger
}

var (
	_ store.Store          = (*Client)(nil)
	_ store.Session        = (*Client)(nil)
	_ store.BuildRegistrar = (*Client)(nil)
)

// NewClient creates a new backend API client
func NewClient(backendURL, accessToken string, logger hclog.Logger) (*Client, error) {
	if backendURL == "" {
		return nil, fmt.Errorf("backend URL cannot be empty")
	}
	if accessToken == "" {
		return nil, fmt.Errorf("access token cannot be empty")
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = nil
	retryClient.HTTPClient.Timeout = 30 * time.Second

	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Client{
		baseURL:     strings.TrimSuffix(backendURL, "/"),
		accessToken: accessToken,
		httpClient:  retryClient,
		logger:      logger.Named("backend"),
	}, nil
}

// redactToken redacts the access token from strings for logging
func (c *Client) redactToken(s string) string {
	if c.accessToken != "" {
		return strings.ReplaceAll(s, c.accessToken, "[REDACTED]")
	}
	return s
}

// Acquire returns the client itself; the HTTP transport pools connections on its own
func (c *Client) Acquire(ctx context.Context) (store.Session, error) {
	return c, nil
}

// Release is a no-op for the HTTP store
func (c *Client) Release() error {
	return nil
}

// RegisterBuild creates a queued build record. A conflict means the platform
// created the record first and is not an error.
// POST /api/v1/builds
func (c *Client) RegisterBuild(ctx context.Context, build deployment.BuildRecord) error {
	if build.Status == "" {
		build.Status = deployment.StatusQueued
	}
	req := CreateBuildRequest{ID: build.ID, ApplicationID: build.ApplicationID, Status: build.Status}
	err := c.do(ctx, http.MethodPost, "/api/v1/builds", req, nil)
	if errors.Is(err, store.ErrInvalidTransition) {
		return nil
	}
	return err
}

// FailStaleBuilds fails the active builds of an application, other than exceptBuildID, created before cutoff
// POST /api/v1/applications/{id}/builds/fail-stale
func (c *Client) FailStaleBuilds(ctx context.Context, applicationID, exceptBuildID string, cutoff time.Time) (int, error) {
	if applicationID == "" {
		return 0, fmt.Errorf("applicationID cannot be empty")
	}
	var resp CountResponse
	path := "/api/v1/applications/" + url.PathEscape(applicationID) + "/builds/fail-stale"
	if err := c.do(ctx, http.MethodPost, path, FailStaleBuildsRequest{ExceptBuildID: exceptBuildID, CreatedBefore: cutoff.UTC()}, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// SetBuildStatus moves a build to status
// PUT /api/v1/builds/{id}/status
func (c *Client) SetBuildStatus(ctx context.Context, buildID string, status deployment.BuildStatus) error {
	if buildID == "" {
		return fmt.Errorf("buildID cannot be empty")
	}
	return c.do(ctx, http.MethodPut, buildPath(buildID, "status"), UpdateBuildStatusRequest{Status: status}, nil)
}

// FailBuild fails a build that is still queued or running
// POST /api/v1/builds/{id}/fail
func (c *Client) FailBuild(ctx context.Context, buildID string) (bool, error) {
	if buildID == "" {
		return false, fmt.Errorf("buildID cannot be empty")
	}
	var resp FailBuildResponse
	if err := c.do(ctx, http.MethodPost, buildPath(buildID, "fail"), nil, &resp); err != nil {
		return false, err
	}
	return resp.Changed, nil
}

// SetBuildCommit records the checked out commit
// PUT /api/v1/builds/{id}/commit
func (c *Client) SetBuildCommit(ctx context.Context, buildID, commit string) error {
	if buildID == "" {
		return fmt.Errorf("buildID cannot be empty")
	}
	return c.do(ctx, http.MethodPut, buildPath(buildID, "commit"), UpdateBuildCommitRequest{Commit: commit}, nil)
}

// SetApplicationConfigHash stores the fingerprint of the last successful production deployment
// PUT /api/v1/applications/{id}/config-hash
func (c *Client) SetApplicationConfigHash(ctx context.Context, applicationID, hash string) error {
	if applicationID == "" {
		return fmt.Errorf("applicationID cannot be empty")
	}
	path := "/api/v1/applications/" + url.PathEscape(applicationID) + "/config-hash"
	return c.do(ctx, http.MethodPut, path, UpdateConfigHashRequest{ConfigHash: hash}, nil)
}

// AppendBuildLog appends one line to a build log
// POST /api/v1/builds/{id}/logs
func (c *Client) AppendBuildLog(ctx context.Context, line deployment.LogLine) error {
	if line.BuildID == "" {
		return fmt.Errorf("buildID cannot be empty")
	}
	if line.Time.IsZero() {
		line.Time = time.Now()
	}
	return c.do(ctx, http.MethodPost, buildPath(line.BuildID, "logs"), line, nil)
}

func buildPath(buildID, action string) string {
	return "/api/v1/builds/" + url.PathEscape(buildID) + "/" + action
}

// do sends a JSON request and decodes a JSON response into out when out is non-nil
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	params := url.Values{}
	params.Add("accessToken", c.accessToken)
	fullURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	c.logger.Trace("request", "method", method, "url", c.redactToken(fullURL))

	req, err := retryablehttp.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: request failed: %s", method, path, c.redactToken(err.Error()))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, store.ErrNotFound)
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%s %s: %w: %s", method, path, store.ErrInvalidTransition, errorMessage(respBody))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%s %s: unexpected status code %d: %s", method, path, resp.StatusCode, errorMessage(respBody))
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

func errorMessage(body []byte) string {
	var e ErrorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		return e.Message
	}
	return strings.TrimSpace(string(body))
}
