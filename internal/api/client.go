package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quire/internal/project"
	"quire/internal/services"
	"quire/internal/workflow"
)

// ErrUnavailable reports that no daemon answered.
var ErrUnavailable = errors.New("daemon API unavailable")

// StatusError is a non-2xx answer from the daemon.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("daemon returned %d: %s", e.Code, e.Message)
}

// Unwrap maps HTTP codes onto the service error markers.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusNotFound:
		return services.ErrNotFound
	case http.StatusBadRequest:
		return services.ErrValidation
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return services.ErrTransient
	}
	return nil
}

// Client talks to the daemon HTTP API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// NewClient builds a client for baseURL ("host:port" or a full URL).
func NewClient(baseURL, token string) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, ErrUnavailable
	}
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse daemon url: %w", err)
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""
	return &Client{
		base:  base,
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Daemon returns the daemon's runtime status.
func (c *Client) Daemon(ctx context.Context) (DaemonStatus, error) {
	var out DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/daemon", nil, nil, &out)
	return out, err
}

// CreateProject creates (and by default starts) a project.
func (c *Client) CreateProject(ctx context.Context, req CreateProjectRequest) (CreateProjectResponse, error) {
	var out CreateProjectResponse
	err := c.do(ctx, http.MethodPost, "/api/projects", nil, req, &out)
	return out, err
}

// Projects lists every project the daemon can see.
func (c *Client) Projects(ctx context.Context) ([]project.Summary, error) {
	var out ProjectListResponse
	err := c.do(ctx, http.MethodGet, "/api/projects", nil, nil, &out)
	return out.Projects, err
}

// Status returns a project's status view.
func (c *Client) Status(ctx context.Context, id string) (workflow.View, error) {
	var out StatusResponse
	err := c.do(ctx, http.MethodGet, projectPath(id, "status"), nil, nil, &out)
	return out.Project, err
}

// Start launches a fresh run.
func (c *Client) Start(ctx context.Context, id string) (workflow.View, error) {
	var out StatusResponse
	err := c.do(ctx, http.MethodPost, projectPath(id, "start"), nil, nil, &out)
	return out.Project, err
}

// Reset resumes a stale run.
func (c *Client) Reset(ctx context.Context, id string) (workflow.View, error) {
	var out StatusResponse
	err := c.do(ctx, http.MethodPost, projectPath(id, "reset"), nil, nil, &out)
	return out.Project, err
}

// Artifacts lists or searches a project's documents.
func (c *Client) Artifacts(ctx context.Context, id string, q ArtifactQuery) ([]Artifact, error) {
	var out ArtifactListResponse
	err := c.do(ctx, http.MethodGet, projectPath(id, "artifacts"), q.values(), nil, &out)
	return out.Artifacts, err
}

// Artifact fetches one document with its text.
func (c *Client) Artifact(ctx context.Context, id, docID string) (Artifact, error) {
	var out ArtifactResponse
	err := c.do(ctx, http.MethodGet, projectPath(id, "artifacts", docID), nil, nil, &out)
	return out.Artifact, err
}

// DeleteArtifact removes one document.
func (c *Client) DeleteArtifact(ctx context.Context, id, docID string) (bool, error) {
	var out DeleteResponse
	err := c.do(ctx, http.MethodDelete, projectPath(id, "artifacts", docID), nil, nil, &out)
	return out.Deleted, err
}

// Stats returns store statistics.
func (c *Client) Stats(ctx context.Context, id string) (StatsResponse, error) {
	var out StatsResponse
	err := c.do(ctx, http.MethodGet, projectPath(id, "stats"), nil, nil, &out)
	return out, err
}

// Manuscript returns the assembled manuscript.
func (c *Client) Manuscript(ctx context.Context, id string) (ManuscriptResponse, error) {
	var out ManuscriptResponse
	err := c.do(ctx, http.MethodGet, projectPath(id, "manuscript"), nil, nil, &out)
	return out, err
}

// Timeline returns the project's document history.
func (c *Client) Timeline(ctx context.Context, id string) (TimelineResponse, error) {
	var out TimelineResponse
	err := c.do(ctx, http.MethodGet, projectPath(id, "timeline"), nil, nil, &out)
	return out, err
}

func projectPath(id string, parts ...string) string {
	return "/" + strings.Join(append([]string{"api", "projects", id}, parts...), "/")
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c == nil {
		return ErrUnavailable
	}
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var payload ErrorResponse
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, &payload) != nil || payload.Error == "" {
			payload.Error = strings.TrimSpace(string(data))
		}
		return &StatusError{Code: resp.StatusCode, Message: payload.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// IsUnavailable reports whether err means no daemon is listening.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrUnavailable) || errors.As(err, &opErr)
}
