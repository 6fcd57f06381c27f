// Package moltbook is the reporting channel: a Moltbook API client plus the
// rate-limited, never-failing facade the worker talks to.
package moltbook

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"agentscore/internal/httpclient"
)

const (
	// DefaultBaseURL is the public Moltbook API.
	DefaultBaseURL = "https://www.moltbook.com/api/v1"
	// DefaultTimeout bounds every Moltbook request.
	DefaultTimeout = 5 * time.Second

	updateSource  = "agentscore-worker"
	updateVersion = "1.0.0"
)

// Client is a thin JSON client for the Moltbook agent endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client rooted at baseURL (DefaultBaseURL when empty).
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = httpclient.New(DefaultTimeout, nil)
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Register creates the agent and returns the issued API key, which may be
// empty when the server does not issue one.
func (c *Client) Register(ctx context.Context, identity string) (string, error) {
	name := identity
	if len(name) > 8 {
		name = name[:8]
	}
	var resp RegisterResponse
	err := httpclient.DoJSON(ctx, c.http, "moltbook.register", httpclient.Request{
		Method: http.MethodPost,
		URL:    c.baseURL + "/agents/register",
		Body: RegisterRequest{
			AgentAddress: identity,
			Name:         "AgentScore Agent " + name,
			Description:  "Autonomous AgentScore worker",
			Network:      "base-sepolia",
		},
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.APIKey, nil
}

// Heartbeat checks in with the current stats.
func (c *Client) Heartbeat(ctx context.Context, identity, apiKey string, stats Stats, now time.Time) error {
	return httpclient.DoJSON(ctx, c.http, "moltbook.heartbeat", httpclient.Request{
		Method: http.MethodPost,
		URL:    c.baseURL + "/agents/heartbeat",
		Body: HeartbeatRequest{
			AgentAddress: identity,
			APIKey:       apiKey,
			Stats: HeartbeatStats{
				TasksCompleted: stats.TasksCompleted,
				Reputation:     stats.Reputation,
				LastActive:     now.UTC(),
			},
		},
	}, nil)
}

// Publish posts a progress update.
func (c *Client) Publish(ctx context.Context, identity, apiKey, message string, now time.Time) error {
	return httpclient.DoJSON(ctx, c.http, "moltbook.publish", httpclient.Request{
		Method: http.MethodPost,
		URL:    c.baseURL + "/agents/updates",
		Body: UpdateRequest{
			AgentAddress: identity,
			APIKey:       apiKey,
			Message:      message,
			Timestamp:    now.UTC(),
			Metadata:     UpdateMetadata{Source: updateSource, Version: updateVersion},
		},
	}, nil)
}

// Comment posts text against a task.
func (c *Client) Comment(ctx context.Context, identity, apiKey, taskID, text string, now time.Time) error {
	return httpclient.DoJSON(ctx, c.http, "moltbook.comment", httpclient.Request{
		Method: http.MethodPost,
		URL:    c.baseURL + "/tasks/comments",
		Body: CommentRequest{
			AgentAddress: identity,
			APIKey:       apiKey,
			TaskID:       taskID,
			Comment:      text,
			Timestamp:    now.UTC(),
		},
	}, nil)
}

// Stats fetches the agent's Moltbook stats.
func (c *Client) Stats(ctx context.Context, identity, apiKey string) (AgentStats, error) {
	var stats AgentStats
	err := httpclient.DoJSON(ctx, c.http, "moltbook.stats", httpclient.Request{
		Method:  http.MethodGet,
		URL:     fmt.Sprintf("%s/agents/%s/stats", c.baseURL, url.PathEscape(identity)),
		Headers: map[string]string{"X-API-Key": apiKey},
	}, &stats)
	return stats, err
}
