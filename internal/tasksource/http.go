package tasksource

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"agentscore/internal/httpclient"
	"agentscore/internal/jsonx"
)

// HTTPSource talks to the task-source REST service.
type HTTPSource struct {
	baseURL string
	tier    string
	client  *http.Client
}

// NewHTTPSource returns a client for the service rooted at baseURL. tier,
// when set, narrows ListAvailable to one required tier.
func NewHTTPSource(baseURL, tier string, client *http.Client) *HTTPSource {
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		tier:    tier,
		client:  client,
	}
}

// wireTask tolerates numeric ids and missing timestamps.
type wireTask struct {
	ID           wireID    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Payout       string    `json:"payoutAmount"`
	RequiredTier string    `json:"requiredTier"`
	CreatedAt    time.Time `json:"createdAt"`
}

type wireID string

func (id *wireID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := jsonx.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = wireID(s)
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	*id = wireID(data)
	return nil
}

// ListAvailable implements Source.
func (s *HTTPSource) ListAvailable(ctx context.Context, identity string) ([]Task, error) {
	query := url.Values{}
	query.Set("agent", identity)
	if s.tier != "" {
		query.Set("tier", s.tier)
	}

	var resp struct {
		Tasks []wireTask `json:"tasks"`
		Total int        `json:"total"`
	}
	err := httpclient.DoJSON(ctx, s.client, "tasksource.list", httpclient.Request{
		Method: http.MethodGet,
		URL:    s.baseURL + "/tasks?" + query.Encode(),
	}, &resp)
	if err != nil {
		return nil, err
	}

	tasks := make([]Task, 0, len(resp.Tasks))
	for _, w := range resp.Tasks {
		if w.ID == "" {
			continue
		}
		tasks = append(tasks, Task{
			ID:           string(w.ID),
			Title:        w.Title,
			Description:  w.Description,
			Payout:       w.Payout,
			RequiredTier: w.RequiredTier,
			CreatedAt:    w.CreatedAt,
			Origin:       OriginRemote,
			Status:       StatusDiscovered,
		})
	}
	return tasks, nil
}

// Accept implements Source.
func (s *HTTPSource) Accept(ctx context.Context, taskID, identity string) error {
	return httpclient.DoJSON(ctx, s.client, "tasksource.accept", httpclient.Request{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("%s/tasks/%s/accept", s.baseURL, url.PathEscape(taskID)),
		Body:   map[string]string{"agentAddress": identity},
	}, nil)
}

// Complete implements Source.
func (s *HTTPSource) Complete(ctx context.Context, taskID string, rating int) error {
	return httpclient.DoJSON(ctx, s.client, "tasksource.complete", httpclient.Request{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("%s/tasks/%s/complete", s.baseURL, url.PathEscape(taskID)),
		Body:   map[string]int{"rating": rating},
	}, nil)
}

// RegisterAgent implements Source.
func (s *HTTPSource) RegisterAgent(ctx context.Context, identity string) error {
	return httpclient.DoJSON(ctx, s.client, "tasksource.register", httpclient.Request{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("%s/agents/%s/register", s.baseURL, url.PathEscape(identity)),
	}, nil)
}
