// Package ledger reads and writes the agent's score on the reputation ledger.
package ledger

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"agentscore/internal/httpclient"
)

// Ledger is the authoritative store of agent reputation.
type Ledger interface {
	Score(ctx context.Context, identity string) (int, error)
	SetScore(ctx context.Context, identity string, score int) error
}

// HTTPLedger talks to the ledger REST service.
type HTTPLedger struct {
	baseURL string
	client  *http.Client
}

// NewHTTP returns a ledger client rooted at baseURL.
func NewHTTP(baseURL string, client *http.Client) *HTTPLedger {
	return &HTTPLedger{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (l *HTTPLedger) endpoint(identity string) string {
	return fmt.Sprintf("%s/reputation/%s", l.baseURL, url.PathEscape(identity))
}

// Score implements Ledger.
func (l *HTTPLedger) Score(ctx context.Context, identity string) (int, error) {
	var resp struct {
		Reputation *int `json:"reputation"`
	}
	err := httpclient.DoJSON(ctx, l.client, "ledger.read", httpclient.Request{
		Method: http.MethodGet,
		URL:    l.endpoint(identity),
	}, &resp)
	if err != nil {
		return 0, err
	}
	if resp.Reputation == nil {
		return 0, ErrMissingScore
	}
	return *resp.Reputation, nil
}

// SetScore implements Ledger.
func (l *HTTPLedger) SetScore(ctx context.Context, identity string, score int) error {
	return httpclient.DoJSON(ctx, l.client, "ledger.write", httpclient.Request{
		Method: http.MethodPut,
		URL:    l.endpoint(identity),
		Body:   map[string]int{"score": score},
	}, nil)
}

// Memory keeps scores in process. It backs the worker when no ledger URL is
// configured and doubles as a test fake.
type Memory struct {
	mu     sync.Mutex
	scores map[string]int
	writes int
}

// NewMemory returns an empty in-process ledger.
func NewMemory() *Memory {
	return &Memory{scores: make(map[string]int)}
}

// Score implements Ledger. Unknown identities report ErrUnknownIdentity.
func (m *Memory) Score(_ context.Context, identity string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	score, ok := m.scores[identity]
	if !ok {
		return 0, ErrUnknownIdentity
	}
	return score, nil
}

// SetScore implements Ledger.
func (m *Memory) SetScore(_ context.Context, identity string, score int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores[identity] = score
	m.writes++
	return nil
}

// Writes returns how many SetScore calls landed.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
