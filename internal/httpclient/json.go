package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	workererrors "agentscore/internal/errors"
	"agentscore/internal/jsonx"
)

// MaxResponseBytes caps every collaborator response body.
const MaxResponseBytes = 1 << 20

// Request describes one JSON call to a collaborator.
type Request struct {
	Method  string
	URL     string
	Body    any
	Headers map[string]string
}

// DoJSON sends req and decodes a 2xx JSON answer into out (when non-nil).
// Every failure comes back classified under op.
func DoJSON(ctx context.Context, client *http.Client, op string, req Request, out any) error {
	if client == nil {
		client = http.DefaultClient
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := jsonx.Marshal(req.Body)
		if err != nil {
			return workererrors.New(workererrors.KindPermanentRemote, op, fmt.Errorf("encode request: %w", err))
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return workererrors.New(workererrors.KindPermanentRemote, op, fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", DefaultUserAgent)
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return workererrors.Classify(op, ctx.Err())
		}
		return workererrors.Classify(op, err)
	}
	defer resp.Body.Close()

	data, err := ReadAllWithLimit(resp.Body, MaxResponseBytes)
	if err != nil {
		return workererrors.New(workererrors.KindTransientRemote, op, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return workererrors.FromStatus(op, resp.StatusCode, errorMessage(data))
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := jsonx.Unmarshal(data, out); err != nil {
		return workererrors.New(workererrors.KindPermanentRemote, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// errorMessage pulls a readable message out of an error body.
func errorMessage(data []byte) string {
	var envelope struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := jsonx.Unmarshal(data, &envelope); err == nil {
		if envelope.Error != "" {
			return envelope.Error
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}
	msg := strings.TrimSpace(string(data))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
