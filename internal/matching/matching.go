// Package matching triggers the external engine that pairs executions into
// round-trip trades after an import adds rows.
package matching

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Veraticus/the-trades-must-flow/internal/common"
	"github.com/Veraticus/the-trades-must-flow/internal/service"
)

// DefaultTimeout bounds a single webhook call.
const DefaultTimeout = 10 * time.Second

// Request is the webhook body.
type Request struct {
	UserID      string `json:"user_id"`
	ImportRunID string `json:"import_run_id"`
}

// Webhook posts match requests to an HTTP endpoint.
type Webhook struct {
	client *http.Client
	url    string
	token  string
	retry  service.RetryOptions
}

// NewWebhook creates a webhook trigger. token, when set, is sent as a bearer
// token.
func NewWebhook(url, token string) *Webhook {
	return &Webhook{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: DefaultTimeout},
		retry: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Multiplier:   2,
		},
	}
}

// MatchExecutions asks the engine to match the executions of a run.
func (w *Webhook) MatchExecutions(ctx context.Context, userID, runID string) error {
	body, err := json.Marshal(Request{UserID: userID, ImportRunID: runID})
	if err != nil {
		return fmt.Errorf("failed to encode match request: %w", err)
	}

	return common.WithRetry(ctx, func() error {
		return w.post(ctx, body)
	}, w.retry)
}

func (w *Webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create match request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: match request failed: %w", common.ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: matching engine returned %d", common.ErrRateLimit, resp.StatusCode)
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: matching engine returned %d", common.ErrTransient, resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		return fmt.Errorf("matching engine rejected request: status %d", resp.StatusCode)
	}
	return nil
}

// LogOnly records match requests without calling anything.
type LogOnly struct{}

// MatchExecutions logs the request.
func (LogOnly) MatchExecutions(_ context.Context, userID, runID string) error {
	slog.Info("Matching engine not configured, skipping",
		"user_id", userID,
		"run_id", runID)
	return nil
}

// New returns a webhook trigger for url, or LogOnly when url is empty.
func New(url, token string) service.Matcher {
	if url == "" {
		return LogOnly{}
	}
	return NewWebhook(url, token)
}
