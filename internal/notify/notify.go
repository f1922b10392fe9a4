// Package notify delivers plain-text messages to a chat webhook. Delivery is
// best effort: callers log failures and carry on.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"bibo/internal/domain"
)

// Notifier sends a plain-text message.
type Notifier interface {
	Notify(ctx context.Context, msg string) error
}

// WebhookNotifier posts {"content": msg} to a Discord-style webhook.
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
}

// NewWebhookNotifier returns a notifier for url. A zero timeout means 10s.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type webhookPayload struct {
	Content string `json:"content"`
}

// Notify posts msg to the webhook. Any non-2xx response is an error.
func (n *WebhookNotifier) Notify(ctx context.Context, msg string) error {
	body, err := json.Marshal(webhookPayload{Content: msg})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w: %w", domain.ErrExternalService, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("posting webhook: %w: status %d", domain.ErrExternalService, resp.StatusCode)
	}
	return nil
}

// Nop discards every message.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(context.Context, string) error { return nil }

// Recorder keeps every message in memory.
type Recorder struct {
	mu   sync.Mutex
	msgs []string
}

// Notify appends msg.
func (r *Recorder) Notify(_ context.Context, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

// New returns a WebhookNotifier when url is set and Nop otherwise.
func New(url string, timeout time.Duration) Notifier {
	if url == "" {
		return Nop{}
	}
	return NewWebhookNotifier(url, timeout)
}

// Send delivers msg and logs a failure instead of returning it.
func Send(ctx context.Context, n Notifier, log *slog.Logger, msg string) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, msg); err != nil {
		log.Warn("notification failed", "err", err)
	}
}
