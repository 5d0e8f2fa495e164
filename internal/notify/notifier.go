// Package notify tells list participants about activity they did not cause.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Message is a push notification.
type Message struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Notifier delivers a message to every device of a user.
type Notifier interface {
	Notify(ctx context.Context, userID string, msg Message) error
}

// LogNotifier writes notifications to the log. Used in development.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notifier").Logger()}
}

func (n *LogNotifier) Notify(_ context.Context, userID string, msg Message) error {
	n.log.Info().Str("user", userID).Str("title", msg.Title).Str("body", msg.Body).Msg("notification")
	return nil
}

// WebhookNotifier posts notifications to a push gateway.
type WebhookNotifier struct {
	client *resty.Client
}

type pushRequest struct {
	UserID string `json:"userId"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

func NewWebhookNotifier(baseURL string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	return &WebhookNotifier{client: c}
}

// Notify returns a backoff.Permanent error for client errors other than 429,
// which retrying cannot fix.
func (w *WebhookNotifier) Notify(ctx context.Context, userID string, msg Message) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(&pushRequest{UserID: userID, Title: msg.Title, Body: msg.Body}).
		Post("/notify")
	if err != nil {
		return fmt.Errorf("push gateway request: %w", err)
	}
	code := resp.StatusCode()
	switch {
	case code >= 200 && code < 300:
		return nil
	case code >= 400 && code < 500 && code != http.StatusTooManyRequests:
		return backoff.Permanent(fmt.Errorf("push gateway status %d: %s", code, resp.String()))
	}
	return fmt.Errorf("push gateway status %d: %s", code, resp.String())
}
