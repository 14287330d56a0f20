// Package operator delivers completion reports and failure notices on
// the operator channel.
package operator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dkarpov/fitbot/internal/model"
)

// payload is the wire form posted to the operator webhook. Kind is
// "report" for completion payloads and "notice" for failure notices.
type payload struct {
	Kind   string                  `json:"kind"`
	Text   string                  `json:"text,omitempty"`
	Report *model.CompletionReport `json:"report,omitempty"`
}

// Webhook posts operator messages to a configured HTTP endpoint.
type Webhook struct {
	client *http.Client
	url    string
	token  string
}

// NewWebhook creates a webhook sink. The token, when non-empty, is sent
// as a bearer credential.
func NewWebhook(url, token string) *Webhook {
	return &Webhook{
		client: &http.Client{Timeout: 30 * time.Second},
		url:    url,
		token:  token,
	}
}

func (w *Webhook) DeliverReport(ctx context.Context, report *model.CompletionReport) error {
	return w.post(ctx, payload{Kind: "report", Report: report})
}

func (w *Webhook) Notify(ctx context.Context, text string) error {
	return w.post(ctx, payload{Kind: "notice", Text: text})
}

func (w *Webhook) post(ctx context.Context, p payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode operator payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build operator request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post to operator webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("operator webhook returned %s", resp.Status)
	}
	return nil
}

// Log writes operator messages to the service log. Used when no webhook
// URL is configured, typically in development.
type Log struct{}

func (Log) DeliverReport(_ context.Context, report *model.CompletionReport) error {
	slog.Info("completion report",
		"report_id", report.ID,
		"header", report.Header,
		"body", report.Body,
		"image_bytes", len(report.Image),
	)
	return nil
}

func (Log) Notify(_ context.Context, text string) error {
	slog.Warn("operator notice", "text", text)
	return nil
}
