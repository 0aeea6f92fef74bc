// Package webhook posts engine lifecycle events to an automation endpoint.
// Delivery is fire-and-forget telemetry: failures are logged and swallowed,
// never surfaced to the primary flow.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Event names posted to the automation endpoint.
const (
	EventSessionSigned    = "session_signed"
	EventAssignmentsSaved = "assignments_saved_v3"
	EventPaymentConfirmed = "payment_confirmed"
	EventReset            = "app_reset"
)

// Notifier delivers engine events to downstream automation.
type Notifier interface {
	Notify(ctx context.Context, event string, fields map[string]any)
}

// HTTPNotifier POSTs each event as a JSON object with the event name and a
// timestamp merged into the caller's fields.
type HTTPNotifier struct {
	url    string
	client *http.Client
	log    *zap.Logger
}

func NewHTTPNotifier(url string, log *zap.Logger) *HTTPNotifier {
	return &HTTPNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

func (n *HTTPNotifier) Notify(ctx context.Context, event string, fields map[string]any) {
	if n == nil || n.url == "" {
		return
	}

	payload := map[string]any{
		"event":     event,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range fields {
		payload[k] = v
	}

	body, err := json.Marshal(payload)
	if err != nil {
		n.log.Debug("webhook marshal failed", zap.String("event", event), zap.Error(err))
		return
	}

	// deliver off the caller's path; the engine never waits on telemetry
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
		if err != nil {
			n.log.Debug("webhook request failed", zap.String("event", event), zap.Error(err))
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			n.log.Debug("webhook delivery failed", zap.String("event", event), zap.Error(err))
			return
		}
		resp.Body.Close()
	}()
}

// Nop drops every event. Useful for tests and unset configuration.
type Nop struct{}

func (Nop) Notify(context.Context, string, map[string]any) {}
