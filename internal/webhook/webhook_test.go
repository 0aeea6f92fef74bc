package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lastwish-io/estate-engine/internal/logging"
)

func TestNotifyPostsEventPayload(t *testing.T) {
	got := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		got <- payload
	}))
	defer srv.Close()

	n := NewHTTPNotifier(srv.URL, logging.Discard())
	n.Notify(context.Background(), EventPaymentConfirmed, map[string]any{"account": "0xabc"})

	select {
	case payload := <-got:
		if payload["event"] != EventPaymentConfirmed {
			t.Fatalf("event: %v", payload["event"])
		}
		if payload["account"] != "0xabc" {
			t.Fatalf("account: %v", payload["account"])
		}
		if _, ok := payload["timestamp"]; !ok {
			t.Fatal("timestamp missing")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook never delivered")
	}
}

func TestNotifySwallowsDeliveryFailure(t *testing.T) {
	n := NewHTTPNotifier("http://127.0.0.1:1", logging.Discard())
	// must not panic or block
	n.Notify(context.Background(), EventReset, nil)
}

func TestNotifyDisabledWhenNoURL(t *testing.T) {
	n := NewHTTPNotifier("", logging.Discard())
	n.Notify(context.Background(), EventReset, nil)
}
