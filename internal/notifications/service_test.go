package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"leaflens/internal/config"
	"leaflens/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventScanMatched, notifications.Payload{"scanId": "s1"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "matched",
			event: notifications.EventScanMatched,
			payload: notifications.Payload{
				"scanId":     "scan-1",
				"name":       "Quercus robur",
				"confidence": 92,
			},
			expectTitle:   "LeafLens - Matched",
			expectMessage: "🌿 Matched: Quercus robur (92%)\nScan: scan-1",
			expectTags:    "leaflens,scan,matched",
		},
		{
			name:  "unmatched",
			event: notifications.EventScanUnmatched,
			payload: notifications.Payload{
				"scanId":      "scan-2",
				"suggestions": []string{"Oak", "Maple"},
			},
			expectTitle:   "LeafLens - Unmatched",
			expectMessage: "No confident match for scan scan-2\nSuggestions: Oak, Maple",
			expectTags:    "leaflens,scan,review",
		},
		{
			name:  "failed",
			event: notifications.EventScanFailed,
			payload: notifications.Payload{
				"scanId": "scan-3",
				"stage":  "uploading",
				"error":  "no upload strategy succeeded",
			},
			expectTitle:    "LeafLens - Error",
			expectMessage:  "❌ Scan scan-3 failed while uploading: no upload strategy succeeded",
			expectTags:     "leaflens,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, _ := io.ReadAll(r.Body)
				captured.body = string(body)
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5
			cfg.Notifications.Matched = true
			cfg.Notifications.Unmatched = true
			cfg.Notifications.Errors = true

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceIgnoresDisabledEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call for disabled event: %s", r.Header.Get("Title"))
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Matched = false
	cfg.Notifications.Unmatched = false

	svc := notifications.NewService(&cfg)
	for _, event := range []notifications.Event{notifications.EventScanMatched, notifications.EventScanUnmatched, "unknown"} {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"scanId": "x"}); err != nil {
			t.Fatalf("expected no error for disabled event %s, got %v", event, err)
		}
	}
}

func TestNtfyServiceSurfacesHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic locked", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	if err := notifications.NewService(&cfg).Publish(context.Background(), notifications.EventTest, nil); err == nil {
		t.Fatal("expected error for 403 response")
	}
}
