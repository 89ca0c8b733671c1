package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"leaflens/internal/config"
)

const userAgent = "LeafLens/0.1.0"

// Event identifies a notification type.
type Event string

const (
	EventScanMatched   Event = "scan_matched"
	EventScanUnmatched Event = "scan_unmatched"
	EventScanFailed    Event = "scan_failed"
	EventTest          Event = "test"
)

// Payload carries event fields. Keys used: scanId, name, confidence, stage,
// error, suggestions.
type Payload map[string]any

// Service publishes scan events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventScanMatched:   cfg.Notifications.Matched,
			EventScanUnmatched: cfg.Notifications.Unmatched,
			EventScanFailed:    cfg.Notifications.Errors,
			EventTest:          true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	scanID := field(payload, "scanId")
	switch event {
	case EventScanMatched:
		name := field(payload, "name")
		if name == "" {
			name = "unknown entry"
		}
		body := fmt.Sprintf("🌿 Matched: %s", name)
		if confidence := field(payload, "confidence"); confidence != "" {
			body += fmt.Sprintf(" (%s%%)", confidence)
		}
		return message{
			title: "LeafLens - Matched",
			body:  body + "\nScan: " + scanID,
			tags:  []string{"leaflens", "scan", "matched"},
		}, true
	case EventScanUnmatched:
		body := "No confident match for scan " + scanID
		if suggestions := field(payload, "suggestions"); suggestions != "" {
			body += "\nSuggestions: " + suggestions
		}
		return message{
			title: "LeafLens - Unmatched",
			body:  body,
			tags:  []string{"leaflens", "scan", "review"},
		}, true
	case EventScanFailed:
		var b strings.Builder
		b.WriteString("❌ Scan ")
		b.WriteString(scanID)
		b.WriteString(" failed")
		if stage := field(payload, "stage"); stage != "" {
			b.WriteString(" while ")
			b.WriteString(stage)
		}
		b.WriteString(": ")
		if errText := field(payload, "error"); errText != "" {
			b.WriteString(errText)
		} else {
			b.WriteString("unknown")
		}
		return message{
			title:    "LeafLens - Error",
			body:     b.String(),
			tags:     []string{"leaflens", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "LeafLens - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"leaflens", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func field(payload Payload, key string) string {
	value, ok := payload[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case []string:
		return strings.Join(v, ", ")
	default:
		return fmt.Sprint(v)
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
