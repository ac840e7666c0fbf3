package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"quire/internal/config"
	"quire/internal/textutil"
)

const (
	userAgent      = "quire/0.1"
	shownFailures  = 3
	defaultTimeout = 10 * time.Second
)

// Service defines the notification surface exposed to the daemon.
type Service interface {
	NotifyRunCompleted(ctx context.Context, projectID, title string, words int, elapsed time.Duration) error
	NotifyRunFailed(ctx context.Context, projectID string, errs []string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := defaultTimeout
	if cfg.Notifications.RequestTimeout > 0 {
		timeout = time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

// message is one ntfy publish: the body is plain text, the rest travels in
// headers.
type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

func (m message) headers() http.Header {
	h := http.Header{}
	h.Set("User-Agent", userAgent)
	h.Set("Content-Type", "text/plain; charset=utf-8")
	if m.title != "" {
		h.Set("Title", m.title)
	}
	if len(m.tags) > 0 {
		h.Set("Tags", strings.Join(m.tags, ","))
	}
	if m.priority != "" {
		h.Set("Priority", m.priority)
	}
	return h
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, projectID, title string, words int, elapsed time.Duration) error {
	title = strings.TrimSpace(title)
	if title == "" {
		title = projectID
	}
	body := fmt.Sprintf("📖 %s is complete", title)
	if words > 0 {
		body += fmt.Sprintf(" (%d words)", words)
	}
	if elapsed > 0 {
		body += fmt.Sprintf("\nElapsed: %s", elapsed.Round(time.Second))
	}
	return n.send(ctx, message{
		title: "quire - Manuscript Ready",
		body:  body,
		tags:  []string{"quire", "complete"},
	})
}

func (n *ntfyService) NotifyRunFailed(ctx context.Context, projectID string, errs []string) error {
	lines := []string{fmt.Sprintf("❌ %s failed", strings.TrimSpace(projectID))}
	// Only the most recent failures; the full list stays in the status record.
	for _, e := range errs[max(len(errs)-shownFailures, 0):] {
		lines = append(lines, "- "+textutil.Truncate(e, 200))
	}
	return n.send(ctx, message{
		title:    "quire - Run Failed",
		body:     strings.Join(lines, "\n"),
		tags:     []string{"quire", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, message{
		title:    "quire - Test",
		body:     "🧪 Notification system test",
		tags:     []string{"quire", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header = msg.headers()
	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

type noopService struct{}

func (noopService) NotifyRunCompleted(context.Context, string, string, int, time.Duration) error {
	return nil
}
func (noopService) NotifyRunFailed(context.Context, string, []string) error { return nil }
func (noopService) TestNotification(context.Context) error                  { return nil }
