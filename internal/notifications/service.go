package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reelflow/internal/config"
	"reelflow/internal/store"
)

const userAgent = "Reelflow-Go/0.1.0"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyResearchAnalyzed(ctx context.Context, source store.Source, query string, insightCount int) error
	NotifyResearchFailed(ctx context.Context, source store.Source, query, reason string) error
	NotifyVideoCompleted(ctx context.Context, title, assetURL string) error
	NotifyVideoFailed(ctx context.Context, title string, status store.VideoStatus, reason string) error
	NotifyCampaignRun(ctx context.Context, query string, submitted, skipped int) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
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
		research: cfg.Notifications.Research,
		video:    cfg.Notifications.Video,
		campaign: cfg.Notifications.Campaign,
		errors:   cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	research bool
	video    bool
	campaign bool
	errors   bool
}

func (n *ntfyService) NotifyResearchAnalyzed(ctx context.Context, source store.Source, query string, insightCount int) error {
	if !n.research {
		return nil
	}
	data := payload{
		title:   "Reelflow - Research Ready",
		message: fmt.Sprintf("Analyzed %s research for %q: %d insights", source, strings.TrimSpace(query), insightCount),
		tags:    []string{"reelflow", "research", "analyzed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyResearchFailed(ctx context.Context, source store.Source, query, reason string) error {
	if !n.research {
		return nil
	}
	data := payload{
		title:   "Reelflow - Research Failed",
		message: fmt.Sprintf("Research on %s for %q failed: %s", source, strings.TrimSpace(query), strings.TrimSpace(reason)),
		tags:    []string{"reelflow", "research", "failed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyVideoCompleted(ctx context.Context, title, assetURL string) error {
	if !n.video {
		return nil
	}
	message := fmt.Sprintf("Video ready: %s", strings.TrimSpace(title))
	if assetURL = strings.TrimSpace(assetURL); assetURL != "" {
		message = fmt.Sprintf("%s\n%s", message, assetURL)
	}
	data := payload{
		title:    "Reelflow - Video Complete",
		message:  message,
		tags:     []string{"reelflow", "video", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyVideoFailed(ctx context.Context, title string, status store.VideoStatus, reason string) error {
	if !n.video {
		return nil
	}
	data := payload{
		title:   "Reelflow - Video Failed",
		message: fmt.Sprintf("Video %q ended %s: %s", strings.TrimSpace(title), status, strings.TrimSpace(reason)),
		tags:    []string{"reelflow", "video", "failed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyCampaignRun(ctx context.Context, query string, submitted, skipped int) error {
	if !n.campaign {
		return nil
	}
	message := fmt.Sprintf("Campaign %q run: %d videos submitted", strings.TrimSpace(query), submitted)
	if skipped > 0 {
		message = fmt.Sprintf("%s, %d items skipped", message, skipped)
	}
	data := payload{
		title:   "Reelflow - Campaign Run",
		message: message,
		tags:    []string{"reelflow", "campaign", "run"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Reelflow - Error",
		message:  builder.String(),
		tags:     []string{"reelflow", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Reelflow - Test",
		message:  "Notification system test",
		tags:     []string{"reelflow", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
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

func (noopService) NotifyResearchAnalyzed(context.Context, store.Source, string, int) error { return nil }
func (noopService) NotifyResearchFailed(context.Context, store.Source, string, string) error {
	return nil
}
func (noopService) NotifyVideoCompleted(context.Context, string, string) error { return nil }
func (noopService) NotifyVideoFailed(context.Context, string, store.VideoStatus, string) error {
	return nil
}
func (noopService) NotifyCampaignRun(context.Context, string, int, int) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error          { return nil }
func (noopService) TestNotification(context.Context) error                    { return nil }

// Noop returns the no-op service for tests and disabled configurations.
func Noop() Service {
	return noopService{}
}
