package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"reelflow/internal/config"
	"reelflow/internal/logging"
	"reelflow/internal/services"
	"reelflow/internal/store"
)

// Publisher posts one piece of content to one platform.
type Publisher interface {
	Publish(ctx context.Context, platform, content string) (store.PlatformResult, error)
}

const defaultPublishTimeout = 30 * time.Second

// HTTPPublisher posts through a social posting gateway exposing
// POST /v1/posts with bearer auth.
type HTTPPublisher struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPPublisher builds a publisher client from the publish settings.
func NewHTTPPublisher(cfg config.Publish) *HTTPPublisher {
	timeout := defaultPublishTimeout
	if cfg.RequestTimeout > 0 {
		timeout = time.Duration(cfg.RequestTimeout) * time.Second
	}
	return &HTTPPublisher{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type publishRequest struct {
	Platform string `json:"platform"`
	Content  string `json:"content"`
}

type publishResponse struct {
	Status   string `json:"status"`
	PostID   string `json:"post_id"`
	PostURL  string `json:"post_url"`
	ErrorMsg string `json:"error"`
}

// Publish posts content to one platform through the gateway.
func (p *HTTPPublisher) Publish(ctx context.Context, platform, content string) (store.PlatformResult, error) {
	result := store.PlatformResult{Platform: normalizePlatform(platform)}
	if p.baseURL == "" {
		return result, services.Wrap(services.ErrConfiguration, "publish", "publish", "gateway base url not configured", nil)
	}

	encoded, err := json.Marshal(publishRequest{Platform: result.Platform, Content: content})
	if err != nil {
		return result, services.Wrap(services.ErrPermanent, "publish", "publish", "encode body", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/posts", bytes.NewReader(encoded))
	if err != nil {
		return result, services.Wrap(services.ErrPermanent, "publish", "publish", "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return result, err
		}
		return result, services.Wrap(services.ErrTransient, "publish", "publish", "", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return result, services.Wrap(services.ErrTransient, "publish", "publish", "read response", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet := strings.TrimSpace(string(raw))
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		detail := fmt.Sprintf("http %d: %s", resp.StatusCode, snippet)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return result, services.Wrap(services.ErrTransient, "publish", "publish", detail, nil)
		}
		return result, services.Wrap(services.ErrPermanent, "publish", "publish", detail, nil)
	}

	var decoded publishResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return result, services.Wrap(services.ErrPermanent, "publish", "publish", "decode response", err)
	}
	result.Status = decoded.Status
	result.PlatformPostID = decoded.PostID
	result.PostURL = decoded.PostURL
	result.ErrorMessage = decoded.ErrorMsg
	if result.Status == "" {
		result.Status = statusSuccess
	}
	return result, nil
}

// Executor fans a post out to every requested platform, aggregates the
// outcomes, and persists the result.
type Executor struct {
	store     *store.Store
	publisher Publisher
	logger    *slog.Logger
}

// NewExecutor wires the fan-out executor.
func NewExecutor(st *store.Store, publisher Publisher, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Executor{
		store:     st,
		publisher: publisher,
		logger:    logging.NewComponentLogger(logger, "publish"),
	}
}

// PublishAndAggregate posts content to each platform concurrently, reduces
// the outcomes, and stores the aggregate. A platform failure becomes an
// error entry in the result; it never aborts the other platforms.
func (e *Executor) PublishAndAggregate(ctx context.Context, content string, platforms []string) (*store.PublishResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, errors.New("publish: content is empty")
	}
	if len(platforms) == 0 {
		return nil, errors.New("publish: no platforms requested")
	}

	var mu sync.Mutex
	responses := make([]store.PlatformResult, 0, len(platforms))

	group, groupCtx := errgroup.WithContext(ctx)
	for _, platform := range platforms {
		platform := platform
		group.Go(func() error {
			response, err := e.publisher.Publish(groupCtx, platform, content)
			if err != nil {
				e.logger.Warn("platform publish failed",
					logging.String(logging.FieldPlatform, platform),
					logging.Error(err),
				)
				response = store.PlatformResult{
					Platform:     normalizePlatform(platform),
					Status:       statusError,
					ErrorMessage: err.Error(),
				}
			}
			mu.Lock()
			responses = append(responses, response)
			mu.Unlock()
			// Individual failures are recorded, not propagated: one dead
			// platform must not cancel the siblings.
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	overall, results := Aggregate(platforms, responses)
	saved, err := e.store.SavePublishResult(ctx, overall, content, results, nil)
	if err != nil {
		return nil, err
	}
	e.logger.Info("publish aggregated",
		logging.String("overall_status", string(overall)),
		logging.Int("platforms", len(results)),
	)
	return saved, nil
}
