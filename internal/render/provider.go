package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"reelflow/internal/config"
	"reelflow/internal/services"
	"reelflow/internal/store"
)

// JobStatus is one status observation from the provider.
type JobStatus struct {
	Status   store.VideoStatus
	AssetURL string
	Error    string
}

// RenderRequest carries the payload submitted to the provider.
type RenderRequest struct {
	ScriptTitle     string            `json:"script_title"`
	ScriptContent   string            `json:"script_content"`
	AvatarProfileID string            `json:"avatar_profile_id"`
	AspectRatio     store.AspectRatio `json:"aspect_ratio"`
}

// Provider is the external avatar render service.
type Provider interface {
	SubmitRender(ctx context.Context, req RenderRequest) (providerJobID string, err error)
	GetStatus(ctx context.Context, providerJobID string) (JobStatus, error)
}

// ProfileAccess gates avatar profiles by subscription tier.
type ProfileAccess interface {
	IsPermitted(ctx context.Context, userTier, avatarProfileID string) (bool, error)
}

// OpenTierAccess permits every profile. Used when no entitlement service is
// configured.
type OpenTierAccess struct{}

func (OpenTierAccess) IsPermitted(context.Context, string, string) (bool, error) {
	return true, nil
}

const defaultProviderTimeout = 30 * time.Second

// HTTPProvider talks to a render service exposing POST /v1/renders and
// GET /v1/renders/{id} with bearer auth.
type HTTPProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// ProviderOption customizes the HTTP provider.
type ProviderOption func(*HTTPProvider)

// WithProviderHTTPClient overrides the default HTTP client.
func WithProviderHTTPClient(client *http.Client) ProviderOption {
	return func(p *HTTPProvider) {
		if client != nil {
			p.httpClient = client
		}
	}
}

// NewHTTPProvider builds a provider client from the render settings.
func NewHTTPProvider(cfg config.Render, opts ...ProviderOption) *HTTPProvider {
	timeout := defaultProviderTimeout
	if cfg.RequestTimeout > 0 {
		timeout = time.Duration(cfg.RequestTimeout) * time.Second
	}
	provider := &HTTPProvider{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(provider)
	}
	return provider
}

type submitRenderResponse struct {
	JobID string `json:"job_id"`
}

// SubmitRender submits a script and returns the provider's job identifier.
func (p *HTTPProvider) SubmitRender(ctx context.Context, req RenderRequest) (string, error) {
	var response submitRenderResponse
	if err := p.doJSON(ctx, http.MethodPost, "/v1/renders", req, &response); err != nil {
		return "", err
	}
	if response.JobID == "" {
		return "", services.Wrap(services.ErrPermanent, "render", "submit", "provider returned no job id", nil)
	}
	return response.JobID, nil
}

type renderStatusResponse struct {
	Status   string `json:"status"`
	AssetURL string `json:"asset_url"`
	Error    string `json:"error"`
}

// GetStatus fetches the current state of a render job.
func (p *HTTPProvider) GetStatus(ctx context.Context, providerJobID string) (JobStatus, error) {
	var response renderStatusResponse
	path := "/v1/renders/" + url.PathEscape(providerJobID)
	if err := p.doJSON(ctx, http.MethodGet, path, nil, &response); err != nil {
		return JobStatus{}, err
	}
	status, ok := mapProviderStatus(response.Status)
	if !ok {
		return JobStatus{}, services.Wrap(services.ErrPermanent, "render", "status", fmt.Sprintf("unknown provider status %q", response.Status), nil)
	}
	return JobStatus{Status: status, AssetURL: response.AssetURL, Error: response.Error}, nil
}

func mapProviderStatus(value string) (store.VideoStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "queued", "pending":
		return store.VideoQueued, true
	case "processing", "rendering", "in_progress":
		return store.VideoProcessing, true
	case "completed", "done":
		return store.VideoCompleted, true
	case "failed", "error":
		return store.VideoFailed, true
	default:
		return "", false
	}
}

func (p *HTTPProvider) doJSON(ctx context.Context, method, path string, payload any, target any) error {
	if p.baseURL == "" {
		return services.Wrap(services.ErrConfiguration, "render", "request", "provider base url not configured", nil)
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return services.Wrap(services.ErrPermanent, "render", "request", "encode body", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return services.Wrap(services.ErrPermanent, "render", "request", "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return services.Wrap(services.ErrTransient, "render", "request", "", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return services.Wrap(services.ErrTransient, "render", "request", "read response", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet := strings.TrimSpace(string(raw))
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		detail := fmt.Sprintf("http %d: %s", resp.StatusCode, snippet)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return services.Wrap(services.ErrTransient, "render", "request", detail, nil)
		}
		if resp.StatusCode == http.StatusNotFound {
			return services.Wrap(services.ErrNotFound, "render", "request", detail, nil)
		}
		return services.Wrap(services.ErrPermanent, "render", "request", detail, nil)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return services.Wrap(services.ErrPermanent, "render", "request", "decode response", err)
	}
	return nil
}
