package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"reelflow/internal/services"
	"reelflow/internal/sources"
)

// AnalysisResult is the source-agnostic output of one analysis pass.
type AnalysisResult struct {
	Insights        []string `json:"insights"`
	Opportunities   []string `json:"opportunities"`
	Recommendations []string `json:"recommendations"`
	Summary         string   `json:"summary"`
}

// RelevanceScore weights analysis richness for campaign ranking. More
// insights and opportunities mean more material for a script.
func (r *AnalysisResult) RelevanceScore() int {
	if r == nil {
		return 0
	}
	return len(r.Insights)*10 + len(r.Opportunities)*5
}

// Provider produces structured analysis from raw research data.
type Provider interface {
	Analyze(ctx context.Context, dataset *sources.RawDataset, depth string) (*AnalysisResult, error)
}

const analyzerSystemPrompt = `You are a research analyst for short-form video content.
You receive raw items collected from an online source and extract what matters.
Respond with JSON only, using this exact shape:
{"insights": [..], "opportunities": [..], "recommendations": [..], "summary": ".."}
Each array entry is one plain-English sentence. Do not include markdown.`

var depthInstructions = map[string]string{
	"basic":         "Extract up to 3 insights. Leave opportunities and recommendations empty unless one is obvious. One-sentence summary.",
	"standard":      "Extract up to 5 insights, up to 3 opportunities, and up to 3 recommendations. Two-sentence summary.",
	"comprehensive": "Extract up to 10 insights, up to 5 opportunities, and up to 5 recommendations. Include niche angles and contrarian takes. Summary up to four sentences.",
}

// Analyzer implements Provider on top of the chat completion client.
type Analyzer struct {
	client *Client
}

// NewAnalyzer wraps a completion client.
func NewAnalyzer(client *Client) *Analyzer {
	return &Analyzer{client: client}
}

// HealthCheck verifies the completion endpoint answers with the configured
// key and model.
func (a *Analyzer) HealthCheck(ctx context.Context) error {
	return a.client.HealthCheck(ctx)
}

// Analyze summarizes a raw dataset at the requested depth.
func (a *Analyzer) Analyze(ctx context.Context, dataset *sources.RawDataset, depth string) (*AnalysisResult, error) {
	if dataset == nil || len(dataset.Items) == 0 {
		return nil, services.Wrap(services.ErrPermanent, "analysis", "analyze", "empty dataset", nil)
	}
	instruction, ok := depthInstructions[strings.ToLower(strings.TrimSpace(depth))]
	if !ok {
		instruction = depthInstructions["standard"]
	}

	prompt, err := buildUserPrompt(dataset, instruction)
	if err != nil {
		return nil, err
	}
	content, err := a.client.CompleteJSON(ctx, analyzerSystemPrompt, prompt)
	if err != nil {
		return nil, classifyCompletionError(err)
	}

	var result AnalysisResult
	if err := DecodeModelJSON(content, &result); err != nil {
		return nil, services.Wrap(services.ErrPermanent, "analysis", "analyze", "parse payload", err)
	}
	result.Summary = strings.TrimSpace(result.Summary)
	if len(result.Insights) == 0 && result.Summary == "" {
		return nil, services.Wrap(services.ErrPermanent, "analysis", "analyze", "model produced no insights", nil)
	}
	return &result, nil
}

func buildUserPrompt(dataset *sources.RawDataset, instruction string) (string, error) {
	// Cap what we send: collectors can return sizable bodies and the
	// leading items carry the strongest signal anyway.
	const maxPromptItems = 30
	items := dataset.Items
	if len(items) > maxPromptItems {
		items = items[:maxPromptItems]
	}
	encoded, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("encode dataset: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Source: %s\nQuery: %s\n%s\n\nRaw items:\n", dataset.Source, dataset.Query, instruction)
	b.Write(encoded)
	return b.String(), nil
}

func classifyCompletionError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= http.StatusInternalServerError:
			return services.Wrap(services.ErrTransient, "analysis", "analyze", "", err)
		default:
			return services.Wrap(services.ErrPermanent, "analysis", "analyze", "", err)
		}
	}
	// Exhausted-retry and transport errors stay retryable at the job level.
	return services.Wrap(services.ErrTransient, "analysis", "analyze", "", err)
}
