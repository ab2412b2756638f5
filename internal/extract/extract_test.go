package extract

import (
	"errors"
	"strings"
	"testing"

	"reelflow/internal/analysis"
	"reelflow/internal/services"
	"reelflow/internal/store"
)

func ruleWithBounds(min, max int) Rule {
	return Rule{
		Source:           store.SourceReddit,
		ContentPaths:     []string{"insights", "opportunities", "summary"},
		TitleTemplate:    "{topic} Report",
		BodyTemplate:     "Intro about {topic}. {content}",
		MinContentLength: min,
		MaxContentLength: max,
	}
}

func TestExtractNumbersAndTemplates(t *testing.T) {
	input := Input{
		Analysis: &analysis.AnalysisResult{
			Insights:      []string{"Tool X grew 300% in a month", "Developers complain about pricing"},
			Opportunities: []string{"A comparison video would land well"},
			Summary:       "The niche is heating up fast and the usual incumbents look slow to respond this quarter.",
		},
		Topic:  "ai tools",
		Source: store.SourceReddit,
	}
	draft, err := Extract(input, ruleWithBounds(50, 1800))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if draft.Title != "Ai Tools Report" {
		t.Fatalf("title = %q", draft.Title)
	}
	if !strings.HasPrefix(draft.Body, "Intro about Ai Tools. 1. Tool X grew 300% in a month. 2. Developers complain about pricing.") {
		t.Fatalf("body = %q", draft.Body)
	}
	if !strings.Contains(draft.Body, "3. A comparison video would land well.") {
		t.Fatalf("opportunities missing from body: %q", draft.Body)
	}
	if !strings.Contains(draft.Body, "4. The niche is heating up fast") {
		t.Fatalf("summary missing from body: %q", draft.Body)
	}
}

func TestExtractSkipsMissingPaths(t *testing.T) {
	input := Input{
		Analysis: &analysis.AnalysisResult{
			Insights: []string{strings.Repeat("Solid insight with enough length to clear the bar. ", 3)},
		},
		Topic:  "quiet topic",
		Source: store.SourceTrends,
	}
	rule := ruleWithBounds(50, 1800)
	rule.ContentPaths = []string{"nonexistent.deep.path", "insights"}
	draft, err := Extract(input, rule)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.Contains(draft.Body, "1. Solid insight") {
		t.Fatalf("body = %q", draft.Body)
	}
}

func TestExtractInsufficientContent(t *testing.T) {
	input := Input{
		Analysis: &analysis.AnalysisResult{Insights: []string{"too short"}},
		Topic:    "x",
		Source:   store.SourceReddit,
	}
	_, err := Extract(input, ruleWithBounds(150, 1800))
	if err == nil {
		t.Fatal("expected insufficient content error")
	}
	if !errors.Is(err, services.ErrInsufficientContent) {
		t.Fatalf("error = %v, want insufficient content", err)
	}
	if services.IsRetryable(err) {
		t.Fatal("insufficient content must not be retryable")
	}
}

func TestExtractTruncatesAtSentenceBoundary(t *testing.T) {
	sentence := "This sentence pads the body out to force truncation behavior."
	var insights []string
	for i := 0; i < 40; i++ {
		insights = append(insights, sentence)
	}
	input := Input{
		Analysis: &analysis.AnalysisResult{Insights: insights},
		Topic:    "padding",
		Source:   store.SourceReddit,
	}
	draft, err := Extract(input, ruleWithBounds(150, 1800))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(draft.Body) > 1800 {
		t.Fatalf("body length %d exceeds max", len(draft.Body))
	}
	if !strings.HasSuffix(draft.Body, ".") {
		t.Fatalf("body does not end on a sentence boundary: %q", draft.Body[len(draft.Body)-20:])
	}
	if len(draft.Body) < 150 {
		t.Fatalf("truncation undershot the minimum: %d", len(draft.Body))
	}
}

func TestRegistryDefaultsAndOverrides(t *testing.T) {
	registry := NewRegistry(Rule{
		Source:           store.SourceGitHub,
		ContentPaths:     []string{"summary"},
		MinContentLength: 10,
		MaxContentLength: 500,
	})

	github := registry.Rule(store.SourceGitHub)
	if len(github.ContentPaths) != 1 || github.ContentPaths[0] != "summary" {
		t.Fatalf("override not applied: %+v", github)
	}
	reddit := registry.Rule(store.SourceReddit)
	if reddit.MinContentLength != 150 || reddit.MaxContentLength != 1800 {
		t.Fatalf("default bounds = %d/%d", reddit.MinContentLength, reddit.MaxContentLength)
	}
	unknown := registry.Rule(store.Source("myspace"))
	if unknown.Source != store.Source("myspace") {
		t.Fatalf("fallback rule source = %q", unknown.Source)
	}
}
