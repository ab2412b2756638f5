package analysis

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"reelflow/internal/services"
	"reelflow/internal/sources"
	"reelflow/internal/store"
)

func completionBody(content string) string {
	return `{"choices":[{"message":{"content":` + content + `}}]}`
}

func testDataset() *sources.RawDataset {
	return &sources.RawDataset{
		Source: store.SourceReddit,
		Query:  "AI tools",
		Items: []sources.RawItem{
			{Title: "Tool X grew 300%", Score: 512},
			{Title: "Tool Y acquired", Score: 200},
		},
		CollectedAt: time.Now().UTC(),
	}
}

func TestAnalyzeDecodesResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody(`"{\"insights\":[\"X grew 300%\"],\"opportunities\":[\"React to X\"],\"recommendations\":[],\"summary\":\"X is hot.\"}"`)))
	}))
	defer server.Close()

	analyzer := NewAnalyzer(NewClient(Config{APIKey: "key", BaseURL: server.URL, Model: "test-model"}))
	result, err := analyzer.Analyze(context.Background(), testDataset(), "standard")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(result.Insights) != 1 || result.Insights[0] != "X grew 300%" {
		t.Fatalf("insights = %v", result.Insights)
	}
	if result.RelevanceScore() != 15 {
		t.Fatalf("relevance = %d, want 15", result.RelevanceScore())
	}
}

func TestAnalyzeRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody(`"{\"insights\":[\"a\"],\"opportunities\":[],\"recommendations\":[],\"summary\":\"s\"}"`)))
	}))
	defer server.Close()

	var slept time.Duration
	client := NewClient(
		Config{APIKey: "key", BaseURL: server.URL, Model: "m"},
		WithSleeper(func(d time.Duration) { slept += d }),
	)
	result, err := NewAnalyzer(client).Analyze(context.Background(), testDataset(), "basic")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
	if slept != time.Second {
		t.Fatalf("slept = %v, want Retry-After honored", slept)
	}
	if len(result.Insights) != 1 {
		t.Fatalf("insights = %v", result.Insights)
	}
}

func TestAnalyzeAuthFailureIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "bad", BaseURL: server.URL, Model: "m"}, WithSleeper(func(time.Duration) {}))
	_, err := NewAnalyzer(client).Analyze(context.Background(), testDataset(), "standard")
	if err == nil {
		t.Fatal("expected error")
	}
	if services.IsRetryable(err) {
		t.Fatalf("auth failure classified retryable: %v", err)
	}
}

func TestAnalyzeRejectsEmptyDataset(t *testing.T) {
	client := NewClient(Config{APIKey: "key", Model: "m"})
	if _, err := NewAnalyzer(client).Analyze(context.Background(), &sources.RawDataset{}, "standard"); err == nil {
		t.Fatal("expected error for empty dataset")
	}
}

func TestDecodeModelJSONHandlesFences(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"plain", `{"insights":["a"],"summary":"s"}`},
		{"fenced", "```json\n{\"insights\":[\"a\"],\"summary\":\"s\"}\n```"},
		{"prose prefix", `Here you go: {"insights":["a"],"summary":"s"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var result AnalysisResult
			if err := DecodeModelJSON(tt.payload, &result); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(result.Insights) != 1 || result.Summary != "s" {
				t.Fatalf("result = %+v", result)
			}
		})
	}
}

func TestBackoffDelayDoubles(t *testing.T) {
	client := NewClient(Config{APIKey: "k"}, WithRetryBackoff(2*time.Second, 30*time.Second))
	wants := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	for attempt, want := range wants {
		if got := client.backoffDelay(attempt + 1); got != want {
			t.Fatalf("attempt %d delay = %v, want %v", attempt+1, got, want)
		}
	}
}
