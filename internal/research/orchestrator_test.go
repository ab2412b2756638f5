package research

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"reelflow/internal/analysis"
	_ "reelflow/internal/logging"
	"reelflow/internal/services"
	"reelflow/internal/sources"
	"reelflow/internal/store"
	"reelflow/internal/testsupport"
)

type stubCollector struct {
	mu      sync.Mutex
	source  store.Source
	errs    []error
	calls   int
	release chan struct{}
}

func (c *stubCollector) Source() store.Source {
	return c.source
}

func (c *stubCollector) Collect(ctx context.Context, query string, maxItems int) (*sources.RawDataset, error) {
	if c.release != nil {
		select {
		case <-c.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &sources.RawDataset{
		Source: c.source,
		Query:  query,
		Items: []sources.RawItem{
			{Title: "observability rollout postmortem", Body: "three findings from the rollout", Score: 42},
			{Title: "tracing on a budget", Body: "sampling strategies that held up", Score: 17},
		},
		CollectedAt: time.Now().UTC(),
	}, nil
}

func (c *stubCollector) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type stubAnalyzer struct {
	mu    sync.Mutex
	errs  []error
	calls int
	last  *sources.RawDataset
}

func (a *stubAnalyzer) Analyze(ctx context.Context, dataset *sources.RawDataset, depth string) (*analysis.AnalysisResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.last = dataset
	if len(a.errs) > 0 {
		err := a.errs[0]
		a.errs = a.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &analysis.AnalysisResult{
		Insights:        []string{"developers want cheaper tracing", "postmortems drive tool adoption"},
		Opportunities:   []string{"short explainer on sampling"},
		Recommendations: []string{"lead with the cost angle"},
		Summary:         "observability cost pressure dominates the conversation",
	}, nil
}

func (a *stubAnalyzer) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestOrchestrator(t *testing.T, collector *stubCollector, analyzer *stubAnalyzer, opts ...Option) (*Orchestrator, *store.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	registry := sources.NewRegistry(collector)
	base := []Option{
		WithSleeper(noSleep),
		WithRetryPolicy(3, time.Millisecond, 4*time.Millisecond),
	}
	orch := NewOrchestrator(cfg, st, registry, analyzer, nil, slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})), append(base, opts...)...)
	return orch, st
}

func TestStartJobCollectsAnalyzesAndRecordsResult(t *testing.T) {
	collector := &stubCollector{source: store.SourceReddit}
	analyzer := &stubAnalyzer{}
	orch, st := newTestOrchestrator(t, collector, analyzer)

	ctx := context.Background()
	jobID, err := orch.StartJob(ctx, store.SourceReddit, "observability", StartOptions{})
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}
	orch.Wait()

	job, err := st.GetResearchJob(ctx, jobID)
	if err != nil {
		t.Fatalf("GetResearchJob: %v", err)
	}
	if job.Phase != store.PhaseAnalyzed {
		t.Fatalf("phase = %q, want %q (error: %q)", job.Phase, store.PhaseAnalyzed, job.ErrorMessage)
	}
	if job.AnalyzedData == "" {
		t.Fatal("analyzed job has empty analyzed data")
	}
	if job.RawData == "" {
		t.Fatal("raw data was not persisted before analysis")
	}
	var result analysis.AnalysisResult
	if err := json.Unmarshal([]byte(job.AnalyzedData), &result); err != nil {
		t.Fatalf("decode analyzed data: %v", err)
	}
	if len(result.Insights) != 2 {
		t.Fatalf("insights = %d, want 2", len(result.Insights))
	}
}

func TestStartJobReturnsExistingIDWhileInFlight(t *testing.T) {
	collector := &stubCollector{source: store.SourceReddit, release: make(chan struct{})}
	analyzer := &stubAnalyzer{}
	orch, _ := newTestOrchestrator(t, collector, analyzer)

	ctx := context.Background()
	first, err := orch.StartJob(ctx, store.SourceReddit, "observability", StartOptions{})
	if err != nil {
		t.Fatalf("first StartJob: %v", err)
	}
	second, err := orch.StartJob(ctx, store.SourceReddit, "observability", StartOptions{})
	if err != nil {
		t.Fatalf("second StartJob: %v", err)
	}
	if first != second {
		t.Fatalf("duplicate start created a new job: %q vs %q", first, second)
	}

	close(collector.release)
	orch.Wait()
	if got := collector.callCount(); got != 1 {
		t.Fatalf("collector called %d times, want 1", got)
	}

	// After the first job finishes, the same key starts a fresh job.
	third, err := orch.StartJob(ctx, store.SourceReddit, "observability", StartOptions{})
	if err != nil {
		t.Fatalf("third StartJob: %v", err)
	}
	if third == first {
		t.Fatal("completed job id was reused for a new start")
	}
	orch.Wait()
}

func TestStartJobReturnsLeftoverJobFromPreviousRun(t *testing.T) {
	collector := &stubCollector{source: store.SourceReddit}
	analyzer := &stubAnalyzer{}
	orch, st := newTestOrchestrator(t, collector, analyzer)
	ctx := context.Background()

	// A raw-phase row with no registry entry, as left behind by a daemon
	// that died before reconcile could relaunch it.
	leftover, err := st.NewResearchJob(ctx, store.SourceReddit, "observability", "standard", "", "")
	if err != nil {
		t.Fatalf("NewResearchJob: %v", err)
	}

	jobID, err := orch.StartJob(ctx, store.SourceReddit, "observability", StartOptions{})
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}
	if jobID != leftover.ID {
		t.Fatalf("StartJob created %q, want leftover %q", jobID, leftover.ID)
	}

	jobs, err := st.ListResearchJobs(ctx)
	if err != nil {
		t.Fatalf("ListResearchJobs: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("job count = %d, want 1", len(jobs))
	}
	if got := collector.callCount(); got != 0 {
		t.Fatalf("collector called %d times for a suppressed start", got)
	}

	// A different query is unaffected by the leftover row.
	other, err := orch.StartJob(ctx, store.SourceReddit, "another topic", StartOptions{})
	if err != nil {
		t.Fatalf("StartJob other: %v", err)
	}
	if other == leftover.ID {
		t.Fatal("distinct query returned the leftover job")
	}
	orch.Wait()
}

func TestStartJobRejectsEmptyQueryAndUnknownSource(t *testing.T) {
	collector := &stubCollector{source: store.SourceReddit}
	orch, _ := newTestOrchestrator(t, collector, &stubAnalyzer{})

	ctx := context.Background()
	if _, err := orch.StartJob(ctx, store.SourceReddit, "   ", StartOptions{}); err == nil {
		t.Fatal("expected error for blank query")
	} else if services.IsRetryable(err) {
		t.Fatalf("blank query error should be permanent: %v", err)
	}
	if _, err := orch.StartJob(ctx, store.SourceTrends, "observability", StartOptions{}); err == nil {
		t.Fatal("expected error for unregistered source")
	}
}

func TestTransientCollectFailureIsRetried(t *testing.T) {
	collector := &stubCollector{
		source: store.SourceHackerNews,
		errs: []error{
			services.Wrap(services.ErrTransient, "sources", "collect", "status 503", nil),
			nil,
		},
	}
	analyzer := &stubAnalyzer{}
	orch, st := newTestOrchestrator(t, collector, analyzer)

	ctx := context.Background()
	jobID, err := orch.StartJob(ctx, store.SourceHackerNews, "ml infra", StartOptions{})
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}
	orch.Wait()

	if got := collector.callCount(); got != 2 {
		t.Fatalf("collector called %d times, want 2", got)
	}
	job, err := st.GetResearchJob(ctx, jobID)
	if err != nil {
		t.Fatalf("GetResearchJob: %v", err)
	}
	if job.Phase != store.PhaseAnalyzed {
		t.Fatalf("phase = %q, want analyzed (error: %q)", job.Phase, job.ErrorMessage)
	}
}

func TestPermanentCollectFailureFailsWithoutRetry(t *testing.T) {
	collector := &stubCollector{
		source: store.SourceGitHub,
		errs: []error{
			services.Wrap(services.ErrPermanent, "sources", "collect", "status 401", nil),
		},
	}
	orch, st := newTestOrchestrator(t, collector, &stubAnalyzer{})

	ctx := context.Background()
	jobID, err := orch.StartJob(ctx, store.SourceGitHub, "rust web frameworks", StartOptions{})
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}
	orch.Wait()

	if got := collector.callCount(); got != 1 {
		t.Fatalf("collector called %d times, want 1 for a permanent failure", got)
	}
	job, err := st.GetResearchJob(ctx, jobID)
	if err != nil {
		t.Fatalf("GetResearchJob: %v", err)
	}
	if job.Phase != store.PhaseFailed {
		t.Fatalf("phase = %q, want failed", job.Phase)
	}
	if !strings.Contains(job.ErrorMessage, "collection failed") {
		t.Fatalf("error message %q missing collection context", job.ErrorMessage)
	}
	if job.AnalyzedData != "" {
		t.Fatal("failed job must not carry analyzed data")
	}
}

func TestAnalysisRetriesExhaustedFailsJob(t *testing.T) {
	transient := services.Wrap(services.ErrTransient, "analysis", "complete", "status 429", nil)
	collector := &stubCollector{source: store.SourceReddit}
	analyzer := &stubAnalyzer{errs: []error{transient, transient, transient}}
	orch, st := newTestOrchestrator(t, collector, analyzer)

	ctx := context.Background()
	jobID, err := orch.StartJob(ctx, store.SourceReddit, "kubernetes costs", StartOptions{})
	if err != nil {
		t.Fatalf("StartJob: %v", err)
	}
	orch.Wait()

	if got := analyzer.callCount(); got != 3 {
		t.Fatalf("analyzer called %d times, want 3", got)
	}
	job, err := st.GetResearchJob(ctx, jobID)
	if err != nil {
		t.Fatalf("GetResearchJob: %v", err)
	}
	if job.Phase != store.PhaseFailed {
		t.Fatalf("phase = %q, want failed", job.Phase)
	}
	if !strings.Contains(job.ErrorMessage, "analysis failed") {
		t.Fatalf("error message %q missing analysis context", job.ErrorMessage)
	}
	// Raw data survives the failure so a later run could resume analysis.
	if job.RawData == "" {
		t.Fatal("raw data should be kept on analysis failure")
	}
}

func TestReconcileResumesRestartsAndFailsByAge(t *testing.T) {
	collector := &stubCollector{source: store.SourceReddit}
	analyzer := &stubAnalyzer{}
	orch, st := newTestOrchestrator(t, collector, analyzer, WithStalenessLimit(100*time.Millisecond))

	ctx := context.Background()

	// Raw job with persisted data: analysis resumes without collecting.
	withData, err := st.NewResearchJob(ctx, store.SourceReddit, "resume me", "standard", "ws-1", "user-1")
	if err != nil {
		t.Fatalf("NewResearchJob: %v", err)
	}
	dataset := sources.RawDataset{
		Source:      store.SourceReddit,
		Query:       "resume me",
		Items:       []sources.RawItem{{Title: "persisted item", Body: "left behind by a previous run"}},
		CollectedAt: time.Now().UTC(),
	}
	encoded, err := json.Marshal(dataset)
	if err != nil {
		t.Fatalf("marshal dataset: %v", err)
	}
	if err := st.SetResearchRawData(ctx, withData.ID, string(encoded)); err != nil {
		t.Fatalf("SetResearchRawData: %v", err)
	}

	// Raw job without data that ages past the staleness limit.
	stale, err := st.NewResearchJob(ctx, store.SourceReddit, "stale query", "standard", "ws-1", "user-1")
	if err != nil {
		t.Fatalf("NewResearchJob: %v", err)
	}
	time.Sleep(150 * time.Millisecond)

	// Raw job without data created just now: collection restarts.
	fresh, err := st.NewResearchJob(ctx, store.SourceReddit, "fresh query", "standard", "ws-1", "user-1")
	if err != nil {
		t.Fatalf("NewResearchJob: %v", err)
	}

	if err := orch.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	orch.Wait()

	resumed, err := st.GetResearchJob(ctx, withData.ID)
	if err != nil {
		t.Fatalf("GetResearchJob: %v", err)
	}
	if resumed.Phase != store.PhaseAnalyzed {
		t.Fatalf("resumed job phase = %q, want analyzed (error: %q)", resumed.Phase, resumed.ErrorMessage)
	}

	abandoned, err := st.GetResearchJob(ctx, stale.ID)
	if err != nil {
		t.Fatalf("GetResearchJob: %v", err)
	}
	if abandoned.Phase != store.PhaseFailed {
		t.Fatalf("stale job phase = %q, want failed", abandoned.Phase)
	}
	if !strings.Contains(abandoned.ErrorMessage, "abandoned") {
		t.Fatalf("stale job error %q missing abandonment reason", abandoned.ErrorMessage)
	}

	restarted, err := st.GetResearchJob(ctx, fresh.ID)
	if err != nil {
		t.Fatalf("GetResearchJob: %v", err)
	}
	if restarted.Phase != store.PhaseAnalyzed {
		t.Fatalf("fresh job phase = %q, want analyzed (error: %q)", restarted.Phase, restarted.ErrorMessage)
	}

	// Only the job without persisted data should have hit the collector.
	if got := collector.callCount(); got != 1 {
		t.Fatalf("collector called %d times, want 1", got)
	}
	if analyzer.last == nil {
		t.Fatal("analyzer never ran")
	}
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	var delays []time.Duration
	collector := &stubCollector{
		source: store.SourceReddit,
		errs: []error{
			errors.New("flaky"),
			errors.New("flaky"),
			errors.New("flaky"),
			nil,
		},
	}
	orch, _ := newTestOrchestrator(t, collector, &stubAnalyzer{},
		WithRetryPolicy(4, 2*time.Millisecond, 5*time.Millisecond),
		WithSleeper(func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		}),
	)

	if _, err := orch.StartJob(context.Background(), store.SourceReddit, "backoff", StartOptions{}); err != nil {
		t.Fatalf("StartJob: %v", err)
	}
	orch.Wait()

	want := []time.Duration{2 * time.Millisecond, 4 * time.Millisecond, 5 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delay[%d] = %v, want %v", i, delays[i], want[i])
		}
	}
}
