package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"reelflow/internal/analysis"
	"reelflow/internal/config"
	"reelflow/internal/logging"
	"reelflow/internal/render"
	"reelflow/internal/research"
	"reelflow/internal/services"
	"reelflow/internal/sources"
	"reelflow/internal/store"
	"reelflow/internal/testsupport"
)

type stubCollector struct {
	source store.Source
}

func (c *stubCollector) Source() store.Source { return c.source }

func (c *stubCollector) Collect(ctx context.Context, query string, maxItems int) (*sources.RawDataset, error) {
	return &sources.RawDataset{
		Source:      c.source,
		Query:       query,
		Items:       []sources.RawItem{{Title: "a sufficiently interesting discovery", Body: "with enough body text to analyze"}},
		CollectedAt: time.Now().UTC(),
	}, nil
}

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(ctx context.Context, dataset *sources.RawDataset, depth string) (*analysis.AnalysisResult, error) {
	return &analysis.AnalysisResult{
		Insights: []string{
			"The conversation keeps circling back to pricing surprises at renewal time across every thread reviewed",
			"Practitioners share migration scripts more readily than vendors publish honest benchmarks",
		},
		Opportunities: []string{"A renewal-season cost checklist would be highly shareable"},
		Summary:       "Renewal pricing dominates recent community discussion.",
	}, nil
}

type stubRenderProvider struct {
	mu        sync.Mutex
	submitted int
	gate      chan struct{}
}

func (p *stubRenderProvider) SubmitRender(ctx context.Context, req render.RenderRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submitted++
	return fmt.Sprintf("prov-%d", p.submitted), nil
}

func (p *stubRenderProvider) GetStatus(ctx context.Context, providerJobID string) (render.JobStatus, error) {
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return render.JobStatus{}, ctx.Err()
		}
	}
	return render.JobStatus{Status: store.VideoCompleted, AssetURL: "https://cdn.example/" + providerJobID + ".mp4"}, nil
}

func fastOptions() []Option {
	return []Option{
		WithResearchOptions(
			research.WithSleeper(func(context.Context, time.Duration) error { return nil }),
			research.WithRetryPolicy(2, time.Millisecond, 2*time.Millisecond),
		),
		WithRenderOptions(
			render.WithPollInterval(time.Millisecond),
			render.WithPollBudget(100*time.Millisecond),
			render.WithSleeper(func(context.Context, time.Duration) error { return nil }),
		),
	}
}

func newTestDaemon(t *testing.T, cfg *config.Config, provider render.Provider, opts ...Option) *Daemon {
	t.Helper()
	if cfg == nil {
		cfg = testsupport.NewConfig(t)
	}
	st := testsupport.MustOpenStore(t, cfg)
	registry := sources.NewRegistry(&stubCollector{source: store.SourceReddit})
	if provider == nil {
		provider = &stubRenderProvider{}
	}
	base := append(fastOptions(),
		WithRegistry(registry),
		WithAnalyzer(stubAnalyzer{}),
		WithRenderProvider(provider),
	)
	d, err := New(cfg, st, logging.NewNop(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, what string, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDaemonSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := newTestDaemon(t, cfg, nil)
	second := newTestDaemon(t, cfg, nil)

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer first.Stop()

	if err := second.Start(ctx); err == nil {
		second.Stop()
		t.Fatal("second instance acquired the lock")
	}

	first.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("restart after release: %v", err)
	}
	second.Stop()
}

func TestStartResearchJobRunsToAnalyzed(t *testing.T) {
	d := newTestDaemon(t, nil, nil)
	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	jobID, err := d.StartResearchJob(ctx, "reddit", "observability", "standard", 10)
	if err != nil {
		t.Fatalf("StartResearchJob: %v", err)
	}

	waitFor(t, "research job to finish", func() bool {
		job, err := d.GetResearchJob(ctx, jobID)
		return err == nil && job.Phase.IsTerminal()
	})
	job, err := d.GetResearchJob(ctx, jobID)
	if err != nil {
		t.Fatalf("GetResearchJob: %v", err)
	}
	if job.Phase != store.PhaseAnalyzed {
		t.Fatalf("phase = %q (error: %q)", job.Phase, job.ErrorMessage)
	}
}

func TestStartResearchJobRejectsUnknownSource(t *testing.T) {
	d := newTestDaemon(t, nil, nil)
	if _, err := d.StartResearchJob(context.Background(), "myspace", "anything", "", 0); err == nil {
		t.Fatal("expected error for unknown source")
	}
}

func TestCreateVideoFromResearchJob(t *testing.T) {
	d := newTestDaemon(t, nil, nil)
	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	jobID, err := d.StartResearchJob(ctx, "reddit", "observability", "", 0)
	if err != nil {
		t.Fatalf("StartResearchJob: %v", err)
	}
	waitFor(t, "analysis to finish", func() bool {
		job, err := d.GetResearchJob(ctx, jobID)
		return err == nil && job.Phase == store.PhaseAnalyzed
	})

	videoID, err := d.CreateVideoFromResearchJob(ctx, jobID, "presenter-1", "portrait")
	if err != nil {
		t.Fatalf("CreateVideoFromResearchJob: %v", err)
	}
	waitFor(t, "render to finish", func() bool {
		video, err := d.GetVideo(ctx, videoID)
		return err == nil && video.Status.IsTerminal()
	})

	video, err := d.GetVideo(ctx, videoID)
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if video.Status != store.VideoCompleted {
		t.Fatalf("status = %q (reason: %q)", video.Status, video.ErrorReason)
	}
	if video.ResearchJobID != jobID {
		t.Fatalf("video not linked to research job: %q", video.ResearchJobID)
	}
}

func TestCreateVideoFromUnanalyzedJobConflicts(t *testing.T) {
	d := newTestDaemon(t, nil, nil)
	ctx := context.Background()

	job, err := d.store.NewResearchJob(ctx, store.SourceReddit, "pending", "standard", "", "")
	if err != nil {
		t.Fatalf("NewResearchJob: %v", err)
	}
	_, err = d.CreateVideoFromResearchJob(ctx, job.ID, "presenter-1", "portrait")
	if !errors.Is(err, services.ErrStateConflict) {
		t.Fatalf("err = %v, want state conflict", err)
	}
}

func TestCreateVideoFromScriptUsesRenderDefaults(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Render.DefaultAvatarProfile = "house-presenter"
	d := newTestDaemon(t, cfg, nil)
	ctx := context.Background()

	videoID, err := d.CreateVideoFromScript(ctx, "Manual Script", strings.Repeat("A full sentence of narration. ", 10), "", "")
	if err != nil {
		t.Fatalf("CreateVideoFromScript: %v", err)
	}
	video, err := d.GetVideo(ctx, videoID)
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if video.AvatarProfileID != "house-presenter" {
		t.Fatalf("profile = %q, want config default", video.AvatarProfileID)
	}
	if video.AspectRatio != store.AspectPortrait {
		t.Fatalf("aspect = %q, want config default", video.AspectRatio)
	}
	d.generator.Wait()
}

func TestPublishWithoutConfigurationFails(t *testing.T) {
	d := newTestDaemon(t, nil, nil)
	_, err := d.PublishContent(context.Background(), "some content", []string{"twitter"})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("err = %v, want configuration error", err)
	}
}

func TestCreateCampaignValidatesFrequency(t *testing.T) {
	d := newTestDaemon(t, nil, nil)
	ctx := context.Background()

	_, err := d.CreateCampaign(ctx, store.CampaignSpec{
		Source:          store.SourceReddit,
		Query:           "topic",
		AvatarProfileID: "presenter-1",
		AspectRatio:     store.AspectPortrait,
		Frequency:       "fortnightly",
	})
	if err == nil {
		t.Fatal("expected error for unknown frequency")
	}

	created, err := d.CreateCampaign(ctx, store.CampaignSpec{
		Source:          store.SourceReddit,
		Query:           "topic",
		AvatarProfileID: "presenter-1",
		AspectRatio:     store.AspectPortrait,
		Frequency:       store.FrequencyWeekly,
	})
	if err != nil {
		t.Fatalf("CreateCampaign: %v", err)
	}
	if !created.Active {
		t.Fatal("new campaign should be active")
	}
}

func TestStatusReportsHealthCounts(t *testing.T) {
	d := newTestDaemon(t, nil, nil)
	ctx := context.Background()

	job, err := d.store.NewResearchJob(ctx, store.SourceReddit, "counts", "standard", "", "")
	if err != nil {
		t.Fatalf("NewResearchJob: %v", err)
	}
	payload, _ := json.Marshal(analysis.AnalysisResult{Insights: []string{"one"}})
	if err := d.store.MarkResearchAnalyzed(ctx, job.ID, string(payload)); err != nil {
		t.Fatalf("MarkResearchAnalyzed: %v", err)
	}

	status := d.Status(ctx)
	if status.Running {
		t.Fatal("daemon reported running before Start")
	}
	if status.Health.ResearchAnalyzed != 1 {
		t.Fatalf("analyzed count = %d, want 1", status.Health.ResearchAnalyzed)
	}
	if status.DBPath == "" || status.LockFilePath == "" {
		t.Fatal("status missing paths")
	}
}

type denyProfileAccess struct {
	mu   sync.Mutex
	asks []string
}

func (a *denyProfileAccess) IsPermitted(ctx context.Context, userTier, avatarProfileID string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.asks = append(a.asks, userTier+"/"+avatarProfileID)
	return false, nil
}

func TestWithProfileAccessGatesVideoCreation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Identity.UserTier = "free"
	access := &denyProfileAccess{}
	d := newTestDaemon(t, cfg, nil, WithProfileAccess(access))

	_, err := d.CreateVideoFromScript(context.Background(), "Gated", strings.Repeat("A full sentence of narration. ", 10), "premium-presenter", "portrait")
	if err == nil {
		t.Fatal("expected entitlement rejection")
	}

	access.mu.Lock()
	asks := append([]string(nil), access.asks...)
	access.mu.Unlock()
	if len(asks) != 1 || asks[0] != "free/premium-presenter" {
		t.Fatalf("entitlement checks = %v, want one for free/premium-presenter", asks)
	}
}

type healthProbeAnalyzer struct {
	stubAnalyzer
	mu     sync.Mutex
	checks int
	err    error
}

func (a *healthProbeAnalyzer) HealthCheck(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checks++
	return a.err
}

func (a *healthProbeAnalyzer) healthChecks() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.checks
}

func TestStartProbesAnalyzerHealth(t *testing.T) {
	analyzer := &healthProbeAnalyzer{}
	d := newTestDaemon(t, nil, nil, WithAnalyzer(analyzer))
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	waitFor(t, "analyzer health probe", func() bool { return analyzer.healthChecks() == 1 })
}

func TestStartSurvivesUnhealthyAnalyzer(t *testing.T) {
	analyzer := &healthProbeAnalyzer{err: errors.New("invalid api key")}
	d := newTestDaemon(t, nil, nil, WithAnalyzer(analyzer))
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "analyzer health probe", func() bool { return analyzer.healthChecks() == 1 })
	d.Stop()
}
