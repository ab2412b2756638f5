package render_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"reelflow/internal/extract"
	"reelflow/internal/render"
	"reelflow/internal/services"
	"reelflow/internal/store"
	"reelflow/internal/testsupport"
)

type stubProvider struct {
	submitCalls atomic.Int32
	submitErrs  []error
	jobID       string

	statusCalls atomic.Int32
	statuses    []render.JobStatus
	statusErr   error
	statusGate  chan struct{}
}

func (p *stubProvider) SubmitRender(ctx context.Context, req render.RenderRequest) (string, error) {
	call := int(p.submitCalls.Add(1)) - 1
	if call < len(p.submitErrs) && p.submitErrs[call] != nil {
		return "", p.submitErrs[call]
	}
	if p.jobID == "" {
		return "prov-1", nil
	}
	return p.jobID, nil
}

func (p *stubProvider) GetStatus(ctx context.Context, providerJobID string) (render.JobStatus, error) {
	if p.statusGate != nil {
		<-p.statusGate
	}
	if p.statusErr != nil {
		return render.JobStatus{}, p.statusErr
	}
	call := int(p.statusCalls.Add(1)) - 1
	if call >= len(p.statuses) {
		call = len(p.statuses) - 1
	}
	if call < 0 {
		return render.JobStatus{Status: store.VideoProcessing}, nil
	}
	return p.statuses[call], nil
}

type deniedAccess struct{}

func (deniedAccess) IsPermitted(context.Context, string, string) (bool, error) {
	return false, nil
}

func fastOpts() []render.GeneratorOption {
	return []render.GeneratorOption{
		render.WithPollInterval(time.Millisecond),
		render.WithPollBudget(20 * time.Millisecond),
		render.WithSleeper(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }),
	}
}

func newGenerator(t *testing.T, provider render.Provider, access render.ProfileAccess, opts ...render.GeneratorOption) (*render.Generator, *store.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	if len(opts) == 0 {
		opts = fastOpts()
	}
	return render.NewGenerator(cfg, st, provider, access, nil, nil, opts...), st
}

func script() extract.ScriptDraft {
	return extract.ScriptDraft{Title: "Trend Check", Body: "1. Something happened."}
}

func TestSubmitDrivesToCompleted(t *testing.T) {
	provider := &stubProvider{
		jobID: "prov-ok",
		statuses: []render.JobStatus{
			{Status: store.VideoProcessing},
			{Status: store.VideoCompleted, AssetURL: "https://cdn.example/v.mp4"},
		},
	}
	gen, st := newGenerator(t, provider, nil)

	videoID, err := gen.Submit(context.Background(), script(), "avatar-1", render.SubmitOptions{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	gen.Wait()

	video, err := st.GetVideoGeneration(context.Background(), videoID)
	if err != nil {
		t.Fatalf("get video: %v", err)
	}
	if video.Status != store.VideoCompleted {
		t.Fatalf("status = %q, want completed", video.Status)
	}
	if video.AssetURL != "https://cdn.example/v.mp4" {
		t.Fatalf("asset url = %q", video.AssetURL)
	}
	if video.ErrorReason != "" {
		t.Fatalf("completed video carries error %q", video.ErrorReason)
	}
	if video.ProviderJobID != "prov-ok" {
		t.Fatalf("provider job id = %q", video.ProviderJobID)
	}
}

func TestSubmitRejectsEmptyScript(t *testing.T) {
	gen, _ := newGenerator(t, &stubProvider{}, nil)
	_, err := gen.Submit(context.Background(), extract.ScriptDraft{Title: "t"}, "avatar-1", render.SubmitOptions{})
	if err == nil {
		t.Fatal("expected error for empty body")
	}
	if services.IsRetryable(err) {
		t.Fatalf("validation error should be permanent: %v", err)
	}
}

func TestSubmitRejectsForbiddenProfile(t *testing.T) {
	gen, _ := newGenerator(t, &stubProvider{}, deniedAccess{})
	_, err := gen.Submit(context.Background(), script(), "avatar-premium", render.SubmitOptions{})
	if err == nil {
		t.Fatal("expected error for forbidden profile")
	}
}

func TestSubmitRetriesRateLimitOnce(t *testing.T) {
	rateLimited := services.Wrap(services.ErrTransient, "render", "request", "http 429", nil)
	provider := &stubProvider{
		submitErrs: []error{rateLimited},
		jobID:      "prov-2",
		statuses:   []render.JobStatus{{Status: store.VideoCompleted, AssetURL: "https://cdn.example/x.mp4"}},
	}
	gen, _ := newGenerator(t, provider, nil)

	if _, err := gen.Submit(context.Background(), script(), "avatar-1", render.SubmitOptions{}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	gen.Wait()
	if got := provider.submitCalls.Load(); got != 2 {
		t.Fatalf("submit calls = %d, want 2", got)
	}
}

func TestSubmitFailsAfterSecondRateLimit(t *testing.T) {
	rateLimited := services.Wrap(services.ErrTransient, "render", "request", "http 429", nil)
	provider := &stubProvider{submitErrs: []error{rateLimited, rateLimited}}
	gen, st := newGenerator(t, provider, nil)

	videoID, err := gen.Submit(context.Background(), script(), "avatar-1", render.SubmitOptions{})
	if err == nil {
		t.Fatal("expected submission error")
	}

	video, getErr := st.GetVideoGeneration(context.Background(), videoID)
	if getErr != nil {
		t.Fatalf("get video: %v", getErr)
	}
	if video.Status != store.VideoFailed {
		t.Fatalf("status = %q, want failed", video.Status)
	}
	if video.ErrorReason == "" {
		t.Fatal("failed video missing error reason")
	}
}

func TestPollTimeoutIsTerminal(t *testing.T) {
	provider := &stubProvider{
		jobID:    "prov-slow",
		statuses: []render.JobStatus{{Status: store.VideoProcessing}},
	}
	gen, st := newGenerator(t, provider, nil)

	videoID, err := gen.Submit(context.Background(), script(), "avatar-1", render.SubmitOptions{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	gen.Wait()

	video, err := st.GetVideoGeneration(context.Background(), videoID)
	if err != nil {
		t.Fatalf("get video: %v", err)
	}
	if video.Status != store.VideoTimeout {
		t.Fatalf("status = %q, want timeout", video.Status)
	}
	if video.ErrorReason == "" {
		t.Fatal("timeout missing reason")
	}
}

func TestCallbackWinsRaceAgainstPoll(t *testing.T) {
	// The gate holds the poller inside its first status request until the
	// callback has landed, so the poll's eventual timeout write always
	// arrives second.
	provider := &stubProvider{
		jobID:      "prov-race",
		statuses:   []render.JobStatus{{Status: store.VideoProcessing}},
		statusGate: make(chan struct{}),
	}
	gen, st := newGenerator(t, provider, nil)

	videoID, err := gen.Submit(context.Background(), script(), "avatar-1", render.SubmitOptions{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := gen.HandleCallback(context.Background(), "prov-race", "completed", "https://cdn.example/cb.mp4", ""); err != nil {
		t.Fatalf("callback: %v", err)
	}
	close(provider.statusGate)
	gen.Wait()

	video, err := st.GetVideoGeneration(context.Background(), videoID)
	if err != nil {
		t.Fatalf("get video: %v", err)
	}
	// The poll's eventual timeout write must lose to the callback.
	if video.Status != store.VideoCompleted || video.AssetURL != "https://cdn.example/cb.mp4" {
		t.Fatalf("video = %+v", video)
	}
}

func TestCallbackUnknownProviderIDDropped(t *testing.T) {
	gen, st := newGenerator(t, &stubProvider{}, nil)

	if err := gen.HandleCallback(context.Background(), "prov-ghost", "completed", "https://x", ""); err != nil {
		t.Fatalf("callback: %v", err)
	}
	videos, err := st.ListVideoGenerations(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(videos) != 0 {
		t.Fatalf("unknown callback created %d rows", len(videos))
	}
}

func TestCallbackFailureStoresReason(t *testing.T) {
	provider := &stubProvider{
		jobID:      "prov-f",
		statuses:   []render.JobStatus{{Status: store.VideoProcessing}},
		statusGate: make(chan struct{}),
	}
	gen, st := newGenerator(t, provider, nil)

	videoID, err := gen.Submit(context.Background(), script(), "avatar-1", render.SubmitOptions{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := gen.HandleCallback(context.Background(), "prov-f", "failed", "", "avatar model crashed"); err != nil {
		t.Fatalf("callback: %v", err)
	}
	close(provider.statusGate)
	gen.Wait()

	video, err := st.GetVideoGeneration(context.Background(), videoID)
	if err != nil {
		t.Fatalf("get video: %v", err)
	}
	if video.Status != store.VideoFailed || video.ErrorReason != "avatar model crashed" {
		t.Fatalf("video = %+v", video)
	}
}

func TestResumePollingFailsInterruptedQueued(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	queued, err := st.NewVideoGeneration(context.Background(), "", "Stale", "Body.", "avatar-1", store.AspectPortrait)
	if err != nil {
		t.Fatalf("create video: %v", err)
	}

	gen := render.NewGenerator(cfg, st, &stubProvider{}, nil, nil, nil, fastOpts()...)
	if err := gen.ResumePolling(context.Background()); err != nil {
		t.Fatalf("resume: %v", err)
	}
	gen.Wait()

	video, err := st.GetVideoGeneration(context.Background(), queued.ID)
	if err != nil {
		t.Fatalf("get video: %v", err)
	}
	if video.Status != store.VideoFailed {
		t.Fatalf("status = %q, want failed", video.Status)
	}
}
