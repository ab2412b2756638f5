package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"reelflow/internal/analysis"
	"reelflow/internal/render"
	"reelflow/internal/sources"
	"reelflow/internal/store"
)

type fakeCollector struct{}

func (fakeCollector) Source() store.Source { return store.SourceReddit }

func (fakeCollector) Collect(ctx context.Context, query string, maxItems int) (*sources.RawDataset, error) {
	return &sources.RawDataset{
		Source:      store.SourceReddit,
		Query:       query,
		Items:       []sources.RawItem{{Title: "thread worth a video", Body: "plenty of discussion"}},
		CollectedAt: time.Now().UTC(),
	}, nil
}

type fakeAnalyzer struct{}

func (fakeAnalyzer) Analyze(ctx context.Context, dataset *sources.RawDataset, depth string) (*analysis.AnalysisResult, error) {
	return &analysis.AnalysisResult{
		Insights: []string{
			"Developers describe abandoning tools within a week when initial setup takes longer than an afternoon",
			"Highly ranked threads pair a specific complaint with measured before-and-after numbers",
		},
		Opportunities: []string{"A short setup walkthrough would answer the most repeated question directly"},
		Summary:       "Setup friction dominates the recent discussion.",
	}, nil
}

type fakeRenderProvider struct {
	mu sync.Mutex
	n  int
}

func (p *fakeRenderProvider) SubmitRender(ctx context.Context, req render.RenderRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.n++
	return fmt.Sprintf("prov-%d", p.n), nil
}

func (p *fakeRenderProvider) GetStatus(ctx context.Context, providerJobID string) (render.JobStatus, error) {
	return render.JobStatus{Status: store.VideoCompleted, AssetURL: "https://cdn.example/" + providerJobID + ".mp4"}, nil
}
