package sources

import (
	"context"
	"errors"
	"time"

	"reelflow/internal/config"
	"reelflow/internal/store"
)

// TrendsCollector pulls interest data from a trends aggregation endpoint.
// The endpoint URL is configurable because hosted trend APIs differ; the
// response shape below is the common denominator they expose.
type TrendsCollector struct {
	httpCollector
}

// NewTrendsCollector builds a trends collector from the source settings.
func NewTrendsCollector(cfg config.Sources) *TrendsCollector {
	return &TrendsCollector{
		httpCollector: newHTTPCollector(cfg.TrendsBaseURL, cfg.UserAgent, cfg.RequestTimeout),
	}
}

func (c *TrendsCollector) Source() store.Source {
	return store.SourceTrends
}

type trendsSearchParams struct {
	Keyword string `url:"keyword"`
	Window  string `url:"window"`
	Limit   int    `url:"limit"`
}

type trendsSearchResponse struct {
	Trends []struct {
		Topic        string `json:"topic"`
		Summary      string `json:"summary"`
		URL          string `json:"url"`
		Interest     int    `json:"interest"`
		RelatedCount int    `json:"related_count"`
	} `json:"trends"`
}

// Collect fetches trending topics related to the query.
func (c *TrendsCollector) Collect(ctx context.Context, query string, maxItems int) (*RawDataset, error) {
	if query == "" {
		return nil, errors.New("trends collect: query required")
	}
	if c.baseURL == "" {
		return nil, errors.New("trends collect: base url not configured")
	}
	params := trendsSearchParams{
		Keyword: query,
		Window:  "7d",
		Limit:   clampMaxItems(maxItems, 25, 50),
	}
	var response trendsSearchResponse
	if err := c.getJSON(ctx, "trends", "/v1/trends", params, &response); err != nil {
		return nil, err
	}

	dataset := &RawDataset{
		Source:      store.SourceTrends,
		Query:       query,
		CollectedAt: time.Now().UTC(),
	}
	for _, trend := range response.Trends {
		dataset.Items = append(dataset.Items, RawItem{
			Title:    trend.Topic,
			Body:     trend.Summary,
			URL:      trend.URL,
			Score:    trend.Interest,
			Comments: trend.RelatedCount,
		})
		if len(dataset.Items) >= params.Limit {
			break
		}
	}
	return dataset, nil
}

// NewRegistryFromConfig wires the standard collectors for every source.
func NewRegistryFromConfig(cfg config.Sources) *Registry {
	return NewRegistry(
		NewRedditCollector(cfg),
		NewHackerNewsCollector(cfg),
		NewGitHubCollector(cfg),
		NewTrendsCollector(cfg),
	)
}
