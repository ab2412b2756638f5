package sources

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reelflow/internal/config"
	"reelflow/internal/store"
)

const defaultHackerNewsBaseURL = "https://hn.algolia.com/api/v1"

// HackerNewsCollector pulls stories from the Algolia-backed HN search API.
type HackerNewsCollector struct {
	httpCollector
}

// NewHackerNewsCollector builds a Hacker News collector from the source
// settings.
func NewHackerNewsCollector(cfg config.Sources) *HackerNewsCollector {
	baseURL := cfg.HackerNewsBaseURL
	if baseURL == "" {
		baseURL = defaultHackerNewsBaseURL
	}
	return &HackerNewsCollector{
		httpCollector: newHTTPCollector(baseURL, cfg.UserAgent, cfg.RequestTimeout),
	}
}

func (c *HackerNewsCollector) Source() store.Source {
	return store.SourceHackerNews
}

type hackerNewsSearchParams struct {
	Query   string `url:"query"`
	Tags    string `url:"tags"`
	Filters string `url:"numericFilters,omitempty"`
	Limit   int    `url:"hitsPerPage"`
}

type hackerNewsSearchResponse struct {
	Hits []struct {
		Title       string `json:"title"`
		StoryText   string `json:"story_text"`
		URL         string `json:"url"`
		Author      string `json:"author"`
		Points      int    `json:"points"`
		NumComments int    `json:"num_comments"`
		ObjectID    string `json:"objectID"`
		CreatedAtI  int64  `json:"created_at_i"`
	} `json:"hits"`
}

// Collect searches Hacker News stories from the last week matching the query.
func (c *HackerNewsCollector) Collect(ctx context.Context, query string, maxItems int) (*RawDataset, error) {
	if query == "" {
		return nil, errors.New("hackernews collect: query required")
	}
	weekAgo := time.Now().Add(-7 * 24 * time.Hour).Unix()
	params := hackerNewsSearchParams{
		Query:   query,
		Tags:    "story",
		Filters: fmt.Sprintf("created_at_i>%d", weekAgo),
		Limit:   clampMaxItems(maxItems, 25, 100),
	}
	var response hackerNewsSearchResponse
	if err := c.getJSON(ctx, "hackernews", "/search", params, &response); err != nil {
		return nil, err
	}

	dataset := &RawDataset{
		Source:      store.SourceHackerNews,
		Query:       query,
		CollectedAt: time.Now().UTC(),
	}
	for _, hit := range response.Hits {
		item := RawItem{
			Title:    hit.Title,
			Body:     hit.StoryText,
			URL:      hit.URL,
			Author:   hit.Author,
			Score:    hit.Points,
			Comments: hit.NumComments,
		}
		if item.URL == "" && hit.ObjectID != "" {
			item.URL = "https://news.ycombinator.com/item?id=" + hit.ObjectID
		}
		if hit.CreatedAtI > 0 {
			item.CreatedAt = time.Unix(hit.CreatedAtI, 0).UTC()
		}
		dataset.Items = append(dataset.Items, item)
		if len(dataset.Items) >= params.Limit {
			break
		}
	}
	return dataset, nil
}
