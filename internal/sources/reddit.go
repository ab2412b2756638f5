package sources

import (
	"context"
	"errors"
	"time"

	"reelflow/internal/config"
	"reelflow/internal/store"
)

const defaultRedditBaseURL = "https://www.reddit.com"

// RedditCollector pulls posts from Reddit's public search endpoint.
type RedditCollector struct {
	httpCollector
}

// NewRedditCollector builds a Reddit collector from the source settings.
func NewRedditCollector(cfg config.Sources) *RedditCollector {
	baseURL := cfg.RedditBaseURL
	if baseURL == "" {
		baseURL = defaultRedditBaseURL
	}
	return &RedditCollector{
		httpCollector: newHTTPCollector(baseURL, cfg.UserAgent, cfg.RequestTimeout),
	}
}

func (c *RedditCollector) Source() store.Source {
	return store.SourceReddit
}

type redditSearchParams struct {
	Query string `url:"q"`
	Sort  string `url:"sort"`
	Time  string `url:"t"`
	Limit int    `url:"limit"`
	Type  string `url:"type"`
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				Title       string  `json:"title"`
				Selftext    string  `json:"selftext"`
				Permalink   string  `json:"permalink"`
				Author      string  `json:"author"`
				Score       int     `json:"score"`
				NumComments int     `json:"num_comments"`
				CreatedUTC  float64 `json:"created_utc"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// Collect searches recent Reddit posts matching the query.
func (c *RedditCollector) Collect(ctx context.Context, query string, maxItems int) (*RawDataset, error) {
	if query == "" {
		return nil, errors.New("reddit collect: query required")
	}
	params := redditSearchParams{
		Query: query,
		Sort:  "relevance",
		Time:  "week",
		Limit: clampMaxItems(maxItems, 25, 100),
		Type:  "link",
	}
	var listing redditListing
	if err := c.getJSON(ctx, "reddit", "/search.json", params, &listing); err != nil {
		return nil, err
	}

	dataset := &RawDataset{
		Source:      store.SourceReddit,
		Query:       query,
		CollectedAt: time.Now().UTC(),
	}
	for _, child := range listing.Data.Children {
		post := child.Data
		item := RawItem{
			Title:    post.Title,
			Body:     post.Selftext,
			Author:   post.Author,
			Score:    post.Score,
			Comments: post.NumComments,
		}
		if post.Permalink != "" {
			item.URL = defaultRedditBaseURL + post.Permalink
		}
		if post.CreatedUTC > 0 {
			item.CreatedAt = time.Unix(int64(post.CreatedUTC), 0).UTC()
		}
		dataset.Items = append(dataset.Items, item)
		if len(dataset.Items) >= params.Limit {
			break
		}
	}
	return dataset, nil
}
