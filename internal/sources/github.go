package sources

import (
	"context"
	"errors"
	"time"

	"reelflow/internal/config"
	"reelflow/internal/store"
)

const defaultGitHubBaseURL = "https://api.github.com"

// GitHubCollector pulls trending repositories from the GitHub search API.
type GitHubCollector struct {
	httpCollector
}

// NewGitHubCollector builds a GitHub collector from the source settings.
// A token is optional; unauthenticated requests get a lower rate limit.
func NewGitHubCollector(cfg config.Sources) *GitHubCollector {
	baseURL := cfg.GitHubBaseURL
	if baseURL == "" {
		baseURL = defaultGitHubBaseURL
	}
	collector := &GitHubCollector{
		httpCollector: newHTTPCollector(baseURL, cfg.UserAgent, cfg.RequestTimeout),
	}
	if cfg.GitHubToken != "" {
		collector.headers = map[string]string{
			"Authorization":        "Bearer " + cfg.GitHubToken,
			"X-GitHub-Api-Version": "2022-11-28",
		}
	}
	return collector
}

func (c *GitHubCollector) Source() store.Source {
	return store.SourceGitHub
}

type githubSearchParams struct {
	Query   string `url:"q"`
	Sort    string `url:"sort"`
	Order   string `url:"order"`
	PerPage int    `url:"per_page"`
}

type githubSearchResponse struct {
	Items []struct {
		FullName        string    `json:"full_name"`
		Description     string    `json:"description"`
		HTMLURL         string    `json:"html_url"`
		StargazersCount int       `json:"stargazers_count"`
		OpenIssues      int       `json:"open_issues_count"`
		Owner           struct{ Login string } `json:"owner"`
		CreatedAt       time.Time `json:"created_at"`
	} `json:"items"`
}

// Collect searches repositories matching the query, most starred first.
func (c *GitHubCollector) Collect(ctx context.Context, query string, maxItems int) (*RawDataset, error) {
	if query == "" {
		return nil, errors.New("github collect: query required")
	}
	params := githubSearchParams{
		Query:   query,
		Sort:    "stars",
		Order:   "desc",
		PerPage: clampMaxItems(maxItems, 25, 100),
	}
	var response githubSearchResponse
	if err := c.getJSON(ctx, "github", "/search/repositories", params, &response); err != nil {
		return nil, err
	}

	dataset := &RawDataset{
		Source:      store.SourceGitHub,
		Query:       query,
		CollectedAt: time.Now().UTC(),
	}
	for _, repo := range response.Items {
		dataset.Items = append(dataset.Items, RawItem{
			Title:     repo.FullName,
			Body:      repo.Description,
			URL:       repo.HTMLURL,
			Author:    repo.Owner.Login,
			Score:     repo.StargazersCount,
			Comments:  repo.OpenIssues,
			CreatedAt: repo.CreatedAt,
		})
		if len(dataset.Items) >= params.PerPage {
			break
		}
	}
	return dataset, nil
}
