package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-querystring/query"

	"reelflow/internal/services"
)

const (
	defaultUserAgent      = "reelflow/1.0"
	defaultRequestTimeout = 15 * time.Second
)

// httpCollector carries the plumbing shared by the concrete collectors.
type httpCollector struct {
	baseURL    string
	userAgent  string
	headers    map[string]string
	httpClient *http.Client
}

func newHTTPCollector(baseURL, userAgent string, timeoutSeconds int) httpCollector {
	timeout := defaultRequestTimeout
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return httpCollector{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// getJSON issues a GET against path with params encoded into the query
// string and decodes the JSON response into target.
func (c *httpCollector) getJSON(ctx context.Context, component, path string, params any, target any) error {
	endpoint := c.baseURL + path
	if params != nil {
		values, err := query.Values(params)
		if err != nil {
			return services.Wrap(services.ErrPermanent, component, "encode query", "", err)
		}
		if encoded := values.Encode(); encoded != "" {
			endpoint += "?" + encoded
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return services.Wrap(services.ErrPermanent, component, "build request", "", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(component, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return services.Wrap(services.ErrTransient, component, "read response", "", err)
	}
	if resp.StatusCode != http.StatusOK {
		return classifyStatus(component, resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, target); err != nil {
		return services.Wrap(services.ErrPermanent, component, "decode response", "", err)
	}
	return nil
}

func classifyTransportError(component string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return services.Wrap(services.ErrTransient, component, "request", "timeout", err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return services.Wrap(services.ErrTransient, component, "request", "timeout", err)
	}
	return services.Wrap(services.ErrTransient, component, "request", "", err)
}

func classifyStatus(component string, statusCode int, body []byte) error {
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	detail := fmt.Sprintf("http %d: %s", statusCode, snippet)
	switch {
	case statusCode == http.StatusTooManyRequests || statusCode >= http.StatusInternalServerError:
		return services.Wrap(services.ErrTransient, component, "request", detail, nil)
	default:
		return services.Wrap(services.ErrPermanent, component, "request", detail, nil)
	}
}

func clampMaxItems(maxItems, fallback, ceiling int) int {
	if maxItems <= 0 {
		maxItems = fallback
	}
	if ceiling > 0 && maxItems > ceiling {
		return ceiling
	}
	return maxItems
}
