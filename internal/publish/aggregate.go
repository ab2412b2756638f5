package publish

import (
	"strings"

	"reelflow/internal/store"
)

const (
	statusSuccess = "success"
	statusError   = "error"

	noResponseMessage = "no response from platform"
)

// Aggregate reduces per-platform responses into an ordered result set and
// the derived overall status. The output carries one entry per requested
// platform in request order; a requested platform missing from responses is
// recorded as an error entry rather than dropped. overall_status is derived,
// never stored independently: success iff every entry succeeded, error iff
// none did, partial otherwise.
func Aggregate(requested []string, responses []store.PlatformResult) (store.PublishStatus, []store.PlatformResult) {
	byPlatform := make(map[string]store.PlatformResult, len(responses))
	for _, response := range responses {
		key := normalizePlatform(response.Platform)
		if key == "" {
			continue
		}
		if _, exists := byPlatform[key]; !exists {
			byPlatform[key] = response
		}
	}

	results := make([]store.PlatformResult, 0, len(requested))
	succeeded := 0
	for _, platform := range requested {
		key := normalizePlatform(platform)
		response, ok := byPlatform[key]
		if !ok {
			results = append(results, store.PlatformResult{
				Platform:     key,
				Status:       statusError,
				ErrorMessage: noResponseMessage,
			})
			continue
		}
		response.Platform = key
		if response.Status == "" {
			response.Status = statusError
			if response.ErrorMessage == "" {
				response.ErrorMessage = noResponseMessage
			}
		}
		if response.Status == statusSuccess {
			succeeded++
		}
		results = append(results, response)
	}

	switch {
	case len(results) > 0 && succeeded == len(results):
		return store.PublishSuccess, results
	case succeeded == 0:
		return store.PublishError, results
	default:
		return store.PublishPartial, results
	}
}

func normalizePlatform(platform string) string {
	return strings.ToLower(strings.TrimSpace(platform))
}
