package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"reelflow/internal/analysis"
	"reelflow/internal/services"
	"reelflow/internal/store"
)

// ScriptDraft is a bounded, render-ready script.
type ScriptDraft struct {
	Title string
	Body  string
}

// Input bundles the analysis output with the metadata the templates need.
type Input struct {
	Analysis *analysis.AnalysisResult
	Topic    string
	Source   store.Source
}

var titleCaser = cases.Title(language.English)

// Extract renders an analysis result through an extraction rule into a
// script draft. Bodies shorter than the rule minimum fail with an
// insufficient-content error the caller should treat as a per-item skip;
// bodies over the maximum are truncated at the last full sentence.
func Extract(input Input, rule Rule) (ScriptDraft, error) {
	var empty ScriptDraft
	if input.Analysis == nil {
		return empty, services.Wrap(services.ErrPermanent, "extract", "extract", "nil analysis", nil)
	}

	items := collectContent(input.Analysis, rule.ContentPaths)
	content := numberSentences(items)
	body := renderTemplate(rule.BodyTemplate, input, content)

	if len(body) < rule.MinContentLength {
		return empty, services.Wrap(
			services.ErrInsufficientContent,
			"extract",
			"extract",
			fmt.Sprintf("body length %d below minimum %d", len(body), rule.MinContentLength),
			nil,
		)
	}
	if len(body) > rule.MaxContentLength {
		body = truncateAtSentence(body, rule.MaxContentLength)
	}

	title := strings.TrimSpace(renderTemplate(rule.TitleTemplate, input, ""))
	if title == "" {
		title = titleCaser.String(input.Topic)
	}
	return ScriptDraft{Title: title, Body: body}, nil
}

// collectContent walks the dot-paths against the analysis result and gathers
// every reachable string or list of strings in path order. Missing paths are
// skipped, not fatal.
func collectContent(result *analysis.AnalysisResult, paths []string) []string {
	encoded, err := json.Marshal(result)
	if err != nil {
		return nil
	}
	var tree map[string]any
	if err := json.Unmarshal(encoded, &tree); err != nil {
		return nil
	}

	var items []string
	for _, path := range paths {
		value, ok := walkPath(tree, path)
		if !ok {
			continue
		}
		switch v := value.(type) {
		case string:
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				items = append(items, trimmed)
			}
		case []any:
			for _, entry := range v {
				if s, ok := entry.(string); ok {
					if trimmed := strings.TrimSpace(s); trimmed != "" {
						items = append(items, trimmed)
					}
				}
			}
		}
	}
	return items
}

func walkPath(tree map[string]any, path string) (any, bool) {
	var current any = tree
	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// numberSentences joins items into "1. item. 2. item." form. Trailing
// sentence punctuation on an item is preserved rather than doubled.
func numberSentences(items []string) string {
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, item)
		if !strings.HasSuffix(item, ".") && !strings.HasSuffix(item, "!") && !strings.HasSuffix(item, "?") {
			b.WriteByte('.')
		}
	}
	return b.String()
}

func renderTemplate(template string, input Input, content string) string {
	replacer := strings.NewReplacer(
		"{content}", content,
		"{topic}", titleCaser.String(strings.TrimSpace(input.Topic)),
		"{source}", string(input.Source),
	)
	return strings.TrimSpace(replacer.Replace(template))
}

// truncateAtSentence cuts the body at the last complete sentence boundary at
// or before limit. If no boundary fits, the cut lands at the last word so a
// sentence is never split mid-word either.
func truncateAtSentence(body string, limit int) string {
	if len(body) <= limit {
		return body
	}
	window := body[:limit]
	cut := -1
	for _, terminator := range []string{". ", "! ", "? "} {
		if idx := strings.LastIndex(window, terminator); idx > cut {
			cut = idx
		}
	}
	// The window may end exactly on a terminator with no trailing space.
	for _, terminator := range []byte{'.', '!', '?'} {
		if window[len(window)-1] == terminator {
			return strings.TrimSpace(window)
		}
	}
	if cut >= 0 {
		return strings.TrimSpace(window[:cut+1])
	}
	if idx := strings.LastIndexByte(window, ' '); idx > 0 {
		return strings.TrimSpace(window[:idx])
	}
	return strings.TrimSpace(window)
}
