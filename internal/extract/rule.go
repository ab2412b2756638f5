package extract

import (
	"reelflow/internal/store"
)

// Rule maps analysis paths to a script template for one source.
type Rule struct {
	Source           store.Source
	ContentPaths     []string
	TitleTemplate    string
	BodyTemplate     string
	MinContentLength int
	MaxContentLength int
}

const (
	defaultMinContentLength = 150
	defaultMaxContentLength = 1800
)

var defaultRules = map[store.Source]Rule{
	store.SourceReddit: {
		Source:           store.SourceReddit,
		ContentPaths:     []string{"insights", "opportunities", "summary"},
		TitleTemplate:    "What {topic} Communities Are Talking About",
		BodyTemplate:     "The {source} community has been busy. {content} Follow for more community deep dives.",
		MinContentLength: defaultMinContentLength,
		MaxContentLength: defaultMaxContentLength,
	},
	store.SourceHackerNews: {
		Source:           store.SourceHackerNews,
		ContentPaths:     []string{"insights", "recommendations", "summary"},
		TitleTemplate:    "{topic}: The Builder's View",
		BodyTemplate:     "Builders on {source} are signaling where things go next. {content} That wraps this week's technical pulse.",
		MinContentLength: defaultMinContentLength,
		MaxContentLength: defaultMaxContentLength,
	},
	store.SourceGitHub: {
		Source:           store.SourceGitHub,
		ContentPaths:     []string{"insights", "opportunities"},
		TitleTemplate:    "Open Source Watch: {topic}",
		BodyTemplate:     "Fresh movement in open source around {topic}. {content} Star counts only tell half the story.",
		MinContentLength: defaultMinContentLength,
		MaxContentLength: defaultMaxContentLength,
	},
	store.SourceTrends: {
		Source:           store.SourceTrends,
		ContentPaths:     []string{"insights", "opportunities", "recommendations"},
		TitleTemplate:    "Trend Check: {topic}",
		BodyTemplate:     "Search interest is shifting. {content} Catch the wave before it crests.",
		MinContentLength: defaultMinContentLength,
		MaxContentLength: defaultMaxContentLength,
	},
}

// Registry resolves extraction rules by source, with user overrides layered
// over the built-in defaults.
type Registry struct {
	rules map[store.Source]Rule
}

// NewRegistry builds a registry seeded with the default rules.
func NewRegistry(overrides ...Rule) *Registry {
	rules := make(map[store.Source]Rule, len(defaultRules))
	for source, rule := range defaultRules {
		rules[source] = rule
	}
	for _, rule := range overrides {
		if rule.Source != "" {
			rules[rule.Source] = normalizeRule(rule)
		}
	}
	return &Registry{rules: rules}
}

// Rule returns the extraction rule for a source, falling back to the reddit
// rule shape for unknown sources so manual flows never dead-end.
func (r *Registry) Rule(source store.Source) Rule {
	if rule, ok := r.rules[source]; ok {
		return rule
	}
	rule := defaultRules[store.SourceReddit]
	rule.Source = source
	return rule
}

func normalizeRule(rule Rule) Rule {
	if rule.MinContentLength <= 0 {
		rule.MinContentLength = defaultMinContentLength
	}
	if rule.MaxContentLength <= rule.MinContentLength {
		rule.MaxContentLength = defaultMaxContentLength
	}
	if len(rule.ContentPaths) == 0 {
		rule.ContentPaths = []string{"insights", "summary"}
	}
	if rule.BodyTemplate == "" {
		rule.BodyTemplate = "{content}"
	}
	if rule.TitleTemplate == "" {
		rule.TitleTemplate = "{topic}"
	}
	return rule
}
