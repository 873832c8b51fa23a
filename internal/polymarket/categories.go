package polymarket

import "strings"

// OtherCategory is assigned when no matcher claims an event.
const OtherCategory = "other"

// CategoryMatcher maps event tags to a category name. A tag matches when its label
// or slug equals one of Tags, case-insensitively.
type CategoryMatcher struct {
	Name string   `mapstructure:"name"`
	Tags []string `mapstructure:"tags"`
}

// Categories is an ordered matcher list. Overlapping tags resolve to the first
// matcher in list order.
type Categories []CategoryMatcher

// DefaultCategories lists the followed topics. Each topic is its own category so the
// diversity penalty tells them apart.
func DefaultCategories() Categories {
	names := []string{"politics", "geopolitics", "finance", "crypto", "elections", "tech", "culture", "world", "breaking"}
	out := make(Categories, 0, len(names))
	for _, n := range names {
		out = append(out, CategoryMatcher{Name: n, Tags: []string{n}})
	}
	return out
}

// Classify returns the first matcher name whose tags intersect eventTags.
func (c Categories) Classify(eventTags []string) (string, bool) {
	normalized := make(map[string]struct{}, len(eventTags))
	for _, t := range eventTags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			normalized[t] = struct{}{}
		}
	}
	for _, m := range c {
		for _, tag := range m.Tags {
			if _, ok := normalized[strings.ToLower(strings.TrimSpace(tag))]; ok {
				return m.Name, true
			}
		}
	}
	return "", false
}
