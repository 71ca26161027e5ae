package feed

import (
	"strings"
)

// FilterDecision represents the result of filter evaluation
type FilterDecision int

const (
	FilterKeep FilterDecision = iota
	FilterDiscard
)

// VideoPrefix marks entries whose content cannot be summarized.
const VideoPrefix = "video:"

// TitleFilter discards entries whose title starts with one of its prefixes,
// compared case-insensitively.
type TitleFilter struct {
	prefixes []string
}

// NewTitleFilter always includes VideoPrefix; extra adds to it.
func NewTitleFilter(extra ...string) *TitleFilter {
	prefixes := []string{VideoPrefix}
	for _, p := range extra {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" || p == VideoPrefix {
			continue
		}
		prefixes = append(prefixes, p)
	}
	return &TitleFilter{prefixes: prefixes}
}

func (f *TitleFilter) Evaluate(title string) FilterDecision {
	lower := strings.ToLower(title)
	for _, p := range f.prefixes {
		if strings.HasPrefix(lower, p) {
			return FilterDiscard
		}
	}
	return FilterKeep
}
