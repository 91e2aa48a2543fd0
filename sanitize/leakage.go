package sanitize

import (
	"regexp"
	"strings"
)

// LeakagePolicy decides whether text still contains narrated planning and
// extracts final content from it.
type LeakagePolicy interface {
	// Extract returns cleaned text and true when leaked reasoning was
	// detected and content was extracted from it.
	Extract(text string) (string, bool)
}

// NoLeakage disables leaked reasoning processing.
type NoLeakage struct{}

func (NoLeakage) Extract(text string) (string, bool) {
	return text, false
}

var DefaultPlanningPrefixes = []string{
	"I need to come up with",
	"Let me think about",
	"I'll create a",
	"Okay, so I",
	"I should start by",
	"First, I'll",
	"Let's brainstorm",
}

var defaultExtractors = []*regexp.Regexp{
	regexp.MustCompile(`\*\*(.*?)\*\*`),
	regexp.MustCompile(`(?is)(?:Here['’]s my final[^:\n]*|Here is the[^:\n]*|Final concept|Here['’]s the concept):(.*?)(?:\n\n|$)`),
	regexp.MustCompile(`(?s)(?:Title:|Main Premise:|Key Themes:)(.*?)(?:\n\n|$)`),
}

// PrefixPolicy detects leaked reasoning by planning phrases at the very
// beginning of the text and tries extractors in order, first one producing
// any match wins.
type PrefixPolicy struct {
	Prefixes   []string
	Extractors []*regexp.Regexp
}

func NewPrefixPolicy() *PrefixPolicy {
	return &PrefixPolicy{Prefixes: DefaultPlanningPrefixes, Extractors: defaultExtractors}
}

func (p *PrefixPolicy) leaked(text string) bool {
	lower := strings.ToLower(text)
	for _, prefix := range p.Prefixes {
		if strings.HasPrefix(lower, strings.ToLower(prefix)) {
			return true
		}
	}
	return false
}

func (p *PrefixPolicy) Extract(text string) (string, bool) {
	if !p.leaked(text) {
		return text, false
	}
	for _, re := range p.Extractors {
		matches := re.FindAllStringSubmatch(text, -1)
		if len(matches) == 0 {
			continue
		}
		parts := make([]string, 0, len(matches))
		for _, m := range matches {
			if s := strings.TrimSpace(m[1]); len(s) > 0 {
				parts = append(parts, s)
			}
		}
		if len(parts) == 0 {
			continue
		}
		return strings.Join(parts, "\n\n"), true
	}
	// known limitation: nothing to extract, leave text alone
	return text, false
}
