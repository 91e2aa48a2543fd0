// Package sanitize removes non content artifacts from generated text before
// it becomes pipeline state.
package sanitize

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"booksmith/llm"
)

// TitleDirective marks requests whose response must be a bare title.
const TitleDirective = "Return only the title"

const (
	maxRawTitle   = 100
	maxTitle      = 50
	minTitle      = 2
	titleEllipsis = "..."
)

var (
	reasoningBlocks = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<think>.*?</think>`),
		regexp.MustCompile(`(?is)<thinking>.*?</thinking>`),
	}

	titleExtractors = []*regexp.Regexp{
		// quoted substring
		regexp.MustCompile(`"([^"\n]+)"`),
		// a line consisting of a single short capitalized clause
		regexp.MustCompile(`(?m)^[ \t]*([A-Z][^.!?\n]{1,60}?)[ \t]*$`),
		regexp.MustCompile(`(?i)I'll go with[:\s]+["'*]*([^"'*\n.!?]+)`),
	}

	titleLabel = regexp.MustCompile(`(?i)^\s*title\s*:\s*`)
)

// Result of sanitization. Fallback is set when extraction failed and a
// synthesized placeholder was substituted.
type Result struct {
	Text     string
	Leaked   bool
	Fallback bool
}

type Sanitizer struct {
	policy LeakagePolicy
	now    func() time.Time
}

type Option func(*Sanitizer)

// WithClock replaces time source used for synthesized titles.
func WithClock(now func() time.Time) Option {
	return func(s *Sanitizer) {
		s.now = now
	}
}

// New returns sanitizer using given leakage policy, nil disables leakage
// processing.
func New(policy LeakagePolicy, opts ...Option) *Sanitizer {
	if policy == nil {
		policy = NoLeakage{}
	}
	s := &Sanitizer{policy: policy, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// StripReasoning deletes all paired thinking blocks.
func StripReasoning(text string) string {
	for _, re := range reasoningBlocks {
		text = re.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(text)
}

// Clean processes raw response to request msgs. Title mode is selected when
// request carries TitleDirective, genre is used for synthesized titles only.
func (s *Sanitizer) Clean(raw string, msgs []llm.Message, genre string) Result {
	var res Result

	text := StripReasoning(raw)
	if extracted, ok := s.policy.Extract(text); ok {
		text, res.Leaked = strings.TrimSpace(extracted), true
	}

	if llm.Contains(msgs, TitleDirective) {
		text, res.Fallback = s.title(text, genre)
	}
	res.Text = text
	return res
}

func (s *Sanitizer) title(text, genre string) (string, bool) {
	var fallback bool

	if utf8.RuneCountInString(text) > maxRawTitle || strings.Contains(text, "\n") {
		if t, ok := extractTitle(text); ok {
			text = t
		} else {
			text, fallback = fmt.Sprintf("Book_%d", s.now().Unix()), true
		}
	}

	text = trimQuotes(text)
	text = titleLabel.ReplaceAllString(text, "")
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	text = trimQuotes(text)

	if r := []rune(text); len(r) > maxTitle {
		text = strings.TrimSpace(string(r[:maxTitle])) + titleEllipsis
	}
	if utf8.RuneCountInString(text) < minTitle {
		text, fallback = fmt.Sprintf("%s_Book_%d", genreToken(genre), s.now().Unix()), true
	}
	return text, fallback
}

func extractTitle(text string) (string, bool) {
	for _, re := range titleExtractors {
		if m := re.FindStringSubmatch(text); m != nil {
			if t := strings.TrimSpace(m[1]); len(t) > 0 {
				return t, true
			}
		}
	}
	return "", false
}

func trimQuotes(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "\"'“”«»*"))
}

func genreToken(genre string) string {
	fields := strings.Fields(genre)
	if len(fields) == 0 {
		return "Fiction"
	}
	token := strings.Join(fields, "_")
	r, size := utf8.DecodeRuneInString(token)
	return string(unicode.ToUpper(r)) + token[size:]
}
