package sanitize

import (
	"strings"
	"testing"
	"time"

	"booksmith/llm"
)

var fixedNow = func() time.Time { return time.Unix(1700000000, 0) }

func titleRequest() []llm.Message {
	return []llm.Message{
		llm.System("You name books."),
		llm.User("Create a title for this fantasy novel. " + TitleDirective + "."),
	}
}

func TestStripReasoning(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"<think>planning...</think>Final text.", "Final text."},
		{"<think>a</think>One <think>b\nc</think>two", "One two"},
		{"<THINKING>\nsteps\n</THINKING>\n\nBody", "Body"},
		{"no markers here", "no markers here"},
		{"<think>unclosed marker stays", "<think>unclosed marker stays"},
	}
	for _, tt := range tests {
		if got := StripReasoning(tt.in); got != tt.want {
			t.Errorf("StripReasoning(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPrefixPolicy_Extract(t *testing.T) {
	p := NewPrefixPolicy()
	tests := []struct {
		name   string
		in     string
		want   string
		leaked bool
	}{
		{
			name:   "emphasis wins over labels",
			in:     "I need to come up with a concept. Title: ignored\n\n**A city that sleeps** and **a thief who cannot**",
			want:   "A city that sleeps\n\na thief who cannot",
			leaked: true,
		},
		{
			name:   "final label",
			in:     "Let me think about this carefully.\nHere's my final: A lighthouse keeper hears the sea speak.\n\nThat should work.",
			want:   "A lighthouse keeper hears the sea speak.",
			leaked: true,
		},
		{
			name:   "final label with subject",
			in:     "I need to come up with something fresh.\n\nHere's my final concept: A lighthouse keeper hears the sea speak.\n\nI think it works.",
			want:   "A lighthouse keeper hears the sea speak.",
			leaked: true,
		},
		{
			name:   "label at the end",
			in:     "Let me think about it.\n\nHere is the concept: Two rival bakers.",
			want:   "Two rival bakers.",
			leaked: true,
		},
		{
			name:   "label in lower case",
			in:     "Let me think about it.\n\nhere\u2019s the concept: Two rival bakers.",
			want:   "Two rival bakers.",
			leaked: true,
		},
		{
			name:   "structured labels",
			in:     "okay, so I will outline it.\nMain Premise: Twins swap lives.\n\nKey Themes: identity, loyalty",
			want:   "Twins swap lives.\n\nidentity, loyalty",
			leaked: true,
		},
		{
			name: "not anchored at start",
			in:   "A story. Let me think about **this**",
			want: "A story. Let me think about **this**",
		},
		{
			name: "prefix without extractable content passes through",
			in:   "First, I'll consider the setting and the mood of the piece.",
			want: "First, I'll consider the setting and the mood of the piece.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, leaked := p.Extract(tt.in)
			if got != tt.want || leaked != tt.leaked {
				t.Errorf("Extract() = %q, %v; want %q, %v", got, leaked, tt.want, tt.leaked)
			}
		})
	}
}

func TestClean_Title(t *testing.T) {
	s := New(NewPrefixPolicy(), WithClock(fixedNow))
	long := strings.Repeat("this response rambles without naming anything ", 3)

	tests := []struct {
		name     string
		in       string
		want     string
		fallback bool
	}{
		{name: "quoted with commentary", in: "\"The Last Ember\"\nI think this captures the mood.", want: "The Last Ember"},
		{name: "plain", in: "The Glass Orchard", want: "The Glass Orchard"},
		{name: "label", in: "Title: \"Salt and Iron\"", want: "Salt and Iron"},
		{name: "capitalized line", in: "Some options came to mind.\nRiver of Knives\nIt is dark.", want: "River of Knives"},
		{name: "go with", in: "i considered several.\ni'll go with Night Ferry.", want: "Night Ferry"},
		{name: "reasoning removed first", in: "<think>what about \"Wrong\"?</think>Ashfall", want: "Ashfall"},
		{name: "too long single line", in: long, want: "Book_1700000000", fallback: true},
		{
			name: "truncated",
			in:   "The Extraordinary and Entirely Unreasonable Voyage of Captain Wren",
			want: "The Extraordinary and Entirely Unreasonable Voyage...",
		},
		{name: "too short", in: "\"X\"", want: "Fantasy_Book_1700000000", fallback: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Clean(tt.in, titleRequest(), "fantasy")
			if got.Text != tt.want || got.Fallback != tt.fallback {
				t.Errorf("Clean(%q) = %q (fallback %v), want %q (fallback %v)", tt.in, got.Text, got.Fallback, tt.want, tt.fallback)
			}
		})
	}
}

func TestClean_NotTitleMode(t *testing.T) {
	s := New(nil, WithClock(fixedNow))
	in := "<think>x</think>\"Quoted\" first line\nsecond line that is long enough to matter"
	got := s.Clean(in, []llm.Message{llm.User("Write an outline.")}, "drama")
	if got.Text != "\"Quoted\" first line\nsecond line that is long enough to matter" {
		t.Errorf("Clean() = %q, non title responses must keep their structure", got.Text)
	}
	if got.Fallback || got.Leaked {
		t.Errorf("unexpected flags %+v", got)
	}
}

func TestClean_LeakagePolicySwappable(t *testing.T) {
	in := "I'll create a premise.\n**Hidden**"
	if got := New(NoLeakage{}).Clean(in, nil, ""); got.Text != in {
		t.Errorf("NoLeakage changed text to %q", got.Text)
	}
	if got := New(NewPrefixPolicy()).Clean(in, nil, ""); got.Text != "Hidden" || !got.Leaked {
		t.Errorf("PrefixPolicy result %+v", got)
	}
}

func TestGenreToken(t *testing.T) {
	if got := genreToken("science fiction"); got != "Science_fiction" {
		t.Errorf("genreToken() = %q", got)
	}
	if got := genreToken("  "); got != "Fiction" {
		t.Errorf("genreToken() = %q", got)
	}
}
