package book

import (
	"slices"
	"strings"
	"testing"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"The Last Ember", "the_last_ember"},
		{"Salt & Iron: A Tale", "salt_iron_a_tale"},
		{"  Spaces  ", "_spaces_"},
		{"Café 42", "caf_42"},
		{strings.Repeat("Long Title ", 10), "long_title_long_title_long_title_long_title_long_t"},
	}
	for _, tt := range tests {
		got := Slug(tt.in)
		if got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if len(got) > 50 {
			t.Errorf("Slug(%q) longer than 50", tt.in)
		}
	}
}

func TestAcceptEnhancement(t *testing.T) {
	tests := []struct {
		orig, enh int
		want      bool
	}{
		{1000, 1200, true},    // exactly 1.2
		{10000, 11999, false}, // 1.1999
		{10000, 12001, true},
		{5, 6, true},
		{1000, 900, false},
		{0, 100, false},
	}
	for _, tt := range tests {
		if got := AcceptEnhancement(tt.orig, tt.enh); got != tt.want {
			t.Errorf("AcceptEnhancement(%d, %d) = %v, want %v", tt.orig, tt.enh, got, tt.want)
		}
	}
}

func TestAcceptEnhancement_Monotonic(t *testing.T) {
	const orig = 777
	accepted := false
	for enh := 0; enh <= 2*orig; enh++ {
		got := AcceptEnhancement(orig, enh)
		if accepted && !got {
			t.Fatalf("gate not monotonic at %d", enh)
		}
		accepted = got
	}
}

func TestChapterCount(t *testing.T) {
	var markers strings.Builder
	for i := 1; i <= 9; i++ {
		markers.WriteString("Chapter " + string(rune('0'+i)) + ": something happens.\n")
	}
	tests := []struct {
		name     string
		outline  string
		override int
		want     int
		source   CountSource
	}{
		{"spelled explicit", "An epic told over twelve chapters, spanning a decade.", 0, 12, CountExplicit},
		{"digit explicit", "The book has 14 chapters.\nChapter 1: ...", 0, 14, CountExplicit},
		{"markers", markers.String(), 0, 9, CountMarkers},
		{"markers dedup", "Chapter One: x\nCHAPTER  one again\nchapter 2\nChapter 2 recap\nChapter 10", 0, 3, CountMarkers},
		{"nothing", "A sweeping tale of loss.", 0, 10, CountDefault},
		{"override wins", "told over twelve chapters", 5, 5, CountOverride},
		{"override wins over markers", markers.String(), 5, 5, CountOverride},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, src := ChapterCount(tt.outline, tt.override, DefaultChapters)
			if got != tt.want || src != tt.source {
				t.Errorf("ChapterCount() = %d (%s), want %d (%s)", got, src, tt.want, tt.source)
			}
		})
	}
}

func TestProject_Summaries(t *testing.T) {
	p := &Project{}
	for i := 1; i <= 5; i++ {
		if err := p.AddChapter(&Chapter{Index: i, Draft: "text", Summary: "s" + string(rune('0'+i))}); err != nil {
			t.Fatal(err)
		}
	}
	for i := 1; i <= 6; i++ {
		got := p.Summaries(i)
		var want []string
		for j := 1; j < i && j <= 5; j++ {
			want = append(want, "s"+string(rune('0'+j)))
		}
		if len(got) != len(want) || (len(want) > 0 && !slices.Equal(got, want)) {
			t.Errorf("Summaries(%d) = %v, want %v", i, got, want)
		}
	}
}

func TestProject_AddChapterContiguous(t *testing.T) {
	p := &Project{}
	if err := p.AddChapter(&Chapter{Index: 2}); err == nil {
		t.Error("expected error for gap")
	}
	if err := p.AddChapter(&Chapter{Index: 1, Draft: "one two three"}); err != nil {
		t.Fatal(err)
	}
	if p.Chapter(1).OriginalWords != 3 {
		t.Errorf("OriginalWords = %d, want 3", p.Chapter(1).OriginalWords)
	}
	if p.Chapter(0) != nil || p.Chapter(2) != nil {
		t.Error("Chapter() out of range must be nil")
	}
}

func TestChapter_Canonical(t *testing.T) {
	c := &Chapter{Draft: "draft"}
	if c.Canonical() != "draft" {
		t.Error("draft must be canonical without enhancement")
	}
	c.Enhanced = "enhanced"
	if c.Canonical() != "enhanced" {
		t.Error("accepted enhancement must be canonical")
	}
}

func TestProject_Truncate(t *testing.T) {
	p := &Project{}
	for i := 1; i <= 4; i++ {
		if err := p.AddChapter(&Chapter{Index: i}); err != nil {
			t.Fatal(err)
		}
	}
	p.Truncate(2)
	if len(p.Chapters()) != 2 {
		t.Fatalf("Truncate(2) left %d chapters", len(p.Chapters()))
	}
	if err := p.AddChapter(&Chapter{Index: 3}); err != nil {
		t.Errorf("chapter 3 must follow after truncation: %v", err)
	}
	p.Truncate(10)
	if len(p.Chapters()) != 3 {
		t.Errorf("Truncate beyond length changed project: %d", len(p.Chapters()))
	}
}
