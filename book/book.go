// Package book defines book project model and its on-disk representation.
package book

import (
	"fmt"
	"strings"

	"booksmith/text"
)

// Chapter is identified by its 1-based index.
type Chapter struct {
	Index         int
	Draft         string
	Enhanced      string
	Summary       string
	OriginalWords int
	EnhancedWords int
}

// Canonical returns accepted enhanced text if any, draft otherwise.
func (c *Chapter) Canonical() string {
	if len(c.Enhanced) > 0 {
		return c.Enhanced
	}
	return c.Draft
}

// Project is working copy of a book, persisted state is the source of truth.
type Project struct {
	Genre    string
	Concept  string
	Title    string
	Outline  string
	Profiles string

	// Planned is number of chapters outline calls for (or was overridden to).
	Planned int
	Enhance bool

	chapters []*Chapter
}

func (p *Project) Slug() string {
	return Slug(p.Title)
}

// Chapters returns chapters in index order.
func (p *Project) Chapters() []*Chapter {
	return p.chapters
}

// Chapter returns chapter by its index or nil.
func (p *Project) Chapter(index int) *Chapter {
	if index < 1 || index > len(p.chapters) {
		return nil
	}
	return p.chapters[index-1]
}

// AddChapter appends next chapter, indexes have to stay contiguous.
func (p *Project) AddChapter(c *Chapter) error {
	if c.Index != len(p.chapters)+1 {
		return fmt.Errorf("chapter %d cannot follow chapter %d", c.Index, len(p.chapters))
	}
	if c.OriginalWords == 0 {
		c.OriginalWords = text.WordCount(c.Draft)
	}
	p.chapters = append(p.chapters, c)
	return nil
}

// Truncate drops all chapters after n.
func (p *Project) Truncate(n int) {
	if n >= 0 && n < len(p.chapters) {
		p.chapters = p.chapters[:n]
	}
}

// Summaries returns summaries of all chapters before index, in order.
func (p *Project) Summaries(before int) []string {
	n := min(max(before-1, 0), len(p.chapters))
	out := make([]string, 0, n)
	for _, c := range p.chapters[:n] {
		out = append(out, c.Summary)
	}
	return out
}

// Canonical returns final chapter texts in order.
func (p *Project) Canonical() []string {
	out := make([]string, 0, len(p.chapters))
	for _, c := range p.chapters {
		out = append(out, c.Canonical())
	}
	return out
}

// AcceptEnhancement reports whether enhanced text grew at least 1.2 times in
// words compared to original. Integer arithmetic keeps the gate exact.
func AcceptEnhancement(originalWords, enhancedWords int) bool {
	if originalWords <= 0 {
		return false
	}
	return enhancedWords*5 >= originalWords*6
}

// Slug derives file system safe identifier from book title: lowercase,
// anything other than ascii letters and digits becomes "_", repeated "_" are
// collapsed, result is at most 50 characters.
func Slug(title string) string {
	const maxLen = 50

	var sb strings.Builder
	prevUnderscore := false
	for _, r := range strings.ToLower(title) {
		if ('a' <= r && r <= 'z') || ('0' <= r && r <= '9') {
			sb.WriteRune(r)
			prevUnderscore = false
			continue
		}
		if !prevUnderscore {
			sb.WriteByte('_')
			prevUnderscore = true
		}
	}
	s := sb.String()
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return s
}
