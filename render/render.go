// Package render turns finished chapter texts into a document file.
package render

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"booksmith/config"
)

// Renderer produces a document with the book title, genre and ordered
// chapter texts and returns the path of the written file.
type Renderer interface {
	Render(ctx context.Context, title, genre string, chapters []string) (string, error)
}

// New returns renderer for requested format writing to dest.
func New(format config.OutputFmt, cfg *config.DocumentConfig, fixZip bool, dest string, log *zap.Logger) (Renderer, error) {
	switch format {
	case config.OutputFmtPdf:
		return &PDF{cfg: cfg.PDF, dest: dest, log: log.Named("pdf")}, nil
	case config.OutputFmtEpub:
		return &EPUB{cfg: cfg.EPUB, fixZip: fixZip, dest: dest, log: log.Named("epub")}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

const maxHeading = 120

var (
	headingRe = regexp.MustCompile(`(?i)^(?:#{1,6}\s*)?(?:\*\*)?\s*(chapter\s+\S.*?)\s*(?:\*\*)?$`)
	markupRe  = regexp.MustCompile(`^#{1,6}\s+|\*\*|__`)
)

// chapterHeading returns chapter heading and the remaining text. When the
// generated text opens with its own "Chapter ..." line it is used as heading
// and removed from the body.
func chapterHeading(index int, text string) (string, string) {
	text = strings.TrimSpace(text)
	first, rest, _ := strings.Cut(text, "\n")
	if first = strings.TrimSpace(first); len(first) > maxHeading {
		return fmt.Sprintf("Chapter %d", index), text
	}
	if m := headingRe.FindStringSubmatch(first); m != nil {
		return strings.TrimSpace(markupRe.ReplaceAllString(m[1], "")), strings.TrimSpace(rest)
	}
	return fmt.Sprintf("Chapter %d", index), text
}

// paragraphs splits text on line breaks, drops markdown emphasis and
// collapses whitespace inside every paragraph.
func paragraphs(text string) []string {
	var out []string
	for line := range strings.SplitSeq(text, "\n") {
		line = strings.Join(strings.Fields(markupRe.ReplaceAllString(line, "")), " ")
		if line == "" || line == "***" || line == "---" {
			continue
		}
		out = append(out, line)
	}
	return out
}

// prepareDest makes sure destination directory exists and removes stale document.
func prepareDest(dest string, log *zap.Logger) error {
	if _, err := os.Stat(dest); err == nil {
		log.Warn("Overwriting existing file", zap.String("file", dest))
		if err = os.Remove(dest); err != nil {
			return err
		}
	} else if !os.IsNotExist(err) {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("unable to create output directory: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {

	sourceFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer sourceFile.Close()

	destinationFile, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	defer destinationFile.Close()

	if _, err = io.Copy(destinationFile, sourceFile); err != nil {
		return fmt.Errorf("failed to copy file contents: %w", err)
	}

	if err = destinationFile.Close(); err != nil {
		return fmt.Errorf("failed to close destination file: %w", err)
	}
	return nil
}
