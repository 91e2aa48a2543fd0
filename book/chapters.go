package book

import (
	"regexp"
	"strconv"
	"strings"
)

// DefaultChapters is used when outline does not tell how many chapters there are.
const DefaultChapters = 10

var spelled = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15,
	"sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19, "twenty": 20,
}

var (
	explicitCount  = regexp.MustCompile(`(?i)\b(\d+|ten|twelve|fifteen)\s+chapters\b`)
	chapterMarker  = regexp.MustCompile(`(?i)\bchapter\s+(\d+|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|thirteen|fourteen|fifteen|sixteen|seventeen|eighteen|nineteen|twenty)\b`)
	whiteSpaceRuns = regexp.MustCompile(`\s+`)
)

// CountSource tells where chapter count came from.
type CountSource string

const (
	CountOverride CountSource = "override"
	CountExplicit CountSource = "explicit"
	CountMarkers  CountSource = "markers"
	CountDefault  CountSource = "default"
)

// ChapterCount resolves number of chapters for the outline. Positive override
// always wins, then explicit "<N> chapters" statement, then number of
// distinct chapter markers, then fallback.
func ChapterCount(outline string, override, fallback int) (int, CountSource) {
	if override > 0 {
		return override, CountOverride
	}
	for _, m := range explicitCount.FindAllStringSubmatch(outline, -1) {
		if n := number(m[1]); n > 0 {
			return n, CountExplicit
		}
	}
	distinct := make(map[string]struct{})
	for _, m := range chapterMarker.FindAllString(outline, -1) {
		distinct[whiteSpaceRuns.ReplaceAllString(strings.ToLower(m), " ")] = struct{}{}
	}
	if len(distinct) > 0 {
		return len(distinct), CountMarkers
	}
	if fallback <= 0 {
		fallback = DefaultChapters
	}
	return fallback, CountDefault
}

func number(s string) int {
	if n, ok := spelled[strings.ToLower(s)]; ok {
		return n
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
