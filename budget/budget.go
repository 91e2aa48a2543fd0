// Package budget keeps context assembled for chapter generation within model
// context window.
package budget

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"booksmith/text"
)

// Estimator approximates number of tokens in text.
type Estimator interface {
	Estimate(text string) int
}

// CharRatio estimates tokens as character count multiplied by ratio.
type CharRatio float64

func (r CharRatio) Estimate(s string) int {
	return int(float64(utf8.RuneCountInString(s)) * float64(r))
}

// Compressor condenses truncated context components into a single passage
// preserving continuity for the target chapter.
type Compressor interface {
	Compress(ctx context.Context, chapter int, outline, profiles, summaries string) (string, error)
}

// Sink persists compressed context, failures are not fatal.
type Sink interface {
	SaveContext(chapter int, text string) error
}

type Limits struct {
	MaxContextTokens int
	TokenBuffer      int
	TokensPerChar    float64
}

// Limit is the largest acceptable estimate.
func (l Limits) Limit() int {
	return l.MaxContextTokens - l.TokenBuffer
}

// AvailableChars is the character budget matching Limit.
func (l Limits) AvailableChars() int {
	return int(float64(l.Limit()) / l.TokensPerChar)
}

// Shares of available characters used when context has to be compressed.
const (
	outlineShare   = 30
	profilesShare  = 30
	summariesShare = 40
)

// Partition splits available characters 30/30/40 between outline, profiles
// and summaries. Sum never exceeds available.
func Partition(available int) (outline, profiles, summaries int) {
	if available <= 0 {
		return 0, 0, 0
	}
	return available * outlineShare / 100, available * profilesShare / 100, available * summariesShare / 100
}

// Bundle is context prepared for a single chapter request.
type Bundle struct {
	Text       string
	Tokens     int
	Compressed bool
}

const separator = "\n\n"

// Join concatenates non empty parts with blank lines.
func Join(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		if len(strings.TrimSpace(p)) > 0 {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, separator)
}

type Budgeter struct {
	limits Limits
	est    Estimator
	comp   Compressor
	sink   Sink
	log    *zap.Logger
}

func New(limits Limits, est Estimator, comp Compressor, sink Sink, log *zap.Logger) (*Budgeter, error) {
	if limits.Limit() <= 0 {
		return nil, fmt.Errorf("token buffer (%d) leaves no room in context window (%d)", limits.TokenBuffer, limits.MaxContextTokens)
	}
	if limits.TokensPerChar <= 0 {
		return nil, errors.New("tokens per character ratio must be positive")
	}
	if est == nil {
		est = CharRatio(limits.TokensPerChar)
	}
	if comp == nil {
		return nil, errors.New("no compressor")
	}
	return &Budgeter{limits: limits, est: est, comp: comp, sink: sink, log: log.Named("budget")}, nil
}

// Prepare assembles context for chapter from outline, profiles and ordered
// summaries of previous chapters. Oversized context is truncated per
// component and compressed, compression failure is returned to the caller.
func (b *Budgeter) Prepare(ctx context.Context, chapter int, outline, profiles string, summaries []string) (Bundle, error) {
	joinedSummaries := Join(summaries...)

	full := Join(outline, profiles, joinedSummaries)
	tokens := b.est.Estimate(full)
	if tokens <= b.limits.Limit() {
		return Bundle{Text: full, Tokens: tokens}, nil
	}

	available := b.limits.AvailableChars()
	oc, pc, sc := Partition(available)

	b.log.Info("Context exceeds budget, compressing",
		zap.Int("chapter", chapter), zap.Int("tokens", tokens), zap.Int("limit", b.limits.Limit()),
		zap.Int("outline chars", oc), zap.Int("profiles chars", pc), zap.Int("summaries chars", sc))

	compressed, err := b.comp.Compress(ctx, chapter,
		text.Truncate(outline, oc), text.Truncate(profiles, pc), text.Truncate(joinedSummaries, sc))
	if err != nil {
		return Bundle{}, fmt.Errorf("unable to compress context for chapter %d: %w", chapter, err)
	}

	compressed = b.fit(compressed, available)
	if b.sink != nil {
		if err := b.sink.SaveContext(chapter, compressed); err != nil {
			b.log.Warn("Unable to save compressed context", zap.Int("chapter", chapter), zap.Error(err))
		}
	}
	return Bundle{Text: compressed, Tokens: b.est.Estimate(compressed), Compressed: true}, nil
}

// fit makes sure text satisfies budget whatever estimator is in use.
func (b *Budgeter) fit(s string, available int) string {
	if b.est.Estimate(s) <= b.limits.Limit() {
		return s
	}
	b.log.Warn("Compressed context still exceeds budget, truncating", zap.Int("tokens", b.est.Estimate(s)))
	s = text.Truncate(s, available)
	for n := available; b.est.Estimate(s) > b.limits.Limit() && n > 0; {
		n = n * 9 / 10
		s = text.Truncate(s, n)
	}
	return s
}
