// Package pipeline drives book generation stages and continuation of
// partially generated books.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"booksmith/book"
	"booksmith/budget"
	"booksmith/config"
	"booksmith/journal"
	"booksmith/llm"
	"booksmith/prompts"
	"booksmith/render"
	"booksmith/sanitize"
	"booksmith/text"
)

// Pipeline is not safe for concurrent use, stages and chapters are always
// processed strictly one after another.
type Pipeline struct {
	cfg     *config.Config
	format  config.OutputFmt
	client  *llm.Client
	san     *sanitize.Sanitizer
	catalog *prompts.Catalog
	split   *text.Splitter
	jrn     *journal.Journal
	log     *zap.Logger

	runID string
	// slug of the book journal entries are attributed to
	book string
}

type Option func(*Pipeline)

// WithJournal records every generation request.
func WithJournal(j *journal.Journal) Option {
	return func(p *Pipeline) {
		p.jrn = j
	}
}

// WithSanitizer replaces default sanitizer.
func WithSanitizer(s *sanitize.Sanitizer) Option {
	return func(p *Pipeline) {
		p.san = s
	}
}

// WithFormat overrides configured output format.
func WithFormat(f config.OutputFmt) Option {
	return func(p *Pipeline) {
		p.format = f
	}
}

func New(cfg *config.Config, client *llm.Client, log *zap.Logger, opts ...Option) (*Pipeline, error) {
	catalog, err := prompts.NewCatalog()
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("unable to generate run id: %w", err)
	}
	p := &Pipeline{
		cfg:     cfg,
		format:  cfg.Output.Format,
		client:  client,
		catalog: catalog,
		log:     log.Named("pipeline"),
		runID:   id.String(),
	}
	for _, o := range opts {
		o(p)
	}
	if p.san == nil {
		p.san = sanitize.New(sanitize.NewPrefixPolicy())
	}
	p.split = text.NewSplitter(p.log)
	p.log.Debug("Pipeline prepared", zap.String("run", p.runID), zap.Stringer("format", p.format))
	return p, nil
}

// RunID identifies journal entries of this pipeline.
func (p *Pipeline) RunID() string {
	return p.runID
}

// bind attributes journal entries to the book, including entries recorded
// before book title was known.
func (p *Pipeline) bind(slug string) {
	if p.book == slug {
		return
	}
	p.book = slug
	if err := p.jrn.Rebind(p.runID, slug); err != nil {
		p.log.Warn("Unable to update journal", zap.Error(err))
	}
}

// generate builds request of the given kind, sends it and sanitizes response.
func (p *Pipeline) generate(ctx context.Context, stage Stage, chapter int, kind prompts.Kind, v prompts.Values) (string, error) {
	msgs, err := p.catalog.Build(kind, v)
	if err != nil {
		return "", stageErr(stage, chapter, err)
	}

	p.log.Debug("Generating", zap.String("stage", string(stage)), zap.Int("chapter", chapter), zap.Int("request chars", llm.Size(msgs)))

	resp, err := p.client.Generate(ctx, msgs)
	p.record(stage, chapter, msgs, resp, err)
	if err != nil {
		return "", stageErr(stage, chapter, err)
	}

	res := p.san.Clean(resp.Text, msgs, v.Genre)
	if res.Leaked {
		p.log.Debug("Planning narration removed from response", zap.String("stage", string(stage)), zap.Int("chapter", chapter))
	}
	if res.Fallback {
		p.log.Warn("Unable to extract content from response, using placeholder",
			zap.String("stage", string(stage)), zap.String("placeholder", res.Text))
	}
	if len(strings.TrimSpace(res.Text)) == 0 {
		return "", stageErr(stage, chapter, ErrEmptyText)
	}
	return res.Text, nil
}

func (p *Pipeline) record(stage Stage, chapter int, msgs []llm.Message, resp llm.Response, err error) {
	if p.jrn == nil {
		return
	}
	e := journal.Entry{
		RunID:         p.runID,
		Book:          p.book,
		Stage:         string(stage),
		Chapter:       chapter,
		Attempts:      resp.Attempts,
		PromptChars:   llm.Size(msgs),
		ResponseChars: utf8.RuneCountInString(resp.Text),
		Duration:      resp.Elapsed,
		Status:        journal.StatusOK,
	}
	if err != nil {
		e.Status, e.Error = journal.StatusFailed, err.Error()
		var ge *llm.GenerationError
		if errors.As(err, &ge) {
			e.Attempts = ge.Attempts
		}
	}
	if err := p.jrn.Record(e); err != nil {
		p.log.Warn("Unable to record generation in journal", zap.Error(err))
	}
}

// compressor condenses oversized chapter context with a generation request.
type compressor struct {
	p     *Pipeline
	genre string
}

func (c compressor) Compress(ctx context.Context, chapter int, outline, profiles, summaries string) (string, error) {
	return c.p.generate(ctx, StageCompress, chapter, prompts.Compress, prompts.Values{
		Genre:    c.genre,
		Outline:  outline,
		Profiles: profiles,
		Context:  summaries,
		Index:    chapter,
	})
}

func (p *Pipeline) budgeter(proj *book.Project, store *book.Store) (*budget.Budgeter, error) {
	limits := budget.Limits{
		MaxContextTokens: p.cfg.Budget.MaxContextTokens,
		TokenBuffer:      p.cfg.Budget.TokenBuffer,
		TokensPerChar:    p.cfg.Budget.TokensPerChar,
	}
	return budget.New(limits, nil, compressor{p: p, genre: proj.Genre}, store, p.log)
}

// writeChapter runs Prepare, Write and Summarize for chapter i and appends
// it to the project.
func (p *Pipeline) writeChapter(ctx context.Context, proj *book.Project, store *book.Store, bud *budget.Budgeter, i int) error {
	log := p.log.With(zap.Int("chapter", i))

	summaries := proj.Summaries(i)
	bundle, err := bud.Prepare(ctx, i, proj.Outline, proj.Profiles, summaries)
	if err != nil {
		return stageErr(StagePrepare, i, err)
	}
	log.Debug("Context prepared", zap.Int("summaries", len(summaries)), zap.Int("tokens", bundle.Tokens), zap.Bool("compressed", bundle.Compressed))

	draft, err := p.generate(ctx, StageWrite, i, prompts.Chapter, prompts.Values{
		Genre:   proj.Genre,
		Title:   proj.Title,
		Context: p.split.Excerpt(bundle.Text, p.cfg.Pipeline.WriteContextChars),
		Index:   i,
		Total:   proj.Planned,
	})
	if err != nil {
		return err
	}
	if err := store.SaveChapter(i, draft); err != nil {
		return stageErr(StageWrite, i, err)
	}
	// new draft supersedes any earlier enhancement of this chapter
	if err := store.RemoveBackup(i); err != nil {
		return stageErr(StageWrite, i, err)
	}

	summary, err := p.summarize(ctx, proj, store, i, draft)
	if err != nil {
		return err
	}

	c := &book.Chapter{Index: i, Draft: draft, Summary: summary}
	if err := proj.AddChapter(c); err != nil {
		return stageErr(StageWrite, i, err)
	}
	log.Info("Chapter written", zap.Int("words", c.OriginalWords))
	return nil
}

func (p *Pipeline) summarize(ctx context.Context, proj *book.Project, store *book.Store, i int, chapter string) (string, error) {
	summary, err := p.generate(ctx, StageSummary, i, prompts.Summary, prompts.Values{
		Genre:   proj.Genre,
		Title:   proj.Title,
		Chapter: p.split.Excerpt(chapter, p.cfg.Pipeline.SummaryChapterChars),
		Index:   i,
	})
	if err != nil {
		return "", err
	}
	if err := store.SaveSummary(i, summary); err != nil {
		return "", stageErr(StageSummary, i, err)
	}
	return summary, nil
}

// ensureSummaries regenerates summaries missing for chapters 1..upto.
func (p *Pipeline) ensureSummaries(ctx context.Context, proj *book.Project, store *book.Store, upto int) error {
	for i := 1; i <= upto; i++ {
		c := proj.Chapter(i)
		if c == nil || len(strings.TrimSpace(c.Summary)) > 0 {
			continue
		}
		p.log.Info("Summary is missing, regenerating", zap.Int("chapter", i))
		summary, err := p.summarize(ctx, proj, store, i, c.Canonical())
		if err != nil {
			return err
		}
		c.Summary = summary
	}
	return nil
}

// enhanceChapter asks to expand canonical text of chapter i. Expansion
// replaces canonical text only when it passes growth gate, the text it
// replaces is kept as backup unless a backup of the original draft exists.
func (p *Pipeline) enhanceChapter(ctx context.Context, proj *book.Project, store *book.Store, i int) error {
	c := proj.Chapter(i)
	if c == nil {
		return stageErr(StageEnhance, i, fmt.Errorf("chapter %d does not exist", i))
	}
	log := p.log.With(zap.Int("chapter", i))

	base := c.Canonical()
	baseWords := text.WordCount(base)

	enhanced, err := p.generate(ctx, StageEnhance, i, prompts.Enhance, prompts.Values{
		Genre:     proj.Genre,
		Title:     proj.Title,
		Outline:   p.split.Excerpt(proj.Outline, p.cfg.Pipeline.EnhanceOutlineChars),
		Summaries: proj.Summaries(i),
		Chapter:   base,
		Index:     i,
	})
	if err != nil {
		return err
	}
	words := text.WordCount(enhanced)

	if !book.AcceptEnhancement(baseWords, words) {
		log.Info("Enhancement rejected, keeping original", zap.Int("original words", baseWords), zap.Int("enhanced words", words))
		return nil
	}

	if !store.HasBackup(i) {
		if err := store.SaveBackup(i, base); err != nil {
			return stageErr(StageEnhance, i, err)
		}
	}
	if err := store.SaveChapter(i, enhanced); err != nil {
		return stageErr(StageEnhance, i, err)
	}
	c.Enhanced, c.EnhancedWords = enhanced, words
	log.Info("Enhancement accepted", zap.Int("original words", baseWords), zap.Int("enhanced words", words),
		zap.Float64("growth", float64(words)/float64(baseWords)))
	return nil
}

func (p *Pipeline) enhanceRange(ctx context.Context, proj *book.Project, store *book.Store, start, end int) error {
	for i := start; i <= end; i++ {
		if err := p.enhanceChapter(ctx, proj, store, i); err != nil {
			return err
		}
	}
	return nil
}

// compile renders canonical chapter texts in order.
func (p *Pipeline) compile(ctx context.Context, proj *book.Project, store *book.Store) (string, error) {
	dest := store.DocumentPath(proj.Title, p.format, p.cfg.Output.FileNameTransliterate)
	r, err := render.New(p.format, &p.cfg.Document, p.cfg.Output.FixZip, dest, p.log)
	if err != nil {
		return "", stageErr(StageCompile, 0, err)
	}
	out, err := r.Render(ctx, proj.Title, proj.Genre, proj.Canonical())
	if err != nil {
		return "", stageErr(StageCompile, 0, err)
	}
	p.log.Info("Book compiled", zap.String("document", out), zap.Int("chapters", len(proj.Chapters())))
	return out, nil
}

// saveMeta keeps project.yaml current, failure is not fatal.
func (p *Pipeline) saveMeta(proj *book.Project, store *book.Store) {
	m, err := store.LoadMeta()
	if err != nil {
		m = book.Meta{}
	}
	m.Title, m.Genre, m.Planned, m.Enhance, m.Format = proj.Title, proj.Genre, proj.Planned, proj.Enhance, p.format.String()
	if err := store.SaveMeta(m); err != nil {
		p.log.Warn("Unable to save project metadata", zap.Error(err))
	}
}
