package pipeline

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"booksmith/book"
	"booksmith/prompts"
)

// Request describes fresh run.
type Request struct {
	Genre string
	// Topic when not empty is used as book concept verbatim.
	Topic string
	// Chapters overrides chapter count detected from outline when positive.
	Chapters int
	Enhance  bool
}

// Result of a run which produced a document.
type Result struct {
	Project  *book.Project
	Dir      string
	Document string
}

// Run generates a complete book: concept, title, outline, chapter count,
// character profiles, chapters with summaries, optional enhancement and
// compiled document.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	genre := strings.TrimSpace(req.Genre)
	if genre == "" {
		return nil, errors.New("genre is required")
	}
	proj := &book.Project{Genre: genre, Enhance: req.Enhance}

	// Concept
	if topic := strings.TrimSpace(req.Topic); topic != "" {
		proj.Concept = topic
		p.log.Info("Using provided topic as concept")
	} else {
		concept, err := p.generate(ctx, StageConcept, 0, prompts.Concept, prompts.Values{Genre: genre})
		if err != nil {
			return nil, err
		}
		proj.Concept = concept
	}

	// Title
	title, err := p.generate(ctx, StageTitle, 0, prompts.Title, prompts.Values{Genre: genre, Concept: proj.Concept})
	if err != nil {
		return nil, err
	}
	proj.Title = title
	p.log.Info("Book title", zap.String("title", title), zap.String("slug", proj.Slug()))

	store := book.NewStore(p.cfg.Output.Directory, title)
	if store.Exists() {
		p.log.Warn("Book directory already exists, its files will be overwritten", zap.String("dir", store.Dir()))
	}
	if err := store.Create(); err != nil {
		return nil, stageErr(StageTitle, 0, err)
	}
	p.bind(proj.Slug())

	if err := store.SaveConcept(proj.Concept); err != nil {
		p.log.Warn("Unable to save concept", zap.Error(err))
	}
	if err := store.SaveTitle(title); err != nil {
		p.log.Warn("Unable to save title", zap.Error(err))
	}

	// Outline
	if proj.Outline, err = p.generate(ctx, StageOutline, 0, prompts.Outline, prompts.Values{
		Genre: genre, Title: title, Concept: proj.Concept,
	}); err != nil {
		return nil, err
	}
	if err := store.SaveOutline(proj.Outline); err != nil {
		return nil, stageErr(StageOutline, 0, err)
	}

	// Chapter count
	count, source := book.ChapterCount(proj.Outline, req.Chapters, p.cfg.Pipeline.DefaultChapters)
	proj.Planned = count
	p.log.Info("Chapter count resolved", zap.Int("chapters", count), zap.String("source", string(source)))

	// Character profiles
	if proj.Profiles, err = p.generate(ctx, StageProfiles, 0, prompts.Profiles, prompts.Values{
		Genre: genre, Title: title, Outline: p.split.Excerpt(proj.Outline, p.cfg.Pipeline.ProfileOutlineChars),
	}); err != nil {
		return nil, err
	}
	if err := store.SaveProfiles(proj.Profiles); err != nil {
		return nil, stageErr(StageProfiles, 0, err)
	}
	p.saveMeta(proj, store)

	// Chapters
	bud, err := p.budgeter(proj, store)
	if err != nil {
		return nil, stageErr(StagePrepare, 1, err)
	}
	for i := 1; i <= count; i++ {
		if err := p.writeChapter(ctx, proj, store, bud, i); err != nil {
			return nil, err
		}
	}

	if req.Enhance {
		if err := p.enhanceRange(ctx, proj, store, 1, count); err != nil {
			return nil, err
		}
	} else {
		p.log.Info("Enhancement skipped")
	}

	doc, err := p.compile(ctx, proj, store)
	if err != nil {
		return nil, err
	}
	return &Result{Project: proj, Dir: store.Dir(), Document: doc}, nil
}
