package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"booksmith/book"
)

// Load rehydrates persisted book with given title.
func (p *Pipeline) Load(title string) (*book.Project, *book.Store, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, nil, stageErr(StageLoad, 0, errors.New("book title is required"))
	}
	store := book.NewStore(p.cfg.Output.Directory, title)
	proj, err := store.Load()
	if err != nil {
		return nil, nil, stageErr(StageLoad, 0, err)
	}
	if proj.Title == "" {
		proj.Title = title
	}
	if proj.Planned <= 0 {
		proj.Planned, _ = book.ChapterCount(proj.Outline, 0, p.cfg.Pipeline.DefaultChapters)
	}
	p.bind(proj.Slug())
	p.log.Info("Book loaded", zap.String("title", proj.Title), zap.String("genre", proj.Genre),
		zap.Int("chapters", len(proj.Chapters())), zap.Int("planned", proj.Planned))
	return proj, store, nil
}

// Compile renders document of persisted book.
func (p *Pipeline) Compile(ctx context.Context, title string) (*Result, error) {
	proj, store, err := p.Load(title)
	if err != nil {
		return nil, err
	}
	if len(proj.Chapters()) == 0 {
		return nil, stageErr(StageCompile, 0, errors.New("book has no chapters"))
	}
	doc, err := p.compile(ctx, proj, store)
	if err != nil {
		return nil, err
	}
	return &Result{Project: proj, Dir: store.Dir(), Document: doc}, nil
}

// resolveRange applies defaults (zero values) and validates chapter range.
func resolveRange(start, end, defStart, bound int) (int, int, error) {
	if start == 0 {
		start = defStart
	}
	if end == 0 {
		end = bound
	}
	if start < 1 || start > end || end > bound {
		return start, end, &RangeError{Start: start, End: end, Bound: bound}
	}
	return start, end, nil
}

// Enhance expands existing chapters start..end, zero start or end selects
// first or last existing chapter. Document is compiled when the book has all
// planned chapters.
func (p *Pipeline) Enhance(ctx context.Context, title string, start, end int) (*Result, error) {
	proj, store, err := p.Load(title)
	if err != nil {
		return nil, err
	}
	existing := len(proj.Chapters())
	if start, end, err = resolveRange(start, end, 1, existing); err != nil {
		return nil, err
	}
	p.log.Info("Enhancing chapters", zap.Int("start", start), zap.Int("end", end))

	// previous summaries feed every enhancement in range
	if err := p.ensureSummaries(ctx, proj, store, end-1); err != nil {
		return nil, err
	}
	proj.Enhance = true
	if err := p.enhanceRange(ctx, proj, store, start, end); err != nil {
		return nil, err
	}
	p.saveMeta(proj, store)
	return p.finish(ctx, proj, store)
}

// GenerateChapters writes chapters start..end of the planned count. By
// default it starts from the first missing chapter and goes to the last
// planned one. Chapters before start have to exist, existing chapters in
// range are regenerated.
func (p *Pipeline) GenerateChapters(ctx context.Context, title string, start, end int) (*Result, error) {
	proj, store, err := p.Load(title)
	if err != nil {
		return nil, err
	}
	existing := len(proj.Chapters())
	if start, end, err = resolveRange(start, end, existing+1, proj.Planned); err != nil {
		if existing >= proj.Planned {
			err.(*RangeError).Reason = "all planned chapters already exist"
		}
		return nil, err
	}
	if start > existing+1 {
		return nil, &RangeError{Start: start, End: end, Bound: proj.Planned,
			Reason: fmt.Sprintf("chapters before %d have to exist, book has %d", start, existing)}
	}
	p.log.Info("Generating chapters", zap.Int("start", start), zap.Int("end", end), zap.Int("existing", existing))

	if err := p.ensureSummaries(ctx, proj, store, start-1); err != nil {
		return nil, err
	}
	proj.Truncate(start - 1)

	bud, err := p.budgeter(proj, store)
	if err != nil {
		return nil, stageErr(StagePrepare, start, err)
	}
	for i := start; i <= end; i++ {
		if err := p.writeChapter(ctx, proj, store, bud, i); err != nil {
			return nil, err
		}
	}
	p.saveMeta(proj, store)

	// chapters after end may have been there already
	if reloaded, err := store.Load(); err == nil && len(reloaded.Chapters()) > len(proj.Chapters()) {
		reloaded.Title, reloaded.Planned = proj.Title, proj.Planned
		proj = reloaded
	}
	return p.finish(ctx, proj, store)
}

// finish compiles document when book is complete.
func (p *Pipeline) finish(ctx context.Context, proj *book.Project, store *book.Store) (*Result, error) {
	res := &Result{Project: proj, Dir: store.Dir()}
	if n := len(proj.Chapters()); n < proj.Planned {
		p.log.Info("Book is not complete yet, document not compiled", zap.Int("chapters", n), zap.Int("planned", proj.Planned))
		return res, nil
	}
	doc, err := p.compile(ctx, proj, store)
	if err != nil {
		return nil, err
	}
	res.Document = doc
	return res, nil
}
