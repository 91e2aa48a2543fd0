package pipeline

import (
	"os"
	"slices"

	"booksmith/book"
	"booksmith/config"
	"booksmith/journal"
)

// StageTotals aggregates journal entries of one stage.
type StageTotals struct {
	Stage    string
	Calls    int
	Failed   int
	Attempts int
}

// Progress describes persisted state of a book.
type Progress struct {
	Title     string
	Genre     string
	Dir       string
	Planned   int
	Written   int
	Summaries int
	Enhanced  int
	// Missing lists planned chapters without text.
	Missing   []int
	Documents []string
	Stages    []StageTotals
	History   []journal.Entry
}

// Inspect reads persisted progress of the book, journal may be nil.
func Inspect(cfg *config.Config, title string, jrn *journal.Journal) (*Progress, error) {
	store := book.NewStore(cfg.Output.Directory, title)
	proj, err := store.Load()
	if err != nil {
		return nil, stageErr(StageLoad, 0, err)
	}
	if proj.Title == "" {
		proj.Title = title
	}
	if proj.Planned <= 0 {
		proj.Planned, _ = book.ChapterCount(proj.Outline, 0, cfg.Pipeline.DefaultChapters)
	}

	pr := &Progress{
		Title:   proj.Title,
		Genre:   proj.Genre,
		Dir:     store.Dir(),
		Planned: proj.Planned,
		Written: len(proj.Chapters()),
	}
	for _, c := range proj.Chapters() {
		if store.HasSummary(c.Index) {
			pr.Summaries++
		}
		if store.HasBackup(c.Index) {
			pr.Enhanced++
		}
	}
	indexes, err := store.ChapterIndexes()
	if err != nil {
		return nil, stageErr(StageLoad, 0, err)
	}
	present := make(map[int]bool, len(indexes))
	for _, i := range indexes {
		present[i] = true
	}
	for i := 1; i <= proj.Planned; i++ {
		if !present[i] {
			pr.Missing = append(pr.Missing, i)
		}
	}
	for _, f := range config.OutputFmtNames() {
		format, _ := config.ParseOutputFmt(f)
		for _, transliterate := range []bool{false, true} {
			doc := store.DocumentPath(proj.Title, format, transliterate)
			if _, err := os.Stat(doc); err == nil && !slices.Contains(pr.Documents, doc) {
				pr.Documents = append(pr.Documents, doc)
			}
		}
	}

	if pr.History, err = jrn.History(proj.Slug()); err != nil {
		return nil, err
	}
	index := map[string]int{}
	for _, e := range pr.History {
		i, ok := index[e.Stage]
		if !ok {
			i = len(pr.Stages)
			index[e.Stage] = i
			pr.Stages = append(pr.Stages, StageTotals{Stage: e.Stage})
		}
		pr.Stages[i].Calls++
		pr.Stages[i].Attempts += e.Attempts
		if e.Status == journal.StatusFailed {
			pr.Stages[i].Failed++
		}
	}
	return pr, nil
}
