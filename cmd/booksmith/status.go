package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"booksmith/journal"
	"booksmith/pipeline"
	"booksmith/state"
)

func bookStatus(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)
	log := env.Log.Named("status")

	title := strings.TrimSpace(cmd.Args().Get(0))
	if len(title) == 0 {
		return errors.New("no book title has been specified")
	}

	// journal is only read here, do not create one
	var jrn *journal.Journal
	if name := filepath.Join(env.Cfg.Output.Directory, journal.FileName); env.Cfg.Output.Journal {
		if _, err := os.Stat(name); err == nil {
			if jrn, err = journal.Open(name); err != nil {
				log.Warn("Unable to open journal", zap.Error(err))
			}
		}
	}
	defer jrn.Close()

	pr, err := pipeline.Inspect(env.Cfg, title, jrn)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(env.Stream, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Title:\t%s\n", pr.Title)
	fmt.Fprintf(w, "Genre:\t%s\n", pr.Genre)
	fmt.Fprintf(w, "Directory:\t%s\n", pr.Dir)
	fmt.Fprintf(w, "Chapters:\t%d of %d written, %d summarized, %d enhanced\n", pr.Written, pr.Planned, pr.Summaries, pr.Enhanced)
	if len(pr.Missing) > 0 {
		fmt.Fprintf(w, "Missing:\t%s\n", strings.Trim(fmt.Sprint(pr.Missing), "[]"))
	}
	for _, doc := range pr.Documents {
		fmt.Fprintf(w, "Document:\t%s\n", doc)
	}
	if len(pr.Stages) > 0 {
		fmt.Fprintln(w, "\nStage\tCalls\tFailed\tAttempts")
		for _, s := range pr.Stages {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", s.Stage, s.Calls, s.Failed, s.Attempts)
		}
	}
	if n := len(pr.History); n > 0 {
		last := pr.History[n-1]
		fmt.Fprintf(w, "\nLast generation:\t%s %s chapter %d (%s, %s)\n", last.Created.Local().Format(time.DateTime),
			last.Stage, last.Chapter, last.Status, last.Duration.Round(time.Millisecond))
	}
	return w.Flush()
}
