package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"booksmith/book"
	"booksmith/config"
	"booksmith/journal"
	"booksmith/llm"
	"booksmith/pipeline"
	"booksmith/state"
)

type runMode int

const (
	modeFresh runMode = iota
	modeCompile
	modeEnhance
	modeGenerate
)

func (m runMode) String() string {
	return [...]string{"new book", "compile", "enhance", "generate chapters"}[m]
}

// runArgs is parsed command line of run command.
type runArgs struct {
	mode      runMode
	noEnhance bool
	// fresh run
	genre    string
	topic    string
	chapters int
	// continuation
	title      string
	start, end int
}

// parseRunArgs resolves run mode from flags and positional arguments. Literal
// "--no-enhance" is accepted anywhere among positional arguments.
func parseRunArgs(args []string, pdf, enhance, generate, noEnhance bool) (*runArgs, error) {
	ra := &runArgs{noEnhance: noEnhance}
	args = slices.DeleteFunc(slices.Clone(args), func(a string) bool {
		if a == "--no-enhance" {
			ra.noEnhance = true
			return true
		}
		return false
	})

	modes := 0
	for _, set := range []struct {
		on   bool
		mode runMode
	}{{pdf, modeCompile}, {enhance, modeEnhance}, {generate, modeGenerate}} {
		if set.on {
			ra.mode = set.mode
			modes++
		}
	}
	if modes > 1 {
		return nil, errors.New("only one of --pdf, --enhance and --generate-chapters may be specified")
	}

	var err error
	switch ra.mode {
	case modeFresh:
		if len(args) == 0 || len(strings.TrimSpace(args[0])) == 0 {
			return nil, errors.New("no genre has been specified, see 'run --help'")
		}
		if len(args) > 3 {
			return nil, fmt.Errorf("too many arguments: %s", strings.Join(args[3:], " "))
		}
		ra.genre = args[0]
		if len(args) > 1 {
			ra.topic = args[1]
		}
		if len(args) > 2 {
			if ra.chapters, err = strconv.Atoi(args[2]); err != nil || ra.chapters < 1 {
				return nil, fmt.Errorf("invalid chapter count %q, positive number expected", args[2])
			}
		}
	default:
		if len(args) == 0 || len(strings.TrimSpace(args[0])) == 0 {
			return nil, fmt.Errorf("no book title has been specified for %s, see 'run --help'", ra.mode)
		}
		ra.title = args[0]
		limit := 3
		if ra.mode == modeCompile {
			limit = 1
		}
		if len(args) > limit {
			return nil, fmt.Errorf("too many arguments: %s", strings.Join(args[limit:], " "))
		}
		for i, dst := range []*int{&ra.start, &ra.end} {
			if len(args) <= i+1 {
				break
			}
			if *dst, err = strconv.Atoi(args[i+1]); err != nil || *dst < 1 {
				return nil, &pipeline.RangeError{Start: ra.start, End: ra.end,
					Reason: fmt.Sprintf("chapter number %q is not a positive number", args[i+1])}
			}
		}
	}
	return ra, nil
}

// openJournal opens generation journal when enabled, failures are not fatal.
func openJournal(cfg *config.Config, log *zap.Logger) *journal.Journal {
	if !cfg.Output.Journal {
		return nil
	}
	if err := os.MkdirAll(cfg.Output.Directory, 0755); err != nil {
		log.Warn("Unable to create output directory, journal disabled", zap.Error(err))
		return nil
	}
	j, err := journal.Open(filepath.Join(cfg.Output.Directory, journal.FileName))
	if err != nil {
		log.Warn("Unable to open journal, journal disabled", zap.Error(err))
		return nil
	}
	return j
}

func runBook(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("run")

	ra, err := parseRunArgs(cmd.Args().Slice(), cmd.Bool("pdf"), cmd.Bool("enhance"), cmd.Bool("generate-chapters"), cmd.Bool("no-enhance"))
	if err != nil {
		return err
	}

	format := env.Cfg.Output.Format
	if to := cmd.String("to"); len(to) > 0 {
		if format, err = config.ParseOutputFmt(to); err != nil {
			return fmt.Errorf("unknown output format requested: %w", err)
		}
	}

	var client *llm.Client
	if ra.mode != modeCompile {
		backend, err := env.GenerationBackend()
		if err != nil {
			return fmt.Errorf("unable to prepare generation backend: %w", err)
		}
		opts := llm.Options{MaxRetries: env.Cfg.Generation.MaxRetries, RetryDelay: env.Cfg.Generation.RetryDelay}
		if env.Cfg.Generation.StreamOutput {
			opts.Echo = env.Stream
		}
		client = llm.NewClient(backend, opts, env.Log)
	}

	jrn := openJournal(env.Cfg, log)
	defer func() {
		if err := jrn.Close(); err != nil {
			log.Warn("Unable to close journal", zap.Error(err))
		}
	}()

	p, err := pipeline.New(env.Cfg, client, env.Log, pipeline.WithJournal(jrn), pipeline.WithFormat(format))
	if err != nil {
		return err
	}

	log.Info("Processing starting", zap.Stringer("mode", ra.mode), zap.Stringer("format", format), zap.String("output", env.Cfg.Output.Directory))
	defer func(start time.Time) {
		log.Info("Processing completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	var res *pipeline.Result
	if ra.mode != modeFresh {
		// book directory goes to the report whatever the outcome
		defer func() {
			if err := env.Rpt.StoreCopy("book", book.NewStore(env.Cfg.Output.Directory, ra.title).Dir()); err != nil {
				log.Debug("Unable to store book in report", zap.Error(err))
			}
		}()
	}

	switch ra.mode {
	case modeFresh:
		res, err = p.Run(ctx, pipeline.Request{
			Genre:    ra.genre,
			Topic:    ra.topic,
			Chapters: ra.chapters,
			Enhance:  env.Cfg.Pipeline.Enhance && !ra.noEnhance,
		})
		if err == nil {
			if err := env.Rpt.StoreCopy("book", res.Dir); err != nil {
				log.Debug("Unable to store book in report", zap.Error(err))
			}
		}
	case modeCompile:
		res, err = p.Compile(ctx, ra.title)
	case modeEnhance:
		res, err = p.Enhance(ctx, ra.title, ra.start, ra.end)
	case modeGenerate:
		res, err = p.GenerateChapters(ctx, ra.title, ra.start, ra.end)
	}
	if err != nil {
		return err
	}

	log.Info("Book is ready", zap.String("title", res.Project.Title), zap.String("directory", res.Dir),
		zap.Int("chapters", len(res.Project.Chapters())), zap.String("document", res.Document))
	return nil
}
