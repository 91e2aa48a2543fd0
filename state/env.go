// Package state defines shared program state.
package state

import (
	"context"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"booksmith/config"
	"booksmith/llm"
)

type envKey struct{}

// LocalEnv keeps everything program needs in a single place.
type LocalEnv struct {
	Cfg *config.Config
	Rpt *config.Report
	Log *zap.Logger

	// Backend overrides generation backend built from configuration.
	Backend llm.Backend
	// Stream receives generated text as it arrives when streaming output is
	// enabled in configuration.
	Stream io.Writer

	start         time.Time
	restoreStdLog func()
}

func EnvFromContext(ctx context.Context) *LocalEnv {
	if env, ok := ctx.Value(envKey{}).(*LocalEnv); ok {
		return env
	}
	// this should never happen
	panic("localenv not found in context")
}

func ContextWithEnv(ctx context.Context) context.Context {
	return context.WithValue(ctx, envKey{}, newLocalEnv())
}

func newLocalEnv() *LocalEnv {
	return &LocalEnv{
		start:  time.Now(),
		Stream: os.Stdout,
	}
}

func (e *LocalEnv) Uptime() time.Duration {
	return time.Since(e.start)
}

func (e *LocalEnv) RedirectStdLog() {
	if e.Log == nil {
		return
	}
	e.restoreStdLog = zap.RedirectStdLog(e.Log)
}

func (e *LocalEnv) RestoreStdLog() {
	if e.Log != nil {
		_ = e.Log.Sync()
	}
	if e.restoreStdLog != nil {
		e.restoreStdLog()
	}
}

// GenerationBackend returns injected backend or builds one from configuration.
func (e *LocalEnv) GenerationBackend() (llm.Backend, error) {
	if e.Backend != nil {
		return e.Backend, nil
	}
	gc := e.Cfg.Generation
	return llm.NewOpenAI(llm.OpenAIOptions{
		BaseURL:         gc.BaseURL,
		APIKey:          string(gc.APIKey),
		Model:           gc.Model,
		Temperature:     gc.Temperature,
		TopP:            gc.TopP,
		MaxOutputTokens: gc.MaxOutputTokens,
	})
}
