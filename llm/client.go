package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 5 * time.Second
)

// ErrEmptyResponse is returned for an attempt which produced no text, such
// attempts are retried like transport failures.
var ErrEmptyResponse = errors.New("empty response")

// GenerationError is returned when all attempts failed.
type GenerationError struct {
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Response is accumulated result of a single successful generation.
type Response struct {
	Text     string
	Attempts int
	Elapsed  time.Duration
}

type Options struct {
	MaxRetries int
	RetryDelay time.Duration
	// Echo receives streamed chunks as they arrive, nil disables.
	Echo io.Writer
}

// Client is the only path pipeline uses to talk to a Backend.
type Client struct {
	backend Backend
	opts    Options
	log     *zap.Logger
}

func NewClient(backend Backend, opts Options, log *zap.Logger) *Client {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	return &Client{backend: backend, opts: opts, log: log.Named("llm")}
}

// Complete returns full text of the response.
func (c *Client) Complete(ctx context.Context, msgs []Message) (string, error) {
	resp, err := c.Generate(ctx, msgs)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// Generate performs up to MaxRetries attempts with fixed delay between them.
// Cancelled context stops retrying immediately.
func (c *Client) Generate(ctx context.Context, msgs []Message) (Response, error) {
	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxRetries; attempt++ {
		text, err := c.attempt(ctx, msgs)
		if err == nil {
			return Response{Text: text, Attempts: attempt, Elapsed: time.Since(start)}, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return Response{}, &GenerationError{Attempts: attempt, Err: ctx.Err()}
		}
		if attempt == c.opts.MaxRetries {
			break
		}
		c.log.Warn("Generation attempt failed, retrying",
			zap.Int("attempt", attempt), zap.Int("max", c.opts.MaxRetries),
			zap.Duration("delay", c.opts.RetryDelay), zap.Error(err))

		select {
		case <-ctx.Done():
			return Response{}, &GenerationError{Attempts: attempt, Err: ctx.Err()}
		case <-time.After(c.opts.RetryDelay):
		}
	}
	return Response{}, &GenerationError{Attempts: c.opts.MaxRetries, Err: lastErr}
}

func (c *Client) attempt(ctx context.Context, msgs []Message) (string, error) {
	var sb strings.Builder
	err := c.backend.Stream(ctx, msgs, func(chunk string) {
		sb.WriteString(chunk)
		if c.opts.Echo != nil {
			_, _ = io.WriteString(c.opts.Echo, chunk)
		}
	})
	if c.opts.Echo != nil && sb.Len() > 0 {
		_, _ = io.WriteString(c.opts.Echo, "\n")
	}
	if err != nil {
		return "", err
	}
	if len(strings.TrimSpace(sb.String())) == 0 {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}
