package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Backend is the remote completion service. Stream delivers incremental
// chunks of generated text to onChunk and returns when generation is over.
type Backend interface {
	Stream(ctx context.Context, msgs []Message, onChunk func(string)) error
}

type OpenAIOptions struct {
	BaseURL         string
	APIKey          string
	Model           string
	Temperature     float64
	TopP            float64
	MaxOutputTokens int64
}

// OpenAI is a Backend talking to any OpenAI compatible chat completions endpoint.
type OpenAI struct {
	client *openai.Client
	opts   OpenAIOptions
}

func NewOpenAI(opts OpenAIOptions) (*OpenAI, error) {
	if len(opts.Model) == 0 {
		return nil, errors.New("no model specified")
	}
	var ropts []option.RequestOption
	if len(opts.APIKey) > 0 {
		ropts = append(ropts, option.WithAPIKey(opts.APIKey))
	}
	if len(opts.BaseURL) > 0 {
		ropts = append(ropts, option.WithBaseURL(opts.BaseURL))
	}
	// we do our own retries
	ropts = append(ropts, option.WithMaxRetries(0))

	client := openai.NewClient(ropts...)
	return &OpenAI{client: &client, opts: opts}, nil
}

func (o *OpenAI) params(msgs []Message) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(o.opts.Model),
		Temperature: openai.Float(o.opts.Temperature),
		TopP:        openai.Float(o.opts.TopP),
	}
	if o.opts.MaxOutputTokens > 0 {
		params.MaxTokens = openai.Int(o.opts.MaxOutputTokens)
	}
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
		}
	}
	return params
}

func (o *OpenAI) Stream(ctx context.Context, msgs []Message, onChunk func(string)) error {
	stream := o.client.Chat.Completions.NewStreaming(ctx, o.params(msgs))
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		for _, choice := range chunk.Choices {
			if len(choice.Delta.Content) > 0 {
				onChunk(choice.Delta.Content)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("chat completion stream (%s): %w", o.opts.Model, err)
	}
	return nil
}
