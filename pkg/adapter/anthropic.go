package adapter

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/zen-systems/modelcompare/pkg/tokens"
)

// AnthropicAdapter implements the Adapter interface for Claude models.
type AnthropicAdapter struct {
	base
	apiKey    string
	maxTokens int
	client    anthropic.Client
}

// NewAnthropicAdapter creates a new Anthropic adapter. An empty key is
// accepted; calls then fail with a missing_api_key Failure.
func NewAnthropicAdapter(apiKey string, opts ...Option) *AnthropicAdapter {
	s := newSettings("claude-3-opus-20240229", 1024, opts)

	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(s.httpClient),
	}
	if s.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(s.baseURL))
	}

	return &AnthropicAdapter{
		base:      newBase("anthropic", s, tokens.Claude),
		apiKey:    apiKey,
		maxTokens: s.maxTokens,
		client:    anthropic.NewClient(clientOpts...),
	}
}

func (a *AnthropicAdapter) params(prompt string) anthropic.MessageNewParams {
	return anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: int64(a.maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: defaultSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
}

// Generate sends a prompt to Claude.
func (a *AnthropicAdapter) Generate(ctx context.Context, prompt string) (*Response, error) {
	if a.apiKey == "" {
		return nil, missingKey(a.name)
	}

	start := time.Now()
	estimated := a.CountTokens(prompt)

	resp, err := a.client.Messages.New(ctx, a.params(prompt))
	if err != nil {
		return nil, a.failure(err)
	}

	return a.finish(textOf(resp), estimated, usageOf(resp), start), nil
}

// GenerateStream sends a prompt to Claude and forwards text deltas as they
// arrive.
func (a *AnthropicAdapter) GenerateStream(ctx context.Context, prompt string, onToken func(string) error) (*Response, error) {
	if a.apiKey == "" {
		return nil, missingKey(a.name)
	}

	start := time.Now()
	estimated := a.CountTokens(prompt)
	fwd := &forwarder{fn: onToken, logger: a.logger}

	stream := a.client.Messages.NewStreaming(ctx, a.params(prompt))
	defer stream.Close()

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return nil, NewFailure(a.name, 0, CodeMalformed, err.Error(), err)
		}

		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok {
				fwd.send(delta.Text)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, a.failure(err)
	}

	return a.finish(textOf(&message), estimated, usageOf(&message), start), nil
}

func (a *AnthropicAdapter) failure(err error) *Failure {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return NewFailure(a.name, apiErr.StatusCode, "", "", err)
	}
	return AsFailure(a.name, err)
}

func textOf(msg *anthropic.Message) string {
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

func usageOf(msg *anthropic.Message) usage {
	in := int(msg.Usage.InputTokens)
	out := int(msg.Usage.OutputTokens)
	return usage{prompt: in, completion: out, total: in + out}
}
