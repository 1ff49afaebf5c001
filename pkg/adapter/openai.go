package adapter

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/zen-systems/modelcompare/pkg/tokens"
)

// OpenAIAdapter implements the Adapter interface for OpenAI models.
type OpenAIAdapter struct {
	base
	apiKey    string
	maxTokens int
	client    openai.Client
}

// NewOpenAIAdapter creates a new OpenAI adapter. An empty key is accepted;
// calls then fail with a missing_api_key Failure.
func NewOpenAIAdapter(apiKey string, opts ...Option) *OpenAIAdapter {
	s := newSettings("gpt-4", 0, opts)

	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(s.httpClient),
	}
	if s.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(s.baseURL))
	}

	return &OpenAIAdapter{
		base:      newBase("openai", s, tokens.GPT),
		apiKey:    apiKey,
		maxTokens: s.maxTokens,
		client:    openai.NewClient(clientOpts...),
	}
}

func (a *OpenAIAdapter) params(prompt string) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}
	if a.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(a.maxTokens))
	}
	return params
}

// Generate sends a prompt to OpenAI.
func (a *OpenAIAdapter) Generate(ctx context.Context, prompt string) (*Response, error) {
	if a.apiKey == "" {
		return nil, missingKey(a.name)
	}

	start := time.Now()
	estimated := a.CountTokens(prompt)

	resp, err := a.client.Chat.Completions.New(ctx, a.params(prompt))
	if err != nil {
		return nil, a.failure(err)
	}
	if len(resp.Choices) == 0 {
		return nil, NewFailure(a.name, 0, CodeMalformed, "openai returned no choices", nil)
	}

	u := usage{
		prompt:     int(resp.Usage.PromptTokens),
		completion: int(resp.Usage.CompletionTokens),
		total:      int(resp.Usage.TotalTokens),
	}
	return a.finish(resp.Choices[0].Message.Content, estimated, u, start), nil
}

// GenerateStream sends a prompt to OpenAI and forwards content deltas as
// they arrive.
func (a *OpenAIAdapter) GenerateStream(ctx context.Context, prompt string, onToken func(string) error) (*Response, error) {
	if a.apiKey == "" {
		return nil, missingKey(a.name)
	}

	start := time.Now()
	estimated := a.CountTokens(prompt)
	fwd := &forwarder{fn: onToken, logger: a.logger}

	params := a.params(prompt)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	stream := a.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var content strings.Builder
	var u usage
	for stream.Next() {
		chunk := stream.Current()
		if chunk.Usage.TotalTokens > 0 {
			u = usage{
				prompt:     int(chunk.Usage.PromptTokens),
				completion: int(chunk.Usage.CompletionTokens),
				total:      int(chunk.Usage.TotalTokens),
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		content.WriteString(delta)
		fwd.send(delta)
	}
	if err := stream.Err(); err != nil {
		return nil, a.failure(err)
	}

	return a.finish(content.String(), estimated, u, start), nil
}

func (a *OpenAIAdapter) failure(err error) *Failure {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return NewFailure(a.name, apiErr.StatusCode, apiErr.Code, apiErr.Message, err)
	}
	return AsFailure(a.name, err)
}
