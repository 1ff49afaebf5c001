package adapter

import (
	"context"
	"strings"
	"time"

	"github.com/zen-systems/modelcompare/pkg/tokens"
)

const xaiBaseURL = "https://api.x.ai/v1"

// XAIAdapter implements the Adapter interface for xAI's Grok models over
// their OpenAI-compatible REST API.
type XAIAdapter struct {
	base
	apiKey    string
	maxTokens int
	client    *compatClient
}

// NewXAIAdapter creates a new xAI adapter. An empty key is accepted; calls
// then fail with a missing_api_key Failure.
func NewXAIAdapter(apiKey string, opts ...Option) *XAIAdapter {
	s := newSettings("grok-3-latest", 1000, opts)
	if s.baseURL == "" {
		s.baseURL = xaiBaseURL
	}

	a := &XAIAdapter{
		base:      newBase("xai", s, tokens.GPT),
		apiKey:    apiKey,
		maxTokens: s.maxTokens,
	}
	a.client = &compatClient{
		provider:   a.name,
		apiKey:     apiKey,
		baseURL:    s.baseURL,
		httpClient: s.httpClient,
		headers:    map[string]string{"x-api-version": "1"},
		logger:     a.logger,
	}
	return a
}

func (a *XAIAdapter) request(prompt string) compatRequest {
	return compatRequest{
		Model: a.model,
		Messages: []compatMessage{
			{Role: "system", Content: defaultSystemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   a.maxTokens,
		Temperature: 0.7,
		N:           1,
	}
}

// Generate sends a prompt to xAI. A reply without message content is a
// failure.
func (a *XAIAdapter) Generate(ctx context.Context, prompt string) (*Response, error) {
	if a.apiKey == "" {
		return nil, missingKey(a.name)
	}

	start := time.Now()
	estimated := a.CountTokens(prompt)

	resp, err := a.client.complete(ctx, a.request(prompt))
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, NewFailure(a.name, 0, CodeEmptyContent, "no content in response", nil)
	}

	return a.finish(resp.Choices[0].Message.Content, estimated, resp.Usage.toUsage(), start), nil
}

// GenerateStream sends a prompt to xAI and forwards content as it arrives.
func (a *XAIAdapter) GenerateStream(ctx context.Context, prompt string, onToken func(string) error) (*Response, error) {
	if a.apiKey == "" {
		return nil, missingKey(a.name)
	}

	start := time.Now()
	estimated := a.CountTokens(prompt)
	fwd := &forwarder{fn: onToken, logger: a.logger}

	var content strings.Builder
	u, err := a.client.stream(ctx, a.request(prompt), func(delta string) {
		content.WriteString(delta)
		fwd.send(delta)
	})
	if err != nil {
		return nil, err
	}
	if content.Len() == 0 {
		return nil, NewFailure(a.name, 0, CodeEmptyContent, "no content in response", nil)
	}

	return a.finish(content.String(), estimated, u.toUsage(), start), nil
}
