package adapter

import (
	"context"
	"time"

	"github.com/zen-systems/modelcompare/pkg/tokens"
)

const deepseekBaseURL = "https://api.deepseek.com/v1"

// DeepSeekAdapter implements the Adapter interface for DeepSeek models.
// DeepSeek uses an OpenAI-compatible API format.
type DeepSeekAdapter struct {
	base
	apiKey    string
	maxTokens int
	client    *compatClient
}

// NewDeepSeekAdapter creates a new DeepSeek adapter. An empty key is
// accepted; calls then fail with a missing_api_key Failure.
func NewDeepSeekAdapter(apiKey string, opts ...Option) *DeepSeekAdapter {
	s := newSettings("deepseek-chat", 4096, opts)
	if s.baseURL == "" {
		s.baseURL = deepseekBaseURL
	}

	a := &DeepSeekAdapter{
		base:      newBase("deepseek", s, tokens.GPT),
		apiKey:    apiKey,
		maxTokens: s.maxTokens,
	}
	a.client = &compatClient{
		provider:   a.name,
		apiKey:     apiKey,
		baseURL:    s.baseURL,
		httpClient: s.httpClient,
		logger:     a.logger,
	}
	return a
}

func (a *DeepSeekAdapter) request(prompt string) compatRequest {
	return compatRequest{
		Model: a.model,
		Messages: []compatMessage{
			{Role: "user", Content: prompt},
		},
		MaxTokens: a.maxTokens,
	}
}

// Generate sends a prompt to DeepSeek.
func (a *DeepSeekAdapter) Generate(ctx context.Context, prompt string) (*Response, error) {
	if a.apiKey == "" {
		return nil, missingKey(a.name)
	}

	start := time.Now()
	estimated := a.CountTokens(prompt)

	resp, err := a.client.complete(ctx, a.request(prompt))
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, NewFailure(a.name, 0, CodeMalformed, "deepseek returned no choices", nil)
	}

	return a.finish(resp.Choices[0].Message.Content, estimated, resp.Usage.toUsage(), start), nil
}

// GenerateStream sends a prompt to DeepSeek and forwards content as it arrives.
func (a *DeepSeekAdapter) GenerateStream(ctx context.Context, prompt string, onToken func(string) error) (*Response, error) {
	if a.apiKey == "" {
		return nil, missingKey(a.name)
	}

	start := time.Now()
	estimated := a.CountTokens(prompt)
	fwd := &forwarder{fn: onToken, logger: a.logger}

	var content []byte
	u, err := a.client.stream(ctx, a.request(prompt), func(delta string) {
		content = append(content, delta...)
		fwd.send(delta)
	})
	if err != nil {
		return nil, err
	}

	return a.finish(string(content), estimated, u.toUsage(), start), nil
}
