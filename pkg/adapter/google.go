package adapter

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/zen-systems/modelcompare/pkg/tokens"
	"google.golang.org/genai"
)

// GoogleAdapter implements the Adapter interface for Gemini models. The
// client is created on first use so a missing key surfaces as a Failure.
type GoogleAdapter struct {
	base
	apiKey     string
	baseURL    string
	httpClient *http.Client

	mu     sync.Mutex
	client *genai.Client
}

// NewGoogleAdapter creates a new Google Gemini adapter.
func NewGoogleAdapter(apiKey string, opts ...Option) *GoogleAdapter {
	s := newSettings("gemini-2.0-flash", 0, opts)
	return &GoogleAdapter{
		base:       newBase("google", s, tokens.GPT),
		apiKey:     apiKey,
		baseURL:    s.baseURL,
		httpClient: s.httpClient,
	}
}

func (a *GoogleAdapter) getClient(ctx context.Context) (*genai.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		return a.client, nil
	}

	cfg := &genai.ClientConfig{
		APIKey:     a.apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: a.httpClient,
	}
	if a.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: a.baseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, AsFailure(a.name, err)
	}
	a.client = client
	return client, nil
}

// Generate sends a prompt to Gemini.
func (a *GoogleAdapter) Generate(ctx context.Context, prompt string) (*Response, error) {
	if a.apiKey == "" {
		return nil, missingKey(a.name)
	}
	client, err := a.getClient(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	estimated := a.CountTokens(prompt)

	resp, err := client.Models.GenerateContent(ctx, a.model, genai.Text(prompt), nil)
	if err != nil {
		return nil, a.failure(err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, NewFailure(a.name, 0, CodeMalformed, "google returned no candidates", nil)
	}

	return a.finish(candidateText(resp), estimated, usageMetadata(resp), start), nil
}

// GenerateStream sends a prompt to Gemini and forwards each streamed part.
func (a *GoogleAdapter) GenerateStream(ctx context.Context, prompt string, onToken func(string) error) (*Response, error) {
	if a.apiKey == "" {
		return nil, missingKey(a.name)
	}
	client, err := a.getClient(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	estimated := a.CountTokens(prompt)
	fwd := &forwarder{fn: onToken, logger: a.logger}

	var content strings.Builder
	var u usage
	for resp, err := range client.Models.GenerateContentStream(ctx, a.model, genai.Text(prompt), nil) {
		if err != nil {
			return nil, a.failure(err)
		}
		if resp == nil {
			continue
		}
		if m := usageMetadata(resp); m.total > 0 {
			u = m
		}
		text := candidateText(resp)
		content.WriteString(text)
		fwd.send(text)
	}

	return a.finish(content.String(), estimated, u, start), nil
}

func (a *GoogleAdapter) failure(err error) *Failure {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		return NewFailure(a.name, apiErr.Code, apiErr.Status, apiErr.Message, err)
	}
	f := AsFailure(a.name, err)
	if strings.Contains(err.Error(), "RESOURCE_EXHAUSTED") {
		f.Retryable = true
	}
	return f
}

func candidateText(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

func usageMetadata(resp *genai.GenerateContentResponse) usage {
	if resp.UsageMetadata == nil {
		return usage{}
	}
	return usage{
		prompt:     int(resp.UsageMetadata.PromptTokenCount),
		completion: int(resp.UsageMetadata.CandidatesTokenCount),
		total:      int(resp.UsageMetadata.TotalTokenCount),
	}
}
