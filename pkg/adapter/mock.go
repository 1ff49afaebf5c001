package adapter

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/zen-systems/modelcompare/pkg/pricing"
	"github.com/zen-systems/modelcompare/pkg/tokens"
)

// MockAdapter returns deterministic responses for local runs and tests.
type MockAdapter struct {
	base
	responses       map[string]string
	defaultResponse string

	// Err, when set, fails every call with it.
	Err error
	// Delay is waited before answering; cancellation of ctx wins.
	Delay time.Duration
	// PromptTokens and CompletionTokens simulate backend-reported usage.
	// Zero means unreported.
	PromptTokens     int
	CompletionTokens int
	// Panic makes every call panic.
	Panic bool

	calls atomic.Int64
}

// NewMockAdapter creates a mock adapter with a default response. An empty
// name defaults to "mock".
func NewMockAdapter(name string, opts ...Option) *MockAdapter {
	return NewMockAdapterWithResponses(name, nil, "", opts...)
}

// NewMockAdapterWithResponses creates a mock adapter with predefined responses.
func NewMockAdapterWithResponses(name string, responses map[string]string, defaultResponse string, opts ...Option) *MockAdapter {
	if name == "" {
		name = "mock"
	}
	if defaultResponse == "" {
		defaultResponse = "mock response:"
	}
	if responses == nil {
		responses = make(map[string]string)
	}
	s := newSettings("mock-1", 0, opts)
	if s.rate == nil {
		if _, ok := s.pricingTable().Lookup(name, s.model); !ok {
			s.rate = &pricing.Rate{}
		}
	}
	return &MockAdapter{
		base:            newBase(name, s, tokens.GPT),
		responses:       responses,
		defaultResponse: defaultResponse,
	}
}

// Calls returns how many times the adapter has been invoked.
func (a *MockAdapter) Calls() int {
	return int(a.calls.Load())
}

// Generate returns a deterministic response for the prompt.
func (a *MockAdapter) Generate(ctx context.Context, prompt string) (*Response, error) {
	return a.GenerateStream(ctx, prompt, nil)
}

// GenerateStream returns the same content as Generate, delivered one word
// at a time.
func (a *MockAdapter) GenerateStream(ctx context.Context, prompt string, onToken func(string) error) (*Response, error) {
	a.calls.Add(1)
	if a.Panic {
		panic(fmt.Sprintf("mock adapter %s panicked", a.name))
	}

	start := time.Now()
	if a.Delay > 0 {
		timer := time.NewTimer(a.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, AsFailure(a.name, ctx.Err())
		case <-timer.C:
		}
	}
	if a.Err != nil {
		return nil, AsFailure(a.name, a.Err)
	}

	content, ok := a.responses[prompt]
	if !ok {
		content = fmt.Sprintf("%s\n%s", a.defaultResponse, prompt)
	}

	fwd := &forwarder{fn: onToken, logger: a.logger}
	for _, word := range strings.SplitAfter(content, " ") {
		fwd.send(word)
	}

	u := usage{prompt: a.PromptTokens, completion: a.CompletionTokens}
	if u.completion == 0 {
		u.completion = a.CountTokens(content)
	}
	return a.finish(content, a.CountTokens(prompt), u, start), nil
}
