package adapter

import (
	"context"
	"net/http"
	"time"

	"github.com/zen-systems/modelcompare/pkg/pricing"
	"github.com/zen-systems/modelcompare/pkg/tokens"
	"go.uber.org/zap"
)

// Adapter defines the interface for LLM provider adapters.
type Adapter interface {
	// Name returns the stable provider identifier.
	Name() string

	// Model returns the backend model identifier.
	Model() string

	// Generate sends a prompt to the backend. Every error it returns is a *Failure.
	Generate(ctx context.Context, prompt string) (*Response, error)

	// CountTokens estimates the token count of text locally.
	CountTokens(text string) int

	// CalculateCost prices prompt and completion tokens at the adapter's rate.
	CalculateCost(promptTokens, completionTokens int) float64
}

// Streamer is implemented by adapters that can deliver content incrementally.
// onToken is called sequentially, in generation order; returning an error
// stops forwarding but the call still settles into a Response or *Failure.
type Streamer interface {
	GenerateStream(ctx context.Context, prompt string, onToken func(string) error) (*Response, error)
}

// Option configures an adapter.
type Option func(*settings)

type settings struct {
	model      string
	baseURL    string
	httpClient *http.Client
	rate       *pricing.Rate
	table      pricing.Table
	maxTokens  int
	logger     *zap.Logger
}

// WithModel overrides the adapter's default model.
func WithModel(model string) Option {
	return func(s *settings) {
		if model != "" {
			s.model = model
		}
	}
}

// WithBaseURL overrides the backend endpoint.
func WithBaseURL(url string) Option {
	return func(s *settings) {
		s.baseURL = url
	}
}

// WithHTTPClient sets the HTTP client used for backend calls.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) {
		s.httpClient = c
	}
}

// WithRate pins the adapter to an explicit per-1k rate.
func WithRate(rate pricing.Rate) Option {
	return func(s *settings) {
		s.rate = &rate
	}
}

// WithPricing resolves the adapter's rate from table instead of pricing.Defaults.
func WithPricing(table pricing.Table) Option {
	return func(s *settings) {
		s.table = table
	}
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxTokens = n
		}
	}
}

// WithLogger sets a structured logger for the adapter.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

func newSettings(defaultModel string, defaultMaxTokens int, opts []Option) settings {
	s := settings{
		model:     defaultModel,
		maxTokens: defaultMaxTokens,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.httpClient == nil {
		s.httpClient = &http.Client{}
	}
	return s
}

func (s settings) pricingTable() pricing.Table {
	if s.table == nil {
		return pricing.Defaults
	}
	return s.table
}

// defaultSystemPrompt is sent by backends that accept a system message.
const defaultSystemPrompt = "You are a helpful AI assistant."

// base carries the identity, pricing and token strategy every adapter owns.
type base struct {
	name      string
	model     string
	rate      pricing.Rate
	estimator tokens.Estimator
	logger    *zap.Logger
}

func newBase(name string, s settings, est tokens.Estimator) base {
	b := base{
		name:      name,
		model:     s.model,
		estimator: est,
		logger:    s.logger.With(zap.String("provider", name)),
	}
	if s.rate != nil {
		b.rate = *s.rate
		return b
	}
	rate, ok := s.pricingTable().Lookup(name, s.model)
	if !ok {
		s.logger.Warn("no pricing for model; cost will be 0",
			zap.String("provider", name),
			zap.String("model", s.model),
		)
	}
	b.rate = rate
	return b
}

// Name returns the adapter identifier.
func (b *base) Name() string {
	return b.name
}

// Model returns the configured model.
func (b *base) Model() string {
	return b.model
}

// CountTokens estimates tokens with the adapter's estimator.
func (b *base) CountTokens(text string) int {
	return b.estimator.Count(text)
}

// CalculateCost prices tokens at the adapter's rate.
func (b *base) CalculateCost(promptTokens, completionTokens int) float64 {
	return b.rate.Cost(promptTokens, completionTokens)
}

// usage is what a backend reported; zero means "not reported".
type usage struct {
	prompt     int
	completion int
	total      int
}

// finish normalizes backend usage into Metrics and builds the Response.
func (b *base) finish(content string, estimated int, u usage, start time.Time) *Response {
	m := normalize(estimated, u)
	m.LatencyMs = time.Since(start).Milliseconds()
	m.Cost = b.CalculateCost(m.PromptTokens, m.CompletionTokens)
	return &Response{
		Provider: b.name,
		Model:    b.model,
		Content:  content,
		Metrics:  m,
	}
}

// forwarder delivers stream fragments to a caller callback until the
// callback first fails.
type forwarder struct {
	fn      func(string) error
	logger  *zap.Logger
	stopped bool
}

func (f *forwarder) send(fragment string) {
	if f.stopped || f.fn == nil || fragment == "" {
		return
	}
	if err := f.fn(fragment); err != nil {
		f.stopped = true
		f.logger.Debug("token consumer stopped", zap.Error(err))
	}
}

func normalize(estimated int, u usage) Metrics {
	m := Metrics{
		PromptTokens:     u.prompt,
		CompletionTokens: u.completion,
		TotalTokens:      u.total,
	}
	if m.PromptTokens <= 0 {
		m.PromptTokens = estimated
	}
	// Backends that only report a combined figure.
	if m.CompletionTokens <= 0 && m.TotalTokens > m.PromptTokens {
		m.CompletionTokens = m.TotalTokens - m.PromptTokens
	}
	if m.TotalTokens <= 0 {
		m.TotalTokens = m.PromptTokens + m.CompletionTokens
	}
	return m
}
