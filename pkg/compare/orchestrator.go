// Package compare fans one prompt out to every configured adapter and
// aggregates the settled outcomes.
package compare

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zen-systems/modelcompare/pkg/adapter"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Recorder observes every settled adapter call.
type Recorder interface {
	ObserveCall(provider, model, status string, latency time.Duration, cost float64, tokens int)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator's logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRecorder attaches a call recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// Orchestrator dispatches prompts to a fixed, ordered set of adapters.
type Orchestrator struct {
	adapters []adapter.Adapter
	logger   *zap.Logger
	recorder Recorder
}

// New creates an orchestrator over adapters. Order is preserved in every
// result.
func New(adapters []adapter.Adapter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		adapters: append([]adapter.Adapter(nil), adapters...),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Adapters returns the configured adapters in order.
func (o *Orchestrator) Adapters() []adapter.Adapter {
	return append([]adapter.Adapter(nil), o.adapters...)
}

// Run invokes every adapter concurrently and waits for all of them to
// settle. The result has one Outcome per adapter, in adapter order. A
// failing or slow adapter never cancels its siblings.
func (o *Orchestrator) Run(ctx context.Context, prompt string) []Outcome {
	outcomes := make([]Outcome, len(o.adapters))

	var g errgroup.Group
	for i, a := range o.adapters {
		g.Go(func() error {
			outcomes[i] = o.call(ctx, a, prompt, nil)
			return nil // don't cancel siblings
		})
	}
	_ = g.Wait()

	return outcomes
}

// Compare validates the prompt, runs every adapter and aggregates the
// successful responses. Provider failures are reported per outcome; only
// a blank prompt is an error.
func (o *Orchestrator) Compare(ctx context.Context, prompt string) (*Result, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	result := o.result(prompt, o.Run(ctx, prompt))
	o.logger.Info("comparison completed",
		zap.Int("providers", len(result.Outcomes)),
		zap.Int("succeeded", result.Succeeded()),
		zap.Int("failed", result.Failed()),
		zap.Int64("total_latency_ms", result.Metrics.TotalLatencyMs),
		zap.Float64("total_cost", result.Metrics.TotalCost),
	)
	return result, nil
}

func (o *Orchestrator) result(prompt string, outcomes []Outcome) *Result {
	return &Result{
		Prompt:   prompt,
		Outcomes: outcomes,
		Metrics:  Aggregate(successful(outcomes)),
	}
}

// call invokes one adapter and settles it into an Outcome. When onToken is
// set, content is forwarded as it is produced; adapters that cannot stream
// deliver their whole content as one fragment.
func (o *Orchestrator) call(ctx context.Context, a adapter.Adapter, prompt string, onToken func(string) error) (out Outcome) {
	name := a.Name()
	out = Outcome{Provider: name, Model: a.Model()}
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("adapter panicked",
				zap.String("provider", name),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			out.Status = StatusRejected
			out.Response = nil
			out.Failure = adapter.NewFailure(name, 0, adapter.CodeUnknown, "internal adapter error", fmt.Errorf("panic: %v", r))
		}
		o.observe(out, time.Since(start))
	}()

	var (
		resp *adapter.Response
		err  error
	)
	if s, ok := a.(adapter.Streamer); ok && onToken != nil {
		resp, err = s.GenerateStream(ctx, prompt, onToken)
	} else {
		resp, err = a.Generate(ctx, prompt)
		if err == nil && resp != nil && onToken != nil && resp.Content != "" {
			if sendErr := onToken(resp.Content); sendErr != nil {
				o.logger.Debug("token delivery failed", zap.String("provider", name), zap.Error(sendErr))
			}
		}
	}

	if err == nil && resp == nil {
		err = adapter.NewFailure(name, 0, adapter.CodeMalformed, "adapter returned no response", nil)
	}
	if err != nil {
		out.Status = StatusRejected
		out.Failure = adapter.AsFailure(name, err)
		o.logger.Warn("provider call failed",
			zap.String("provider", name),
			zap.String("model", out.Model),
			zap.String("code", out.Failure.Code),
			zap.Bool("retryable", out.Failure.Retryable),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return out
	}

	out.Status = StatusFulfilled
	out.Response = resp
	o.logger.Debug("provider call completed",
		zap.String("provider", name),
		zap.String("model", out.Model),
		zap.Int("tokens", resp.Metrics.TotalTokens),
		zap.Int64("latency_ms", resp.Metrics.LatencyMs),
	)
	return out
}

func (o *Orchestrator) observe(out Outcome, elapsed time.Duration) {
	if o.recorder == nil {
		return
	}
	var cost float64
	var tokens int
	if out.Response != nil {
		cost = out.Response.Metrics.Cost
		tokens = out.Response.Metrics.TotalTokens
		elapsed = time.Duration(out.Response.Metrics.LatencyMs) * time.Millisecond
	}
	o.recorder.ObserveCall(out.Provider, out.Model, string(out.Status), elapsed, cost, tokens)
}
