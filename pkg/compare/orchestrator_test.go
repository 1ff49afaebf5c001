package compare

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zen-systems/modelcompare/pkg/adapter"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeAdapter struct {
	name    string
	model   string
	delay   time.Duration
	err     error
	panics  bool
	content string
	metrics adapter.Metrics

	mu        sync.Mutex
	cancelled bool
}

func (f *fakeAdapter) Name() string  { return f.name }
func (f *fakeAdapter) Model() string { return f.model }

func (f *fakeAdapter) CountTokens(text string) int { return len(text) / 4 }

func (f *fakeAdapter) CalculateCost(int, int) float64 { return 0 }

func (f *fakeAdapter) Generate(ctx context.Context, prompt string) (*adapter.Response, error) {
	if f.panics {
		panic("boom")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			f.mu.Lock()
			f.cancelled = true
			f.mu.Unlock()
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &adapter.Response{
		Provider: f.name,
		Model:    f.model,
		Content:  f.content,
		Metrics:  f.metrics,
	}, nil
}

type recordedCall struct {
	provider string
	status   string
	tokens   int
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (r *fakeRecorder) ObserveCall(provider, model, status string, latency time.Duration, cost float64, tokens int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordedCall{provider: provider, status: status, tokens: tokens})
}

func TestRunPreservesAdapterOrder(t *testing.T) {
	adapters := []adapter.Adapter{
		&fakeAdapter{name: "slow", model: "s-1", delay: 40 * time.Millisecond, content: "s"},
		&fakeAdapter{name: "medium", model: "m-1", delay: 20 * time.Millisecond, content: "m"},
		&fakeAdapter{name: "fast", model: "f-1", content: "f"},
	}

	outcomes := New(adapters).Run(context.Background(), "hello")
	if len(outcomes) != len(adapters) {
		t.Fatalf("expected %d outcomes, got %d", len(adapters), len(outcomes))
	}
	for i, a := range adapters {
		if outcomes[i].Provider != a.Name() || outcomes[i].Model != a.Model() {
			t.Fatalf("outcome %d: got %s/%s, want %s/%s", i, outcomes[i].Provider, outcomes[i].Model, a.Name(), a.Model())
		}
		if outcomes[i].Status != StatusFulfilled {
			t.Fatalf("outcome %d: status %s", i, outcomes[i].Status)
		}
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	failing := &fakeAdapter{name: "broken", model: "b-1", err: adapter.NewFailure("broken", 429, "", "too many requests", nil)}
	slow := &fakeAdapter{name: "slow", model: "s-1", delay: 30 * time.Millisecond, content: "still here"}

	outcomes := New([]adapter.Adapter{failing, slow}).Run(context.Background(), "hello")

	if outcomes[0].Status != StatusRejected || outcomes[0].Response != nil {
		t.Fatalf("expected rejected outcome, got %+v", outcomes[0])
	}
	if outcomes[0].Failure.Provider != "broken" || !outcomes[0].Failure.Retryable {
		t.Fatalf("unexpected failure %+v", outcomes[0].Failure)
	}
	if outcomes[1].Status != StatusFulfilled || outcomes[1].Failure != nil {
		t.Fatalf("expected fulfilled outcome, got %+v", outcomes[1])
	}
	if outcomes[1].Response.Content != "still here" {
		t.Fatalf("content = %q", outcomes[1].Response.Content)
	}
	if slow.cancelled {
		t.Fatal("slow adapter was cancelled by its failing sibling")
	}
}

func TestRunAllRejected(t *testing.T) {
	adapters := []adapter.Adapter{
		&fakeAdapter{name: "a", err: errors.New("down")},
		&fakeAdapter{name: "b", err: errors.New("also down")},
	}

	result, err := New(adapters).Compare(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if len(result.Outcomes) != 2 || result.Failed() != 2 || result.Succeeded() != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	for _, o := range result.Outcomes {
		if o.Failure == nil || o.Failure.Code != adapter.CodeUnknown {
			t.Fatalf("expected unknown failure, got %+v", o.Failure)
		}
	}
	if result.Metrics != (Metrics{}) {
		t.Fatalf("expected neutral metrics, got %+v", result.Metrics)
	}
}

func TestRunRecoversPanics(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	adapters := []adapter.Adapter{
		&fakeAdapter{name: "panicky", panics: true},
		&fakeAdapter{name: "fine", content: "ok"},
	}

	outcomes := New(adapters, WithLogger(zap.New(core))).Run(context.Background(), "hello")
	if outcomes[0].Status != StatusRejected || outcomes[0].Failure.Message != "internal adapter error" {
		t.Fatalf("unexpected outcome %+v", outcomes[0])
	}
	if outcomes[1].Status != StatusFulfilled {
		t.Fatalf("sibling affected by panic: %+v", outcomes[1])
	}
	if logs.FilterMessage("adapter panicked").Len() != 1 {
		t.Fatalf("expected panic to be logged, got %v", logs.All())
	}
}

func TestCompareRejectsEmptyPrompt(t *testing.T) {
	mock := adapter.NewMockAdapter("mock")
	for _, prompt := range []string{"", "   \n\t"} {
		_, err := New([]adapter.Adapter{mock}).Compare(context.Background(), prompt)
		if !errors.Is(err, ErrEmptyPrompt) {
			t.Fatalf("prompt %q: expected ErrEmptyPrompt, got %v", prompt, err)
		}
	}
	if mock.Calls() != 0 {
		t.Fatalf("adapter invoked %d times for empty prompt", mock.Calls())
	}
}

func TestCompareAggregates(t *testing.T) {
	adapters := []adapter.Adapter{
		&fakeAdapter{name: "a", model: "a-1", metrics: adapter.Metrics{LatencyMs: 120, Cost: 0.02, TotalTokens: 100}},
		&fakeAdapter{name: "b", model: "b-1", metrics: adapter.Metrics{LatencyMs: 340, Cost: 0.01, TotalTokens: 100}},
		&fakeAdapter{name: "c", model: "c-1", err: errors.New("down")},
		&fakeAdapter{name: "d", model: "d-1", metrics: adapter.Metrics{LatencyMs: 90, Cost: 0.03, TotalTokens: 100}},
	}

	result, err := New(adapters).Compare(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if got := len(result.Successful()); got != 3 {
		t.Fatalf("expected 3 successful responses, got %d", got)
	}
	m := result.Metrics
	if m.TotalLatencyMs != 340 || m.FastestModel != "d-1" || m.MostCostEffectiveModel != "b-1" {
		t.Fatalf("unexpected metrics %+v", m)
	}
}

func TestRecorderObservesEveryCall(t *testing.T) {
	rec := &fakeRecorder{}
	adapters := []adapter.Adapter{
		&fakeAdapter{name: "ok", metrics: adapter.Metrics{TotalTokens: 7}},
		&fakeAdapter{name: "bad", err: errors.New("down")},
	}

	New(adapters, WithRecorder(rec)).Run(context.Background(), "hello")

	if len(rec.calls) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(rec.calls))
	}
	byProvider := map[string]recordedCall{}
	for _, c := range rec.calls {
		byProvider[c.provider] = c
	}
	if c := byProvider["ok"]; c.status != "fulfilled" || c.tokens != 7 {
		t.Fatalf("unexpected observation %+v", c)
	}
	if c := byProvider["bad"]; c.status != "rejected" {
		t.Fatalf("unexpected observation %+v", c)
	}
}
