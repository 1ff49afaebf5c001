package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/zen-systems/modelcompare/pkg/pricing"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNormalizeUsage(t *testing.T) {
	cases := []struct {
		name      string
		estimated int
		in        usage
		want      Metrics
	}{
		{
			name:      "reported",
			estimated: 3,
			in:        usage{prompt: 10, completion: 20, total: 30},
			want:      Metrics{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
		},
		{
			name:      "prompt falls back to estimate",
			estimated: 7,
			in:        usage{completion: 5},
			want:      Metrics{PromptTokens: 7, CompletionTokens: 5, TotalTokens: 12},
		},
		{
			name:      "completion derived from total",
			estimated: 1,
			in:        usage{prompt: 4, total: 10},
			want:      Metrics{PromptTokens: 4, CompletionTokens: 6, TotalTokens: 10},
		},
		{
			name:      "nothing reported",
			estimated: 2,
			want:      Metrics{PromptTokens: 2, TotalTokens: 2},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := normalize(tc.estimated, tc.in); got != tc.want {
				t.Fatalf("normalize = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestRateResolution(t *testing.T) {
	a := NewOpenAIAdapter("")
	if got := a.CalculateCost(1000, 1000); math.Abs(got-0.09) > 1e-9 {
		t.Fatalf("default openai cost = %v, want 0.09", got)
	}

	pinned := NewOpenAIAdapter("", WithRate(pricing.Rate{PromptPer1K: 1, CompletionPer1K: 2}))
	if got := pinned.CalculateCost(500, 500); math.Abs(got-1.5) > 1e-9 {
		t.Fatalf("pinned cost = %v, want 1.5", got)
	}

	table := pricing.Table{"anthropic": {"claude-x": {PromptPer1K: 0.5, CompletionPer1K: 0.5}}}
	custom := NewAnthropicAdapter("", WithModel("claude-x"), WithPricing(table))
	if custom.Model() != "claude-x" {
		t.Fatalf("model = %q", custom.Model())
	}
	if got := custom.CalculateCost(1000, 0); math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("table cost = %v, want 0.5", got)
	}
}

func TestMissingKeyFailsWithoutNetwork(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	adapters := []Adapter{
		NewOpenAIAdapter("", WithBaseURL(srv.URL+"/")),
		NewAnthropicAdapter("", WithBaseURL(srv.URL+"/")),
		NewXAIAdapter("", WithBaseURL(srv.URL)),
		NewDeepSeekAdapter("", WithBaseURL(srv.URL)),
		NewGoogleAdapter("", WithBaseURL(srv.URL)),
	}
	for _, a := range adapters {
		_, err := a.Generate(context.Background(), "hi")
		var f *Failure
		if !errors.As(err, &f) {
			t.Fatalf("%s: expected *Failure, got %v", a.Name(), err)
		}
		if f.Code != CodeMissingAPIKey || f.Provider != a.Name() || f.Retryable {
			t.Fatalf("%s: unexpected failure %+v", a.Name(), f)
		}
	}
	if hits != 0 {
		t.Fatalf("expected no requests, got %d", hits)
	}
}

func TestXAIGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer xai-key" {
			t.Errorf("authorization = %q", got)
		}
		if got := r.Header.Get("x-api-version"); got != "1" {
			t.Errorf("x-api-version = %q", got)
		}

		var req compatRequest
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "grok-3-latest" || req.MaxTokens != 1000 || req.N != 1 || req.Temperature != 0.7 || req.Stream {
			t.Errorf("unexpected request %+v", req)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "hello" {
			t.Errorf("unexpected messages %+v", req.Messages)
		}

		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"Hi there"}}],"usage":{"prompt_tokens":12,"completion_tokens":3,"total_tokens":15}}`)
	}))
	defer srv.Close()

	a := NewXAIAdapter("xai-key", WithBaseURL(srv.URL))
	resp, err := a.Generate(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Provider != "xai" || resp.Model != "grok-3-latest" || resp.Content != "Hi there" {
		t.Fatalf("unexpected response %+v", resp)
	}
	m := resp.Metrics
	if m.PromptTokens != 12 || m.CompletionTokens != 3 || m.TotalTokens != 15 {
		t.Fatalf("unexpected metrics %+v", m)
	}
	if m.LatencyMs < 0 {
		t.Fatalf("negative latency %d", m.LatencyMs)
	}
	if want := (12*0.03 + 3*0.06) / 1000; math.Abs(m.Cost-want) > 1e-12 {
		t.Fatalf("cost = %v, want %v", m.Cost, want)
	}
}

func TestXAIFailures(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		body      string
		code      string
		message   string
		retryable bool
	}{
		{
			name:      "rate limit status",
			status:    http.StatusTooManyRequests,
			body:      `{"error":{"message":"slow down"}}`,
			code:      "429",
			message:   "slow down",
			retryable: true,
		},
		{
			name:      "rate limit code",
			status:    http.StatusBadRequest,
			body:      `{"error":{"message":"quota","code":"rate_limit_exceeded"}}`,
			code:      "rate_limit_exceeded",
			message:   "quota",
			retryable: true,
		},
		{
			name:      "rate limit message",
			status:    http.StatusServiceUnavailable,
			body:      `{"error":{"message":"Rate limit reached for grok"}}`,
			code:      "503",
			message:   "Rate limit reached for grok",
			retryable: true,
		},
		{
			name:    "non json body",
			status:  http.StatusBadGateway,
			body:    `<html>bad gateway</html>`,
			code:    "502",
			message: "API request failed with status 502",
		},
		{
			name:    "numeric code",
			status:  http.StatusUnauthorized,
			body:    `{"error":{"message":"bad key","code":401}}`,
			code:    "401",
			message: "bad key",
		},
		{
			name:    "missing content",
			status:  http.StatusOK,
			body:    `{"choices":[]}`,
			code:    CodeEmptyContent,
			message: "no content in response",
		},
		{
			name:    "malformed success",
			status:  http.StatusOK,
			body:    `{"choices":`,
			code:    CodeMalformed,
			message: "failed to parse response",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				fmt.Fprint(w, tc.body)
			}))
			defer srv.Close()

			_, err := NewXAIAdapter("key", WithBaseURL(srv.URL)).Generate(context.Background(), "hi")
			var f *Failure
			if !errors.As(err, &f) {
				t.Fatalf("expected *Failure, got %v", err)
			}
			if f.Provider != "xai" || f.Code != tc.code || f.Retryable != tc.retryable {
				t.Fatalf("unexpected failure %+v", f)
			}
			if !strings.Contains(f.Message, tc.message) {
				t.Fatalf("message = %q, want it to contain %q", f.Message, tc.message)
			}
			if IsRetryable(err) != tc.retryable {
				t.Fatalf("IsRetryable = %v", !tc.retryable)
			}
		})
	}
}

func TestDeepSeekStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req compatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream || req.StreamOptions == nil || !req.StreamOptions.IncludeUsage {
			t.Errorf("expected streaming request, got %+v", req)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: {broken\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[],\"usage\":{\"prompt_tokens\":4,\"completion_tokens\":2,\"total_tokens\":6}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	var got []string
	a := NewDeepSeekAdapter("ds-key", WithBaseURL(srv.URL))
	resp, err := a.GenerateStream(context.Background(), "hi", func(tok string) error {
		got = append(got, tok)
		return nil
	})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	if strings.Join(got, "|") != "Hel|lo" {
		t.Fatalf("tokens = %v", got)
	}
	if resp.Content != "Hello" || resp.Metrics.TotalTokens != 6 || resp.Metrics.CompletionTokens != 2 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestStreamConsumerErrorStopsForwarding(t *testing.T) {
	a := NewMockAdapterWithResponses("mock", map[string]string{"p": "one two three"}, "")

	var calls int
	resp, err := a.GenerateStream(context.Background(), "p", func(string) error {
		calls++
		return errors.New("client gone")
	})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected forwarding to stop after first error, got %d calls", calls)
	}
	if resp.Content != "one two three" {
		t.Fatalf("content = %q", resp.Content)
	}
}

func TestOpenAIGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"pong"}}],"usage":{"prompt_tokens":5,"completion_tokens":1,"total_tokens":6}}`)
	}))
	defer srv.Close()

	a := NewOpenAIAdapter("sk-test", WithBaseURL(srv.URL+"/"))
	resp, err := a.Generate(context.Background(), "ping")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Content != "pong" || resp.Metrics.PromptTokens != 5 || resp.Metrics.TotalTokens != 6 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestOpenAIRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`)
	}))
	defer srv.Close()

	_, err := NewOpenAIAdapter("sk-test", WithBaseURL(srv.URL+"/")).Generate(context.Background(), "ping")
	var f *Failure
	if !errors.As(err, &f) {
		t.Fatalf("expected *Failure, got %v", err)
	}
	if f.Provider != "openai" || f.Status != http.StatusTooManyRequests || !f.Retryable {
		t.Fatalf("unexpected failure %+v", f)
	}
}

func TestAsFailureTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	<-ctx.Done()

	f := AsFailure("xai", ctx.Err())
	if f.Code != CodeTimeout || f.Provider != "xai" {
		t.Fatalf("unexpected failure %+v", f)
	}

	wrapped := fmt.Errorf("call: %w", NewFailure("", 500, "", "boom", nil))
	f = AsFailure("openai", wrapped)
	if f.Provider != "openai" || f.Code != "500" {
		t.Fatalf("unexpected failure %+v", f)
	}
}

func TestMockAdapter(t *testing.T) {
	a := NewMockAdapter("")
	if a.Name() != "mock" || a.Model() != "mock-1" {
		t.Fatalf("unexpected identity %s/%s", a.Name(), a.Model())
	}
	resp, err := a.Generate(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Content != "mock response:\nhello" {
		t.Fatalf("content = %q", resp.Content)
	}
	if a.Calls() != 1 {
		t.Fatalf("calls = %d", a.Calls())
	}

	a.Err = errors.New("down")
	if _, err := a.Generate(context.Background(), "hello"); err == nil {
		t.Fatal("expected error")
	}

	slow := NewMockAdapter("slow")
	slow.Delay = time.Second
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = slow.Generate(ctx, "hello")
	var f *Failure
	if !errors.As(err, &f) || f.Provider != "slow" {
		t.Fatalf("expected cancellation failure, got %v", err)
	}
}

func TestUnpricedModelWarns(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	a := NewOpenAIAdapter("", WithModel("gpt-unknown"), WithPricing(pricing.Table{}), WithLogger(zap.New(core)))

	if got := a.CalculateCost(1000, 1000); got != 0 {
		t.Fatalf("cost = %v, want 0", got)
	}
	entries := logs.FilterMessage("no pricing for model; cost will be 0").All()
	if len(entries) != 1 {
		t.Fatalf("logged %d warnings, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["provider"] != "openai" || fields["model"] != "gpt-unknown" {
		t.Fatalf("fields = %v", fields)
	}
}

func TestPricedModelsDoNotWarn(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)

	NewOpenAIAdapter("", WithLogger(logger))
	NewAnthropicAdapter("", WithModel("claude-unlisted"), WithLogger(logger))
	NewOpenAIAdapter("", WithModel("gpt-unknown"), WithRate(pricing.Rate{}), WithLogger(logger))
	NewMockAdapter("", WithPricing(pricing.Defaults), WithLogger(logger))

	if n := logs.Len(); n != 0 {
		t.Fatalf("logged %d warnings, want 0: %v", n, logs.All())
	}
}

func TestAnthropicGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/messages" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("X-Api-Key"); got != "sk-ant" {
			t.Errorf("x-api-key = %q", got)
		}

		var req struct {
			Model     string `json:"model"`
			MaxTokens int    `json:"max_tokens"`
			System    []struct {
				Text string `json:"text"`
			} `json:"system"`
			Messages []struct {
				Role string `json:"role"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "claude-3-opus-20240229" || req.MaxTokens != 1024 {
			t.Errorf("unexpected request %+v", req)
		}
		if len(req.System) != 1 || req.System[0].Text != defaultSystemPrompt {
			t.Errorf("system = %+v", req.System)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("messages = %+v", req.Messages)
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-opus-20240229","content":[{"type":"text","text":"Hi there"}],"stop_reason":"end_turn","stop_sequence":null,"usage":{"input_tokens":12,"output_tokens":5}}`)
	}))
	defer srv.Close()

	a := NewAnthropicAdapter("sk-ant", WithBaseURL(srv.URL+"/"))
	resp, err := a.Generate(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Provider != "anthropic" || resp.Model != "claude-3-opus-20240229" || resp.Content != "Hi there" {
		t.Fatalf("unexpected response %+v", resp)
	}
	m := resp.Metrics
	if m.PromptTokens != 12 || m.CompletionTokens != 5 || m.TotalTokens != 17 {
		t.Fatalf("unexpected metrics %+v", m)
	}
	if want := (12*0.015 + 5*0.075) / 1000; math.Abs(m.Cost-want) > 1e-12 {
		t.Fatalf("cost = %v, want %v", m.Cost, want)
	}
}

func TestAnthropicStream(t *testing.T) {
	events := []struct{ name, data string }{
		{"message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-opus-20240229","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":12,"output_tokens":1}}}`},
		{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi"}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" there"}}`},
		{"content_block_stop", `{"type":"content_block_stop","index":0}`},
		{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":5}}`},
		{"message_stop", `{"type":"message_stop"}`},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Stream bool `json:"stream"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Error("expected streaming request")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range events {
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, ev.data)
		}
	}))
	defer srv.Close()

	var got []string
	a := NewAnthropicAdapter("sk-ant", WithBaseURL(srv.URL+"/"))
	resp, err := a.GenerateStream(context.Background(), "hello", func(tok string) error {
		got = append(got, tok)
		return nil
	})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	if strings.Join(got, "|") != "Hi| there" {
		t.Fatalf("tokens = %q", got)
	}
	if resp.Content != "Hi there" {
		t.Fatalf("content = %q", resp.Content)
	}
	if m := resp.Metrics; m.PromptTokens != 12 || m.CompletionTokens != 5 || m.TotalTokens != 17 {
		t.Fatalf("unexpected metrics %+v", m)
	}
}

func TestAnthropicRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`)
	}))
	defer srv.Close()

	_, err := NewAnthropicAdapter("sk-ant", WithBaseURL(srv.URL+"/")).Generate(context.Background(), "hello")
	var f *Failure
	if !errors.As(err, &f) {
		t.Fatalf("expected *Failure, got %v", err)
	}
	if f.Provider != "anthropic" || f.Code != "429" || f.Status != http.StatusTooManyRequests || !f.Retryable {
		t.Fatalf("unexpected failure %+v", f)
	}
	if !IsRetryable(err) {
		t.Fatal("expected rate limit to be retryable")
	}
}

func TestOpenAIStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Stream        bool `json:"stream"`
			StreamOptions struct {
				IncludeUsage bool `json:"include_usage"`
			} `json:"stream_options"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream || !req.StreamOptions.IncludeUsage {
			t.Errorf("expected streaming request with usage, got %+v", req)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"gpt-4\",\"choices\":[{\"index\":0,\"delta\":{\"role\":\"assistant\",\"content\":\"po\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"gpt-4\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"ng\"},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"gpt-4\",\"choices\":[],\"usage\":{\"prompt_tokens\":5,\"completion_tokens\":2,\"total_tokens\":7}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	var got []string
	a := NewOpenAIAdapter("sk-test", WithBaseURL(srv.URL+"/"))
	resp, err := a.GenerateStream(context.Background(), "ping", func(tok string) error {
		got = append(got, tok)
		return nil
	})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	if strings.Join(got, "|") != "po|ng" {
		t.Fatalf("tokens = %q", got)
	}
	if resp.Content != "pong" {
		t.Fatalf("content = %q", resp.Content)
	}
	if m := resp.Metrics; m.PromptTokens != 5 || m.CompletionTokens != 2 || m.TotalTokens != 7 {
		t.Fatalf("unexpected metrics %+v", m)
	}
}

func TestGoogleGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "models/gemini-2.0-flash:generateContent") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("X-Goog-Api-Key"); got != "g-key" {
			t.Errorf("x-goog-api-key = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"hola"}],"role":"model"},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":2,"totalTokenCount":5}}`)
	}))
	defer srv.Close()

	a := NewGoogleAdapter("g-key", WithBaseURL(srv.URL))
	resp, err := a.Generate(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Provider != "google" || resp.Model != "gemini-2.0-flash" || resp.Content != "hola" {
		t.Fatalf("unexpected response %+v", resp)
	}
	m := resp.Metrics
	if m.PromptTokens != 3 || m.CompletionTokens != 2 || m.TotalTokens != 5 {
		t.Fatalf("unexpected metrics %+v", m)
	}
	if want := (3*0.0001 + 2*0.0004) / 1000; math.Abs(m.Cost-want) > 1e-12 {
		t.Fatalf("cost = %v, want %v", m.Cost, want)
	}
}

func TestGoogleNoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"candidates":[]}`)
	}))
	defer srv.Close()

	_, err := NewGoogleAdapter("g-key", WithBaseURL(srv.URL)).Generate(context.Background(), "hello")
	var f *Failure
	if !errors.As(err, &f) || f.Code != CodeMalformed || f.Provider != "google" {
		t.Fatalf("expected malformed failure, got %v", err)
	}
}
