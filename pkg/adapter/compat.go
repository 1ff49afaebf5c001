package adapter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// compatClient talks to OpenAI-compatible chat completion endpoints
// (xAI, DeepSeek).
type compatClient struct {
	provider   string
	apiKey     string
	baseURL    string
	httpClient *http.Client
	headers    map[string]string
	logger     *zap.Logger
}

type compatRequest struct {
	Model         string               `json:"model"`
	Messages      []compatMessage      `json:"messages"`
	MaxTokens     int                  `json:"max_tokens,omitempty"`
	Temperature   float64              `json:"temperature,omitempty"`
	N             int                  `json:"n,omitempty"`
	Stream        bool                 `json:"stream"`
	StreamOptions *compatStreamOptions `json:"stream_options,omitempty"`
}

type compatStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type compatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type compatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type compatError struct {
	Message string   `json:"message"`
	Type    string   `json:"type"`
	Code    flexCode `json:"code"`
}

type compatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *compatUsage `json:"usage"`
	Error *compatError `json:"error,omitempty"`
}

type compatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *compatUsage `json:"usage"`
	Error *compatError `json:"error,omitempty"`
}

// flexCode accepts string, numeric and null error codes.
type flexCode string

func (c *flexCode) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = flexCode(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*c = flexCode(n.String())
	return nil
}

func (c *compatClient) post(ctx context.Context, req compatRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimRight(c.baseURL, "/") + "/chat/completions"
	c.logger.Debug("sending chat completion request",
		zap.String("url", url),
		zap.String("model", req.Model),
		zap.Bool("stream", req.Stream),
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}

	return c.httpClient.Do(httpReq)
}

// complete performs one non-streaming request.
func (c *compatClient) complete(ctx context.Context, req compatRequest) (*compatResponse, error) {
	resp, err := c.post(ctx, req)
	if err != nil {
		return nil, AsFailure(c.provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, AsFailure(c.provider, fmt.Errorf("failed to read response body: %w", err))
	}

	c.logger.Debug("chat completion response",
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
	)

	var parsed compatResponse
	parseErr := json.Unmarshal(body, &parsed)

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusFailure(resp.StatusCode, &parsed, parseErr)
	}
	if parseErr != nil {
		return nil, NewFailure(c.provider, resp.StatusCode, CodeMalformed, "failed to parse response: "+parseErr.Error(), parseErr)
	}
	if parsed.Error != nil {
		return nil, NewFailure(c.provider, resp.StatusCode, string(parsed.Error.Code), parsed.Error.Message, nil)
	}
	return &parsed, nil
}

// stream performs one streaming request, calling onDelta for each content
// fragment. It returns the usage reported in the final chunk, if any.
func (c *compatClient) stream(ctx context.Context, req compatRequest, onDelta func(string)) (*compatUsage, error) {
	req.Stream = true
	req.StreamOptions = &compatStreamOptions{IncludeUsage: true}

	resp, err := c.post(ctx, req)
	if err != nil {
		return nil, AsFailure(c.provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		var parsed compatResponse
		parseErr := json.Unmarshal(body, &parsed)
		return nil, c.statusFailure(resp.StatusCode, &parsed, parseErr)
	}

	var u *compatUsage
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}

		var chunk compatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			c.logger.Debug("skipping malformed stream chunk", zap.Error(err))
			continue
		}
		if chunk.Error != nil {
			return nil, NewFailure(c.provider, 0, string(chunk.Error.Code), chunk.Error.Message, nil)
		}
		if chunk.Usage != nil {
			u = chunk.Usage
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				onDelta(choice.Delta.Content)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, AsFailure(c.provider, fmt.Errorf("read stream: %w", err))
	}
	return u, nil
}

func (c *compatClient) statusFailure(status int, parsed *compatResponse, parseErr error) *Failure {
	message := "API request failed with status " + strconv.Itoa(status)
	code := ""
	if parseErr == nil && parsed.Error != nil {
		if parsed.Error.Message != "" {
			message = parsed.Error.Message
		}
		code = string(parsed.Error.Code)
	}
	return NewFailure(c.provider, status, code, message, nil)
}

func (u *compatUsage) toUsage() usage {
	if u == nil {
		return usage{}
	}
	return usage{prompt: u.PromptTokens, completion: u.CompletionTokens, total: u.TotalTokens}
}
