package pricing

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rate defines per-1k token pricing in USD.
type Rate struct {
	PromptPer1K     float64 `yaml:"prompt_per_1k"`
	CompletionPer1K float64 `yaml:"completion_per_1k"`
}

// Cost prices a call from its prompt and completion token counts.
func (r Rate) Cost(promptTokens, completionTokens int) float64 {
	if promptTokens < 0 {
		promptTokens = 0
	}
	if completionTokens < 0 {
		completionTokens = 0
	}
	return (float64(promptTokens)*r.PromptPer1K + float64(completionTokens)*r.CompletionPer1K) / 1000.0
}

// Table maps provider -> model -> rate. A "default" model entry applies to
// any model of that provider without its own row.
type Table map[string]map[string]Rate

// Defaults holds the built-in rates for every supported provider.
var Defaults = Table{
	"openai": {
		"gpt-4":   {PromptPer1K: 0.03, CompletionPer1K: 0.06},
		"default": {PromptPer1K: 0.03, CompletionPer1K: 0.06},
	},
	"anthropic": {
		"claude-3-opus-20240229": {PromptPer1K: 0.015, CompletionPer1K: 0.075},
		"default":                {PromptPer1K: 0.015, CompletionPer1K: 0.075},
	},
	"xai": {
		"grok-3-latest": {PromptPer1K: 0.03, CompletionPer1K: 0.06},
		"default":       {PromptPer1K: 0.03, CompletionPer1K: 0.06},
	},
	"google": {
		"gemini-2.0-flash": {PromptPer1K: 0.0001, CompletionPer1K: 0.0004},
		"default":          {PromptPer1K: 0.00125, CompletionPer1K: 0.01},
	},
	"deepseek": {
		"deepseek-chat": {PromptPer1K: 0.00014, CompletionPer1K: 0.00028},
		"default":       {PromptPer1K: 0.00055, CompletionPer1K: 0.00219},
	},
}

// Lookup returns the rate for provider/model, falling back to the provider's
// "default" entry.
func (t Table) Lookup(provider, model string) (Rate, bool) {
	if t == nil {
		return Rate{}, false
	}
	models, ok := t[provider]
	if !ok {
		return Rate{}, false
	}
	if rate, ok := models[model]; ok {
		return rate, true
	}
	if rate, ok := models["default"]; ok {
		return rate, true
	}
	return Rate{}, false
}

// Merge returns a new table with the entries of other layered over t.
func (t Table) Merge(other Table) Table {
	out := make(Table, len(t)+len(other))
	for provider, models := range t {
		out[provider] = make(map[string]Rate, len(models))
		for model, rate := range models {
			out[provider][model] = rate
		}
	}
	for provider, models := range other {
		if out[provider] == nil {
			out[provider] = make(map[string]Rate, len(models))
		}
		for model, rate := range models {
			out[provider][model] = rate
		}
	}
	return out
}

type fileTable struct {
	Pricing Table `yaml:"pricing"`
}

// LoadFile reads a pricing override file and merges it over Defaults.
//
//	pricing:
//	  openai:
//	    gpt-4o:
//	      prompt_per_1k: 0.0025
//	      completion_per_1k: 0.01
func LoadFile(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing file: %w", err)
	}

	var ft fileTable
	if err := yaml.Unmarshal(data, &ft); err != nil {
		return nil, fmt.Errorf("parse pricing file %s: %w", path, err)
	}

	return Defaults.Merge(ft.Pricing), nil
}
