package config

import (
	"fmt"
	"sort"
	"strings"
)

// ModelAliases manages model alias resolution and validation.
type ModelAliases struct {
	Aliases   map[string]string   `yaml:"aliases"`
	Providers map[string][]string `yaml:"providers"`
}

// ProviderSpec is one entry of the ordered provider list.
type ProviderSpec struct {
	Name  string
	Model string // empty means the adapter default
}

func (s ProviderSpec) String() string {
	if s.Model == "" {
		return s.Name
	}
	return s.Name + ":" + s.Model
}

// Resolve returns the canonical model name for an alias.
// If the input is not an alias, it returns the input unchanged.
func (a *ModelAliases) Resolve(modelOrAlias string) string {
	if a == nil || a.Aliases == nil {
		return modelOrAlias
	}
	if canonical, ok := a.Aliases[modelOrAlias]; ok {
		return canonical
	}
	return modelOrAlias
}

// IsAlias returns true if the given string is a known alias.
func (a *ModelAliases) IsAlias(name string) bool {
	if a == nil || a.Aliases == nil {
		return false
	}
	_, ok := a.Aliases[name]
	return ok
}

// IsProvider reports whether name is a known provider.
func (a *ModelAliases) IsProvider(name string) bool {
	if a == nil || a.Providers == nil {
		return false
	}
	_, ok := a.Providers[name]
	return ok
}

// Merge returns a copy of a with extra aliases layered on top.
func (a *ModelAliases) Merge(extra map[string]string) *ModelAliases {
	out := &ModelAliases{
		Aliases:   make(map[string]string),
		Providers: make(map[string][]string),
	}
	if a != nil {
		for k, v := range a.Aliases {
			out.Aliases[k] = v
		}
		for k, v := range a.Providers {
			out.Providers[k] = append([]string(nil), v...)
		}
	}
	for k, v := range extra {
		out.Aliases[k] = v
	}
	return out
}

// ListAliases returns a copy of the aliases map.
func (a *ModelAliases) ListAliases() map[string]string {
	if a == nil || a.Aliases == nil {
		return make(map[string]string)
	}
	result := make(map[string]string, len(a.Aliases))
	for k, v := range a.Aliases {
		result[k] = v
	}
	return result
}

// ListProviders returns a sorted list of provider names.
func (a *ModelAliases) ListProviders() []string {
	if a == nil || a.Providers == nil {
		return nil
	}
	providers := make([]string, 0, len(a.Providers))
	for p := range a.Providers {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	return providers
}

// GetProviderModels returns the known models for a given provider.
func (a *ModelAliases) GetProviderModels(provider string) []string {
	if a == nil || a.Providers == nil {
		return nil
	}
	return a.Providers[provider]
}

// ParseProviderSpecs parses "name" or "name:model" entries, resolving model
// aliases. Unknown providers and duplicates are rejected; the model itself
// is not checked, so new backend models work without a config change.
func ParseProviderSpecs(entries []string, aliases *ModelAliases) ([]ProviderSpec, error) {
	seen := make(map[string]bool, len(entries))
	specs := make([]ProviderSpec, 0, len(entries))
	for _, entry := range entries {
		name, model, _ := strings.Cut(strings.TrimSpace(entry), ":")
		name = strings.ToLower(strings.TrimSpace(name))
		model = strings.TrimSpace(model)

		if name == "" {
			return nil, fmt.Errorf("empty provider in %q", entry)
		}
		if !aliases.IsProvider(name) {
			return nil, fmt.Errorf("unknown provider %q (known: %s)", name, strings.Join(aliases.ListProviders(), ", "))
		}
		if seen[name] {
			return nil, fmt.Errorf("provider %q listed more than once", name)
		}
		seen[name] = true

		specs = append(specs, ProviderSpec{Name: name, Model: aliases.Resolve(model)})
	}
	return specs, nil
}

// DefaultAliases returns the default model aliases configuration.
func DefaultAliases() *ModelAliases {
	return &ModelAliases{
		Aliases: map[string]string{
			// OpenAI
			"gpt4":  "gpt-4",
			"gpt4o": "gpt-4o",
			"mini":  "gpt-4o-mini",
			// Anthropic
			"opus":   "claude-3-opus-20240229",
			"sonnet": "claude-3-5-sonnet-latest",
			"haiku":  "claude-3-5-haiku-latest",
			// xAI
			"grok":      "grok-3-latest",
			"grok-mini": "grok-3-mini-latest",
			// Google
			"flash": "gemini-2.0-flash",
			// DeepSeek
			"cheap":  "deepseek-chat",
			"reason": "deepseek-reasoner",
		},
		Providers: map[string][]string{
			"openai":    {"gpt-4", "gpt-4o", "gpt-4o-mini"},
			"anthropic": {"claude-3-opus-20240229", "claude-3-5-sonnet-latest", "claude-3-5-haiku-latest"},
			"xai":       {"grok-3-latest", "grok-3-mini-latest"},
			"google":    {"gemini-2.0-flash"},
			"deepseek":  {"deepseek-chat", "deepseek-reasoner"},
			"mock":      {"mock-1"},
		},
	}
}
