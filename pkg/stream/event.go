// Package stream implements the newline-delimited JSON event protocol used
// to deliver comparison results incrementally.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zen-systems/modelcompare/pkg/adapter"
)

// ContentType is the media type of an event stream.
const ContentType = "application/x-ndjson"

// Type discriminates events.
type Type string

const (
	TypeInit     Type = "init"
	TypeToken    Type = "token"
	TypeComplete Type = "complete"
	TypeError    Type = "error"
	TypeEnd      Type = "end"
)

// ProviderRef names one provider announced by an init event.
type ProviderRef struct {
	Name string `json:"name"`
}

// Event is one line of the protocol. Which fields are set depends on Type.
type Event struct {
	Type      Type             `json:"type"`
	Providers []ProviderRef    `json:"providers,omitempty"`
	Provider  string           `json:"provider,omitempty"`
	Content   string           `json:"content,omitempty"`
	Metrics   *adapter.Metrics `json:"metrics,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Init announces every provider about to stream.
func Init(names ...string) Event {
	refs := make([]ProviderRef, len(names))
	for i, n := range names {
		refs[i] = ProviderRef{Name: n}
	}
	return Event{Type: TypeInit, Providers: refs}
}

// Token carries one content fragment for provider.
func Token(provider, content string) Event {
	return Event{Type: TypeToken, Provider: provider, Content: content}
}

// Complete finishes provider's stream with its final metrics.
func Complete(provider string, m adapter.Metrics) Event {
	return Event{Type: TypeComplete, Provider: provider, Metrics: &m}
}

// Error finishes provider's stream with a failure message.
func Error(provider, message string) Event {
	if message == "" {
		message = "unknown error"
	}
	return Event{Type: TypeError, Provider: provider, Error: message}
}

// End terminates the whole stream.
func End() Event {
	return Event{Type: TypeEnd}
}

// MarshalJSON always writes the providers list of an init event, even when
// it is empty.
func (e Event) MarshalJSON() ([]byte, error) {
	type wire Event
	if e.Type == TypeInit {
		providers := e.Providers
		if providers == nil {
			providers = []ProviderRef{}
		}
		return json.Marshal(struct {
			Type      Type          `json:"type"`
			Providers []ProviderRef `json:"providers"`
		}{e.Type, providers})
	}
	return json.Marshal(wire(e))
}

var errInvalidEvent = errors.New("invalid event")

// Validate checks that the event carries its type's required fields.
func (e Event) Validate() error {
	switch e.Type {
	case TypeInit, TypeEnd:
		return nil
	case TypeToken, TypeComplete, TypeError:
		if e.Provider == "" {
			return fmt.Errorf("%w: %s event without provider", errInvalidEvent, e.Type)
		}
		if e.Type == TypeComplete && e.Metrics == nil {
			return fmt.Errorf("%w: complete event without metrics", errInvalidEvent)
		}
		return nil
	case "":
		return fmt.Errorf("%w: missing type", errInvalidEvent)
	default:
		return fmt.Errorf("%w: unknown type %q", errInvalidEvent, e.Type)
	}
}
