package stream

import (
	"errors"
	"io"
	"sync"

	"github.com/zen-systems/modelcompare/pkg/adapter"
)

// State is the lifecycle position of one provider slot.
type State string

const (
	// StatePending: announced by init, no content yet.
	StatePending State = "pending"
	// StateStreaming: at least one token received.
	StateStreaming State = "streaming"
	StateCompleted State = "completed"
	StateErrored   State = "errored"
	// StateIncomplete: the stream ended before the provider finished.
	StateIncomplete State = "incomplete"
)

// Terminal reports whether no further events change the slot.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateErrored || s == StateIncomplete
}

// Slot is the accumulated view of one provider's output.
type Slot struct {
	Provider string
	Content  string
	Metrics  *adapter.Metrics
	Error    string
	State    State
}

// Loading reports whether the slot is still waiting for its first token.
func (s Slot) Loading() bool {
	return s.State == StatePending
}

// Streaming reports whether the slot can still receive tokens.
func (s Slot) Streaming() bool {
	return s.State == StatePending || s.State == StateStreaming
}

// Accumulator folds events into per-provider slots. It is safe for
// concurrent use; events are applied one at a time.
type Accumulator struct {
	mu    sync.Mutex
	order []string
	slots map[string]*Slot
	ended bool
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{slots: make(map[string]*Slot)}
}

// Apply folds one event and reports whether it changed any slot. Tokens
// for unknown providers and events for finished slots are ignored.
func (a *Accumulator) Apply(ev Event) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch ev.Type {
	case TypeInit:
		a.order = a.order[:0]
		a.slots = make(map[string]*Slot, len(ev.Providers))
		a.ended = false
		for _, p := range ev.Providers {
			if _, dup := a.slots[p.Name]; dup {
				continue
			}
			a.order = append(a.order, p.Name)
			a.slots[p.Name] = &Slot{Provider: p.Name, State: StatePending}
		}
		return true

	case TypeToken:
		slot := a.open(ev.Provider)
		if slot == nil || ev.Content == "" {
			return false
		}
		slot.Content += ev.Content
		slot.State = StateStreaming
		return true

	case TypeComplete:
		slot := a.open(ev.Provider)
		if slot == nil {
			return false
		}
		if ev.Metrics != nil {
			m := *ev.Metrics
			slot.Metrics = &m
		}
		slot.State = StateCompleted
		return true

	case TypeError:
		slot := a.open(ev.Provider)
		if slot == nil {
			return false
		}
		slot.Error = ev.Error
		slot.State = StateErrored
		return true

	case TypeEnd:
		a.finish()
		return true
	}
	return false
}

// open returns the slot for provider if it can still change.
func (a *Accumulator) open(provider string) *Slot {
	slot, ok := a.slots[provider]
	if !ok || slot.State.Terminal() {
		return nil
	}
	return slot
}

func (a *Accumulator) finish() {
	a.ended = true
	for _, slot := range a.slots {
		if !slot.State.Terminal() {
			slot.State = StateIncomplete
		}
	}
}

// Finish forces every unfinished slot terminal, as an end event would.
func (a *Accumulator) Finish() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finish()
}

// Ended reports whether the stream has terminated.
func (a *Accumulator) Ended() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ended
}

// Slot returns a copy of provider's slot.
func (a *Accumulator) Slot(provider string) (Slot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	slot, ok := a.slots[provider]
	if !ok {
		return Slot{}, false
	}
	return *slot, true
}

// Slots returns copies of every slot in init order.
func (a *Accumulator) Slots() []Slot {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Slot, 0, len(a.order))
	for _, name := range a.order {
		out = append(out, *a.slots[name])
	}
	return out
}

// Consume decodes r until it is exhausted, applying every event. If r
// ends without an end event the slots are still finished. onEvent, when
// set, sees each event after it is applied.
func (a *Accumulator) Consume(r io.Reader, onEvent func(Event), opts ...DecoderOption) error {
	dec := NewDecoder(r, opts...)
	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			a.Finish()
			return nil
		}
		if err != nil {
			a.Finish()
			return err
		}
		a.Apply(ev)
		if onEvent != nil {
			onEvent(ev)
		}
	}
}
