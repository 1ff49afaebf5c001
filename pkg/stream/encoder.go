package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

var (
	// ErrNotInitialized is returned when an event precedes init.
	ErrNotInitialized = errors.New("stream: init must be sent first")
	// ErrAlreadyInitialized is returned for a second init.
	ErrAlreadyInitialized = errors.New("stream: init already sent")
	// ErrStreamClosed is returned for any event after end.
	ErrStreamClosed = errors.New("stream: end already sent")
)

type flusher interface {
	Flush()
}

// Encoder writes events, one JSON object per line. It is safe for
// concurrent use; each event is written and flushed atomically.
type Encoder struct {
	mu      sync.Mutex
	w       io.Writer
	started bool
	closed  bool
}

// NewEncoder returns an encoder writing to w. If w can flush (an
// http.ResponseWriter, a bufio.Writer) it is flushed after every event.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Send writes one event. init must come first and end last.
func (e *Encoder) Send(ev Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.closed:
		return ErrStreamClosed
	case !e.started && ev.Type != TypeInit:
		return ErrNotInitialized
	case e.started && ev.Type == TypeInit:
		return ErrAlreadyInitialized
	}
	if err := ev.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Type, err)
	}
	data = append(data, '\n')
	if _, err := e.w.Write(data); err != nil {
		return fmt.Errorf("write %s event: %w", ev.Type, err)
	}

	switch ev.Type {
	case TypeInit:
		e.started = true
	case TypeEnd:
		e.closed = true
	}

	if f, ok := e.w.(flusher); ok {
		f.Flush()
	}
	return nil
}

// Closed reports whether end has been sent.
func (e *Encoder) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
