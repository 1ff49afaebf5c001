package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"go.uber.org/zap"
)

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithLogger logs skipped lines to l.
func WithLogger(l *zap.Logger) DecoderOption {
	return func(d *Decoder) {
		if l != nil {
			d.logger = l
		}
	}
}

// Decoder reads events from a line-delimited stream. Lines may arrive split
// across any number of reads. Malformed lines are skipped.
type Decoder struct {
	r       *bufio.Reader
	logger  *zap.Logger
	line    int
	skipped int
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader, opts ...DecoderOption) *Decoder {
	d := &Decoder{
		r:      bufio.NewReader(r),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Next returns the next valid event, or io.EOF once the input is exhausted.
// A final line without a trailing newline is still decoded.
func (d *Decoder) Next() (Event, error) {
	for {
		raw, readErr := d.r.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return Event{}, readErr
		}

		line := bytes.TrimSpace(raw)
		if len(line) > 0 {
			d.line++
			ev, err := decodeLine(line)
			if err == nil {
				return ev, nil
			}
			d.skipped++
			d.logger.Warn("skipping malformed stream line",
				zap.Int("line", d.line),
				zap.ByteString("data", truncate(line, 200)),
				zap.Error(err),
			)
		}

		if readErr != nil {
			return Event{}, io.EOF
		}
	}
}

// Skipped returns how many malformed lines have been dropped.
func (d *Decoder) Skipped() int {
	return d.skipped
}

func decodeLine(line []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return Event{}, err
	}
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	return ev, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
