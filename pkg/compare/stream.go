package compare

import (
	"context"
	"fmt"
	"strings"

	"github.com/zen-systems/modelcompare/pkg/stream"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// EventSink receives protocol events. *stream.Encoder satisfies it.
type EventSink interface {
	Send(stream.Event) error
}

// Stream runs a comparison while reporting progress to sink: init with
// every provider, token fragments as adapters produce them, complete or
// error per provider, then a single end once all adapters settle.
//
// A sink that stops accepting events does not cancel the adapters; the
// returned Result is the same one Compare would produce.
func (o *Orchestrator) Stream(ctx context.Context, prompt string, sink EventSink) (*Result, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	names := make([]string, len(o.adapters))
	for i, a := range o.adapters {
		names[i] = a.Name()
	}
	if err := sink.Send(stream.Init(names...)); err != nil {
		return nil, fmt.Errorf("send init: %w", err)
	}

	outcomes := make([]Outcome, len(o.adapters))

	var g errgroup.Group
	for i, a := range o.adapters {
		g.Go(func() error {
			name := a.Name()
			out := o.call(ctx, a, prompt, func(fragment string) error {
				return sink.Send(stream.Token(name, fragment))
			})

			var ev stream.Event
			if out.Status == StatusFulfilled {
				ev = stream.Complete(name, out.Response.Metrics)
			} else {
				ev = stream.Error(name, out.Failure.Message)
			}
			o.send(sink, ev)

			outcomes[i] = out
			return nil // don't cancel siblings
		})
	}
	_ = g.Wait()

	o.send(sink, stream.End())

	result := o.result(prompt, outcomes)
	o.logger.Info("streamed comparison completed",
		zap.Int("providers", len(result.Outcomes)),
		zap.Int("succeeded", result.Succeeded()),
		zap.Int("failed", result.Failed()),
	)
	return result, nil
}

func (o *Orchestrator) send(sink EventSink, ev stream.Event) {
	if err := sink.Send(ev); err != nil {
		o.logger.Debug("stream event dropped",
			zap.String("type", string(ev.Type)),
			zap.String("provider", ev.Provider),
			zap.Error(err),
		)
	}
}
