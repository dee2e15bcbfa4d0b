package query

import (
	"context"
	"strings"
	"sync"

	"mnemosyne/internal/adapters/ai"
)

// EventType identifies one kind of stream event
type EventType string

const (
	EventStart EventType = "start"
	EventChunk EventType = "chunk"
	EventEnd   EventType = "end"
	EventError EventType = "error"
)

// Event is one framed unit of streamed output. Consumers receive events in
// strict arrival order: one start, zero or more chunks, then exactly one
// end or error. Nothing follows an error.
type Event struct {
	Type    EventType `json:"type"`
	Content string    `json:"content,omitempty"`
}

// Relay adapts a connector's chunk/error channel pair into typed events on
// a single consumer channel. The orchestrator owns the terminal event: Run
// emits start and chunks, then End or Fail closes the sequence. Calling Run
// again after a failed attempt resumes without a second start event, which
// lets a fallback retry stay invisible to the consumer.
type Relay struct {
	events    chan Event
	started   bool
	closeOnce sync.Once
}

// NewRelay creates a relay with a small delivery buffer
func NewRelay() *Relay {
	return &Relay{events: make(chan Event, 16)}
}

// Events returns the consumer side of the relay
func (r *Relay) Events() <-chan Event {
	return r.events
}

// Run consumes one upstream stream, forwarding content as chunk events.
// Returns the accumulated content, the provider-reported usage when the
// terminal chunk carried one, and the upstream error if delivery ended
// early. Cancelling ctx aborts with ctx.Err().
func (r *Relay) Run(ctx context.Context, chunks <-chan ai.ChatStreamChunk, errs <-chan error) (string, *ai.Usage, error) {
	if !r.started {
		if !r.send(ctx, Event{Type: EventStart}) {
			return "", nil, ctx.Err()
		}
		r.started = true
	}

	var content strings.Builder
	var usage *ai.Usage

	for {
		select {
		case <-ctx.Done():
			return content.String(), usage, ctx.Err()

		case chunk, ok := <-chunks:
			if !ok {
				// Stream closed; a buffered error means it ended early
				select {
				case err, ok := <-errs:
					if ok && err != nil {
						return content.String(), usage, err
					}
				default:
				}
				return content.String(), usage, nil
			}

			if chunk.Usage != nil {
				usage = chunk.Usage
			}
			if chunk.Content != "" {
				content.WriteString(chunk.Content)
				if !r.send(ctx, Event{Type: EventChunk, Content: chunk.Content}) {
					return content.String(), usage, ctx.Err()
				}
			}
		}
	}
}

// End emits the end event and closes the relay. Best effort like Fail: a
// consumer that stopped draining with a full buffer is not waited on.
func (r *Relay) End() {
	r.closeOnce.Do(func() {
		select {
		case r.events <- Event{Type: EventEnd}:
		default:
		}
		close(r.events)
	})
}

// Fail emits a terminal error event with a user-visible message and closes
// the relay. Best effort: a consumer that already went away is not waited on.
func (r *Relay) Fail(message string) {
	r.closeOnce.Do(func() {
		select {
		case r.events <- Event{Type: EventError, Content: message}:
		default:
		}
		close(r.events)
	})
}

// Abort closes the relay without a terminal event, for cancelled requests
// whose consumer is already gone
func (r *Relay) Abort() {
	r.closeOnce.Do(func() {
		close(r.events)
	})
}

func (r *Relay) send(ctx context.Context, e Event) bool {
	select {
	case r.events <- e:
		return true
	case <-ctx.Done():
		return false
	}
}
