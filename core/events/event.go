package events

import "latchain/core/types"

// Event represents a structured state change emitted by the node.
type Event interface {
	EventType() string
}

// Broadcastable is implemented by events that render into the wire form
// consumed by RPC subscribers and the indexer.
type Broadcastable interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer collects events in emission order.
type Buffer struct {
	events []Event
}

func (b *Buffer) Emit(evt Event) {
	if evt == nil {
		return
	}
	b.events = append(b.events, evt)
}

// Events returns the collected events.
func (b *Buffer) Events() []Event {
	return append([]Event(nil), b.events...)
}

// Reset drops the collected events.
func (b *Buffer) Reset() {
	b.events = nil
}

// Render converts events into their wire form, skipping any that have none.
func Render(evts []Event) []types.Event {
	out := make([]types.Event, 0, len(evts))
	for _, evt := range evts {
		b, ok := evt.(Broadcastable)
		if !ok {
			continue
		}
		if rendered := b.Event(); rendered != nil {
			out = append(out, *rendered)
		}
	}
	return out
}
