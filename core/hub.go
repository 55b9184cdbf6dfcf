package core

import (
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"

	"latchain/core/types"
)

const defaultSubscriberBuffer = 64

type subscriber struct {
	mu     sync.Mutex
	ch     chan *types.Receipt
	closed bool
}

func (s *subscriber) deliver(receipt *types.Receipt) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- receipt:
		return true
	default:
		return false
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// EventHub fans committed receipts out to subscribers. Slow subscribers lose
// receipts rather than stalling commits.
type EventHub struct {
	subs    *xsync.Map[uint64, *subscriber]
	nextID  atomic.Uint64
	dropped atomic.Uint64
}

func NewEventHub() *EventHub {
	return &EventHub{subs: xsync.NewMap[uint64, *subscriber]()}
}

// Subscribe registers a listener. The returned cancel func closes the channel
// and is safe to call more than once.
func (h *EventHub) Subscribe(buffer int) (<-chan *types.Receipt, func()) {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	id := h.nextID.Add(1)
	sub := &subscriber{ch: make(chan *types.Receipt, buffer)}
	h.subs.Store(id, sub)
	return sub.ch, func() {
		h.subs.Delete(id)
		sub.close()
	}
}

// Publish delivers receipt to every subscriber without blocking.
func (h *EventHub) Publish(receipt *types.Receipt) {
	if h == nil || receipt == nil {
		return
	}
	h.subs.Range(func(_ uint64, sub *subscriber) bool {
		if !sub.deliver(receipt) {
			h.dropped.Add(1)
		}
		return true
	})
}

// Subscribers reports the number of registered listeners.
func (h *EventHub) Subscribers() int { return h.subs.Size() }

// Dropped reports how many deliveries were skipped because a subscriber was
// full.
func (h *EventHub) Dropped() uint64 { return h.dropped.Load() }
