package storage

import (
	"context"
	"strings"
	"sync"
)

const subscriberBuffer = 64

type subscriber struct {
	prefix string
	ch     chan Event
	once   sync.Once
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.ch) })
}

type hub struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*subscriber
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[uint64]*subscriber)}
}

func (h *hub) subscribe(ctx context.Context, prefix string) (<-chan Event, func()) {
	sub := &subscriber{prefix: prefix, ch: make(chan Event, subscriberBuffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.stop()
		return sub.ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = sub
	h.mu.Unlock()

	if ctx == nil {
		return sub.ch, func() { h.remove(id) }
	}
	release := context.AfterFunc(ctx, func() { h.remove(id) })
	return sub.ch, func() {
		release()
		h.remove(id)
	}
}

func (h *hub) remove(id uint64) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	delete(h.subs, id)
	h.mu.Unlock()
	if ok {
		sub.stop()
	}
}

// publish never blocks: a subscriber whose buffer is full is dropped and
// must resubscribe.
func (h *hub) publish(evt Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subs {
		if !strings.HasPrefix(evt.Path, sub.prefix) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			delete(h.subs, id)
			sub.stop()
		}
	}
}

func (h *hub) size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		sub.stop()
	}
}
