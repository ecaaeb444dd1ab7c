package sse

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"
)

// DefaultKeepalive is the interval between keepalive comments.
const DefaultKeepalive = 15 * time.Second

// subscriberBuffer is the number of events queued per subscriber before
// new events are dropped for it.
const subscriberBuffer = 64

// ErrStreamingUnsupported is returned when the response writer cannot
// flush.
var ErrStreamingUnsupported = errors.New("streaming unsupported")

// Broker fans events out to subscribers. Slow subscribers lose events
// rather than block publishers.
type Broker struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	closed bool
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: map[chan Event]struct{}{}}
}

// Subscribe registers a subscriber. The returned function unsubscribes
// it; the channel is closed on unsubscribe or broker close.
func (b *Broker) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
	}
}

// Publish delivers event to every subscriber with room for it.
func (b *Broker) Publish(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribers returns the number of subscribers.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscriber channel and rejects new subscribers.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}

// Stream writes initial followed by every event published on b until
// ctx ends or the broker closes. keepalive <= 0 uses DefaultKeepalive.
func (b *Broker) Stream(ctx context.Context, w http.ResponseWriter, initial []Event, keepalive time.Duration) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return ErrStreamingUnsupported
	}
	if keepalive <= 0 {
		keepalive = DefaultKeepalive
	}

	events, unsubscribe := b.Subscribe()
	defer unsubscribe()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	enc := NewEncoder()
	write := func(event Event) error {
		msg, err := enc.FormatEvent(event)
		if err != nil {
			return err
		}
		if _, err := w.Write([]byte(msg)); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	for _, event := range initial {
		if err := write(event); err != nil {
			return err
		}
	}
	if len(initial) == 0 {
		flusher.Flush()
	}

	ticker := time.NewTicker(keepalive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if err := write(event); err != nil {
				return err
			}
		case <-ticker.C:
			if _, err := w.Write([]byte(enc.FormatKeepalive())); err != nil {
				return err
			}
			flusher.Flush()
		}
	}
}
