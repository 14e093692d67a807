// Package stream fans committed escrow events out to live subscribers
// (the SSE endpoint) and keeps a short replay buffer for reconnects.
package stream

import (
	"context"
	"sync"

	"amanat.org/internal/escrow"
)

const (
	defaultBacklog = 256
	subscriberBuf  = 16
)

// Stream fan-outs escrow events to all active subscribers.
type Stream struct {
	mu      sync.RWMutex
	subs    map[int]chan escrow.Event
	next    int
	backlog []escrow.Event
	keep    int
}

var _ escrow.EventSink = (*Stream)(nil)

// New initialises an empty stream retaining up to backlog recent events.
func New(backlog int) *Stream {
	if backlog <= 0 {
		backlog = defaultBacklog
	}
	return &Stream{
		subs: make(map[int]chan escrow.Event),
		keep: backlog,
	}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. Retained events with an id greater than afterID are delivered
// first. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context, afterID string) <-chan escrow.Event {
	s.mu.Lock()
	var replay []escrow.Event
	if afterID != "" {
		for _, evt := range s.backlog {
			// Event ids are ULIDs, so lexical order is emission order.
			if evt.ID > afterID {
				replay = append(replay, evt)
			}
		}
	}
	ch := make(chan escrow.Event, subscriberBuf+len(replay))
	for _, evt := range replay {
		ch <- evt
	}
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Emit retains the event and fan-outs it to all subscribers.
func (s *Stream) Emit(_ context.Context, evt escrow.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backlog = append(s.backlog, evt)
	if over := len(s.backlog) - s.keep; over > 0 {
		s.backlog = append(s.backlog[:0], s.backlog[over:]...)
	}
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}

// Subscribers returns the number of live subscribers.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
