package events

import (
	"sync"

	"github.com/sirupsen/logrus"
)

const defaultBufferSize = 256

type subscriber struct {
	sink Sink
	ch   chan Event
	done chan struct{}
}

// Bus is a Sink that forwards events to other sinks. Each sink is served by
// its own goroutine through a buffered channel: a sink that falls behind
// loses events instead of slowing down the publisher, and a sink that panics
// only loses the event that caused the panic.
type Bus struct {
	mu          sync.RWMutex
	subscribers []*subscriber
	bufferSize  int
	closed      bool
	logger      *logrus.Entry
}

// NewBus creates a new event bus
func NewBus(logger *logrus.Entry) *Bus {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	return &Bus{
		bufferSize: defaultBufferSize,
		logger:     logger,
	}
}

// Attach adds a sink to the bus.
func (b *Bus) Attach(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	sub := &subscriber{
		sink: s,
		ch:   make(chan Event, b.bufferSize),
		done: make(chan struct{}),
	}
	b.subscribers = append(b.subscribers, sub)

	go b.serve(sub)
}

func (b *Bus) serve(sub *subscriber) {
	defer close(sub.done)
	for e := range sub.ch {
		b.deliver(sub.sink, e)
	}
}

func (b *Bus) deliver(s Sink, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithFields(logrus.Fields{
				"event": e.Type,
				"panic": r,
			}).Error("event sink panicked")
		}
	}()
	s.Notify(e)
}

// Notify implements Sink. It never blocks.
func (b *Bus) Notify(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subscribers {
		select {
		case sub.ch <- e:
		default:
			// Channel full, drop event for this subscriber
		}
	}
}

// Subscribe returns a channel that receives every event published after the
// call. Events are dropped when the channel is full.
func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, b.bufferSize)
	b.Attach(SinkFunc(func(e Event) {
		select {
		case ch <- e:
		default:
		}
	}))
	return ch
}

// SubscriberCount returns the number of attached sinks
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close stops accepting events and waits for the sinks to process the events
// already queued.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subscribers
	b.subscribers = nil
	for _, sub := range subs {
		close(sub.ch)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		<-sub.done
	}
}
