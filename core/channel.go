package core

import (
	"context"
	"sync"

	"github.com/hupe1980/actionmesh/logging"
)

// DefaultChannelBuffer is the per-subscriber buffer used when none is given.
const DefaultChannelBuffer = 64

// Publisher is implemented by anything events can be published to.
type Publisher interface {
	Publish(ctx context.Context, t EventType) error
}

// EventChannel delivers timestamped events to every subscriber in publish
// order. Each subscriber owns a bounded buffer; when it is full Publish blocks
// until the subscriber catches up or ctx is done, so events are never dropped
// or reordered.
type EventChannel struct {
	*loggerAdapter

	pubMu  sync.Mutex // serializes delivery
	subsMu sync.Mutex // guards subs and closed
	subs   []chan Event
	buffer int
	closed bool
	done   chan struct{}
}

// EventChannelOptions configures an EventChannel.
type EventChannelOptions struct {
	// Buffer is the per-subscriber capacity. Values < 1 use DefaultChannelBuffer.
	Buffer int
	Logger logging.Logger
}

// NewEventChannel creates an open EventChannel without subscribers.
func NewEventChannel(optFns ...func(o *EventChannelOptions)) *EventChannel {
	opts := EventChannelOptions{Buffer: DefaultChannelBuffer}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Buffer < 1 {
		opts.Buffer = DefaultChannelBuffer
	}
	return &EventChannel{
		loggerAdapter: newLoggerAdapter(opts.Logger),
		buffer:        opts.Buffer,
		done:          make(chan struct{}),
	}
}

// Subscribe registers a new consumer. It receives every event published after
// the call. The returned channel is closed by Close.
func (c *EventChannel) Subscribe() <-chan Event {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	ch := make(chan Event, c.buffer)
	if c.closed {
		close(ch)
		return ch
	}
	c.subs = append(c.subs, ch)
	return ch
}

// Publish stamps t and delivers it to all subscribers. It blocks while any
// subscriber buffer is full.
func (c *EventChannel) Publish(ctx context.Context, t EventType) error {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	c.subsMu.Lock()
	if c.closed {
		c.subsMu.Unlock()
		return ErrChannelClosed
	}
	subs := append([]chan Event(nil), c.subs...)
	c.subsMu.Unlock()

	ev := NewEvent(t)
	c.LogDebug("event.publish", "kind", t.Kind(), "id", ev.ID, "subscribers", len(subs))
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			c.LogWarn("event.subscriber.blocked", "kind", t.Kind(), "id", ev.ID)
			select {
			case ch <- ev:
			case <-ctx.Done():
				return ctx.Err()
			case <-c.done:
				return ErrChannelClosed
			}
		}
	}
	return nil
}

// Close stops delivery and closes every subscriber channel. Publishers blocked
// on a full buffer return ErrChannelClosed.
func (c *EventChannel) Close() {
	c.subsMu.Lock()
	if c.closed {
		c.subsMu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	c.subsMu.Unlock()

	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, ch := range c.subs {
		close(ch)
	}
	c.subs = nil
}
