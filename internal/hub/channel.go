package hub

import (
	"sync"

	"fleet-monitor/locintel/internal/errors"
)

var (
	// ErrChannelClosed is returned when sending to a channel that has been closed.
	ErrChannelClosed = errors.New("channel closed")

	// ErrChannelFull is returned when the peer is not draining its queue.
	ErrChannelFull = errors.New("channel buffer full")
)

// Event is one item delivered to a subscriber. A keep-alive has Comment set
// and no Name.
type Event struct {
	Name    string
	Data    []byte
	Comment string
}

// IsKeepAlive reports whether the event carries no payload.
func (e Event) IsKeepAlive() bool {
	return e.Name == "" && e.Comment != ""
}

// Channel is one live subscriber sink for an owner. Transports drain Events()
// until Done() is closed.
type Channel struct {
	id      uint64
	ownerID string

	queue chan Event
	done  chan struct{}
	once  sync.Once
}

func newChannel(id uint64, ownerID string, buffer int) *Channel {
	return &Channel{
		id:      id,
		ownerID: ownerID,
		queue:   make(chan Event, buffer),
		done:    make(chan struct{}),
	}
}

func (c *Channel) ID() uint64 { return c.id }
func (c *Channel) OwnerID() string { return c.ownerID }
func (c *Channel) Events() <-chan Event { return c.queue }
func (c *Channel) Done() <-chan struct{} { return c.done }

// Close marks the channel dead. It is safe to call more than once.
func (c *Channel) Close() {
	c.once.Do(func() { close(c.done) })
}

// send enqueues without blocking. The queue itself is never closed, so a
// racing Close cannot cause a send on a closed channel.
func (c *Channel) send(ev Event) error {
	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}

	select {
	case c.queue <- ev:
		return nil
	case <-c.done:
		return ErrChannelClosed
	default:
		return ErrChannelFull
	}
}
