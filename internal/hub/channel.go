package hub

import "log/slog"

// Channel is a Subscriber backed by a buffered channel. When the buffer is
// full new events are dropped with a warning so a slow consumer cannot stall
// publishers.
type Channel struct {
	id    string
	kinds []Kind
	ch    chan Event
}

// NewChannel returns a Channel subscriber with the given buffer size.
func NewChannel(id string, size int, kinds ...Kind) *Channel {
	return &Channel{id: id, kinds: kinds, ch: make(chan Event, size)}
}

func (c *Channel) ID() string    { return c.id }
func (c *Channel) Kinds() []Kind { return c.kinds }

// C returns the receive side.
func (c *Channel) C() <-chan Event { return c.ch }

func (c *Channel) Send(ev Event) {
	select {
	case c.ch <- ev:
	default:
		slog.Warn("subscriber channel full, dropping", "subscriber", c.id, "kind", ev.Kind)
	}
}
