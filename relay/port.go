package relay

import (
	"sync"

	"recorder-agent/dto"
)

// Delivery is the typed result of a best-effort send. The coordinator uses
// it only to prune its live-channel set, never to retry.
type Delivery int

const (
	Delivered Delivery = iota
	ChannelClosed
)

// Port is one endpoint of a bidirectional, in-order, at-most-once channel
// between two relay actors. Sends never block: a full peer buffer drops the
// message, a closed channel reports ChannelClosed.
type Port struct {
	name   string
	out    chan dto.RelayMessage
	in     chan dto.RelayMessage
	closed chan struct{}
	once   *sync.Once
}

// Pipe creates a connected pair of ports. Messages sent on one side arrive
// on the other in send order until either side closes.
func Pipe(name string, buffer int) (*Port, *Port) {
	if buffer < 1 {
		buffer = 16
	}
	ab := make(chan dto.RelayMessage, buffer)
	ba := make(chan dto.RelayMessage, buffer)
	closed := make(chan struct{})
	once := &sync.Once{}

	a := &Port{name: name, out: ab, in: ba, closed: closed, once: once}
	b := &Port{name: name, out: ba, in: ab, closed: closed, once: once}
	return a, b
}

func (p *Port) Name() string {
	return p.name
}

// Send validates the message at the boundary and delivers best-effort.
// Invalid messages are dropped and reported as Delivered; callers only act
// on ChannelClosed.
func (p *Port) Send(msg dto.RelayMessage) Delivery {
	if err := msg.Validate(); err != nil {
		return Delivered
	}
	select {
	case <-p.closed:
		return ChannelClosed
	default:
	}
	select {
	case p.out <- msg:
		return Delivered
	case <-p.closed:
		return ChannelClosed
	default:
		// Peer buffer full; live video favors dropping over queuing.
		return Delivered
	}
}

// Recv yields messages from the peer. Drain it together with Done: the
// channel is not closed on port close so in-flight messages stay readable.
func (p *Port) Recv() <-chan dto.RelayMessage {
	return p.in
}

// Done is closed once either endpoint closes the pipe.
func (p *Port) Done() <-chan struct{} {
	return p.closed
}

// Close tears the pipe down for both endpoints. Idempotent.
func (p *Port) Close() {
	p.once.Do(func() {
		close(p.closed)
	})
}

// Closed reports whether the pipe has been closed by either side.
func (p *Port) Closed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}
