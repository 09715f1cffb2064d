package tabmux

import (
	"errors"
	"sync"

	v1 "nepdora/contracts/tabmux/v1"
)

// Port is one attached view of a tenant socket. Post must never block the
// mux: return an error instead, which drops the port from the tenant.
type Port interface {
	Post(frame v1.Frame) error
}

var (
	// ErrPortClosed is returned by Post after Close.
	ErrPortClosed = errors.New("tabmux: port closed")
	// ErrPortBusy is returned when the port's buffer is full.
	ErrPortBusy = errors.New("tabmux: port buffer full")
)

// ChanPort is the channel-backed Port used by embedders: consume Frames from
// its channel, Close when the view goes away.
type ChanPort struct {
	frames chan v1.Frame

	done      chan struct{}
	closeOnce sync.Once
}

// NewChanPort constructs a port with a bounded frame buffer.
func NewChanPort(buffer int) *ChanPort {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChanPort{
		frames: make(chan v1.Frame, buffer),
		done:   make(chan struct{}),
	}
}

// Post delivers a frame without blocking. The frames channel is never closed,
// mirroring the send-queue idiom used by the server's realtime clients.
func (p *ChanPort) Post(frame v1.Frame) error {
	select {
	case <-p.done:
		return ErrPortClosed
	default:
	}

	select {
	case p.frames <- frame:
		return nil
	default:
		return ErrPortBusy
	}
}

// Frames returns the inbound frame channel.
func (p *ChanPort) Frames() <-chan v1.Frame { return p.frames }

// Done is closed when the port shuts down.
func (p *ChanPort) Done() <-chan struct{} { return p.done }

// Close marks the port dead (idempotent). It does not close the frames
// channel so concurrent Post calls stay safe.
func (p *ChanPort) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
	})
}
