// Package tunnel provides the out-of-core adapter layer that the protocol
// packages (internal/tcpip, internal/tcpip/netif) need but deliberately do
// not implement themselves: a blocking tun/UDP transport, a goroutine-driven
// event loop that feeds frames into the single-threaded core, a table of
// TCP connections (Stack), DNS lookup, and pcap capture of frames.
package tunnel

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/minnow-os/minnow/internal/tcpip/netif"
)

// FrameDevice is anything an EventLoop can read raw Ethernet frames from and
// write them to.
type FrameDevice interface {
	io.Reader
	io.Writer
}

// EventLoop bridges a blocking FrameDevice to a NetworkInterface. One
// goroutine blocks on device reads and feeds them into an inbound channel;
// the Run loop itself stays single-threaded with respect to the interface,
// draining that channel and ticking the interface on its own schedule. This
// mirrors the two-thread handoff the reference stack uses to avoid
// re-entering its core while holding a lock: here there is no lock to begin
// with, because the channel is the only thing shared across goroutines.
type EventLoop struct {
	log    *slog.Logger
	device FrameDevice
	iface  *netif.NetworkInterface

	inbound chan []byte
	readErr chan error

	tickInterval time.Duration

	// poll, if set, runs after every frame the interface processes and
	// after every tick, before outbound frames are flushed, with the
	// elapsed time since the last tick (zero when called for a frame
	// rather than a tick). It is how a Stack drains newly-arrived IPv4
	// datagrams into TCPConnections and advances their retransmission
	// timers without EventLoop needing to know anything about TCP.
	poll func(elapsed time.Duration)
}

// OnPoll registers fn to run after each frame/tick the loop processes.
func (l *EventLoop) OnPoll(fn func(elapsed time.Duration)) {
	l.poll = fn
}

// NewEventLoop constructs an EventLoop reading/writing frames over device,
// feeding iface. The mtu argument is not used: reads go through a 64 KiB
// buffer and outgoing frames are written as the interface produced them.
func NewEventLoop(log *slog.Logger, device FrameDevice, iface *netif.NetworkInterface, mtu int) *EventLoop {
	if log == nil {
		log = slog.Default()
	}
	return &EventLoop{
		log:          log,
		device:       device,
		iface:        iface,
		inbound:      make(chan []byte, 256),
		readErr:      make(chan error, 1),
		tickInterval: 10 * time.Millisecond,
	}
}

// Run starts the reader goroutine and drives the interface until ctx is
// canceled or the device returns an error.
func (l *EventLoop) Run(ctx context.Context) error {
	go l.readLoop()

	ticker := time.NewTicker(l.tickInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-l.readErr:
			return err

		case frame := <-l.inbound:
			l.iface.RecvFrame(frame)
			if l.poll != nil {
				l.poll(0)
			}
			l.flushOutbound()

		case now := <-ticker.C:
			elapsed := now.Sub(last)
			last = now
			l.iface.Tick(elapsed)
			if l.poll != nil {
				l.poll(elapsed)
			}
			l.flushOutbound()
		}
	}
}

func (l *EventLoop) flushOutbound() {
	for _, frame := range l.iface.FramesOut() {
		if _, err := l.device.Write(frame); err != nil {
			l.log.Error("tunnel: write frame", "err", err)
		}
	}
}

func (l *EventLoop) readLoop() {
	buf := make([]byte, 65536)
	for {
		n, err := l.device.Read(buf)
		if err != nil {
			l.readErr <- err
			return
		}
		frame := append([]byte(nil), buf[:n]...)
		l.inbound <- frame
	}
}
