package tunnel

import (
	"context"
	"log/slog"
	"time"

	"github.com/minnow-os/minnow/internal/tcpip/netif"
)

// RouterLink pairs one of a Router's interfaces with the device that
// carries its frames.
type RouterLink struct {
	Iface  *netif.NetworkInterface
	Device FrameDevice
}

type routerFrame struct {
	linkIndex int
	frame     []byte
}

// RouterEventLoop drives a netif.Router across N attached links the same
// way EventLoop drives a single interface: one reader goroutine per link
// feeds a shared channel, and the loop itself stays single-threaded,
// draining frames into the right interface and calling Router.Route after
// each batch so forwarding decisions never interleave with a link still
// being read.
type RouterEventLoop struct {
	log    *slog.Logger
	router *netif.Router
	links  []RouterLink

	inbound chan routerFrame
	readErr chan error

	tickInterval time.Duration
}

// NewRouterEventLoop constructs a RouterEventLoop forwarding between links
// via router. Every link must already have been attached to router with
// netif.Router.AddInterface, in the same order as links.
func NewRouterEventLoop(log *slog.Logger, router *netif.Router, links []RouterLink) *RouterEventLoop {
	if log == nil {
		log = slog.Default()
	}
	return &RouterEventLoop{
		log:          log,
		router:       router,
		links:        links,
		inbound:      make(chan routerFrame, 256),
		readErr:      make(chan error, len(links)),
		tickInterval: 10 * time.Millisecond,
	}
}

// Run starts one reader goroutine per link and forwards frames between them
// until ctx is canceled or a link's device errors.
func (l *RouterEventLoop) Run(ctx context.Context) error {
	for i := range l.links {
		go l.readLoop(i)
	}

	ticker := time.NewTicker(l.tickInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-l.readErr:
			return err

		case rf := <-l.inbound:
			l.links[rf.linkIndex].Iface.RecvFrame(rf.frame)
			l.router.Route()
			l.flushOutbound()

		case now := <-ticker.C:
			elapsed := now.Sub(last)
			last = now
			for _, link := range l.links {
				link.Iface.Tick(elapsed)
			}
			l.router.Route()
			l.flushOutbound()
		}
	}
}

func (l *RouterEventLoop) flushOutbound() {
	for _, link := range l.links {
		for _, frame := range link.Iface.FramesOut() {
			if _, err := link.Device.Write(frame); err != nil {
				l.log.Error("tunnel: write frame", "err", err)
			}
		}
	}
}

func (l *RouterEventLoop) readLoop(linkIndex int) {
	buf := make([]byte, 65536)
	for {
		n, err := l.links[linkIndex].Device.Read(buf)
		if err != nil {
			l.readErr <- err
			return
		}
		frame := append([]byte(nil), buf[:n]...)
		l.inbound <- routerFrame{linkIndex: linkIndex, frame: frame}
	}
}
