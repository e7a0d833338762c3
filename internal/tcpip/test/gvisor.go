// Package test drives the tcpip/netif packages against a real, independent
// TCP/IP stack (gVisor) over an in-memory Ethernet channel, so the
// handshake/data-transfer/ARP behavior can be checked against an
// implementation that was never looking at this one's source.
package test

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"gvisor.dev/gvisor/pkg/buffer"
	gtcpip "gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/adapters/gonet"
	gheader "gvisor.dev/gvisor/pkg/tcpip/header"
	"gvisor.dev/gvisor/pkg/tcpip/link/channel"
	"gvisor.dev/gvisor/pkg/tcpip/link/ethernet"
	"gvisor.dev/gvisor/pkg/tcpip/network/arp"
	"gvisor.dev/gvisor/pkg/tcpip/network/ipv4"
	"gvisor.dev/gvisor/pkg/tcpip/stack"
	"gvisor.dev/gvisor/pkg/tcpip/transport/tcp"
	"gvisor.dev/gvisor/pkg/tcpip/transport/udp"

	"github.com/minnow-os/minnow/internal/tcpip/header"
	"github.com/minnow-os/minnow/internal/tcpip/netif"
)

const gvisorNICID gtcpip.NICID = 1

var (
	hostIP  = [4]byte{10, 42, 0, 1}
	guestIP = net.IPv4(10, 42, 0, 2)
)

// harness wires a netif.NetworkInterface (the side under test) to a real
// gVisor stack: frames written by either side are buffered and delivered to
// the other by a pair of pump goroutines, mirroring how an EventLoop would
// bridge the interface to a physical link.
type harness struct {
	tb testing.TB

	iface   *netif.NetworkInterface
	guestMA net.HardwareAddr

	gs *stack.Stack
	ch *channel.Endpoint

	cancel context.CancelFunc
}

func mustAddrFrom4(ip net.IP) gtcpip.Address {
	ip4 := ip.To4()
	if ip4 == nil {
		panic("expected IPv4 address")
	}
	var b [4]byte
	copy(b[:], ip4)
	return gtcpip.AddrFrom4(b)
}

func newHarness(tb testing.TB) *harness {
	tb.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	guestMA := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	iface := netif.NewNetworkInterface(logger, header.Address{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}, hostIP)

	ch := channel.New(4096, 1500+gheader.EthernetMinimumSize, gtcpip.LinkAddress(string(guestMA)))
	ep := ethernet.New(ch)
	gs := stack.New(stack.Options{
		NetworkProtocols:   []stack.NetworkProtocolFactory{ipv4.NewProtocol, arp.NewProtocol},
		TransportProtocols: []stack.TransportProtocolFactory{tcp.NewProtocol, udp.NewProtocol},
	})
	if err := gs.CreateNIC(gvisorNICID, ep); err != nil {
		tb.Fatalf("gvisor CreateNIC: %v", err)
	}
	if err := gs.AddProtocolAddress(gvisorNICID, gtcpip.ProtocolAddress{
		Protocol: ipv4.ProtocolNumber,
		AddressWithPrefix: gtcpip.AddressWithPrefix{
			Address:   mustAddrFrom4(guestIP),
			PrefixLen: 24,
		},
	}, stack.AddressProperties{}); err != nil {
		tb.Fatalf("gvisor AddProtocolAddress: %v", err)
	}
	gs.SetRouteTable([]gtcpip.Route{{
		Destination: gheader.IPv4EmptySubnet,
		Gateway:     mustAddrFrom4(net.IP(hostIP[:])),
		NIC:         gvisorNICID,
	}})

	h := &harness{tb: tb, iface: iface, guestMA: guestMA, gs: gs, ch: ch, cancel: cancel}

	// guest (gVisor) -> host (our interface)
	go func() {
		for {
			pkt := ch.ReadContext(ctx)
			if pkt == nil {
				return
			}
			frame := append([]byte(nil), pkt.ToView().AsSlice()...)
			pkt.DecRef()
			iface.RecvFrame(frame)
		}
	}()

	// host (our interface) -> guest (gVisor), polled since NetworkInterface
	// has no push/callback model of its own.
	go func() {
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, frame := range iface.FramesOut() {
					pkt := stack.NewPacketBuffer(stack.PacketBufferOptions{
						Payload: buffer.MakeWithData(append([]byte(nil), frame...)),
					})
					ch.InjectInbound(0, pkt)
				}
				iface.Tick(time.Millisecond)
			}
		}
	}()

	tb.Cleanup(func() {
		cancel()
		ch.Close()
	})
	return h
}

func parseEthType(frame []byte) uint16 {
	if len(frame) < 14 {
		return 0
	}
	return binary.BigEndian.Uint16(frame[12:14])
}

func (h *harness) dialFromGuest(dstPort uint16) (net.Conn, error) {
	return gonet.DialTCP(h.gs, gtcpip.FullAddress{
		NIC:  gvisorNICID,
		Addr: mustAddrFrom4(net.IP(hostIP[:])),
		Port: dstPort,
	}, ipv4.ProtocolNumber)
}
