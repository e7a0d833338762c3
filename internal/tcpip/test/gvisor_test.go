package test

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/minnow-os/minnow/internal/tcpip"
	"github.com/minnow-os/minnow/internal/tcpip/header"
)

func TestGvisorARPRequestThenReply(t *testing.T) {
	h := newHarness(t)

	// Send a raw datagram so the interface has to resolve the guest's MAC
	// via ARP before it can flush the payload.
	h.iface.SendDatagram([]byte("probe"), [4]byte{10, 42, 0, 2})

	deadline := time.Now().Add(2 * time.Second)
	for {
		frames := h.iface.FramesOut()
		if len(frames) > 0 {
			for _, f := range frames {
				// Anything beyond the ARP exchange means the host resolved
				// the guest's address and flushed the queued datagram.
				if parseEthType(f) == header.EtherTypeIPv4 {
					return
				}
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for ARP resolution with gvisor")
		}
		time.Sleep(time.Millisecond)
	}
}

// acceptOne waits for exactly one inbound SYN addressed to localPort and
// returns a TCPConnection driving that exchange, feeding it every
// subsequent segment addressed to the same four-tuple.
func acceptOne(t *testing.T, h *harness, localPort uint16) *tcpip.TCPConnection {
	t.Helper()
	conn := tcpip.NewTCPConnection(tcpip.DefaultTCPConfig())

	var remoteIP [4]byte
	var remotePort uint16
	var established bool

	deadline := time.Now().Add(2 * time.Second)
	for !established {
		for _, dgram := range h.iface.DatagramsOut() {
			var ip header.IPv4Header
			payload, result := ip.Parse(dgram)
			if result != header.NoError || ip.Protocol != header.IPv4ProtocolTCP {
				continue
			}
			var seg header.TCPSegment
			if seg.Parse(payload, ip.PseudoSum()) != header.NoError {
				continue
			}
			if seg.Header.DstPort != localPort {
				continue
			}
			remoteIP, remotePort = ip.Src, seg.Header.SrcPort
			conn.SegmentReceived(&seg)
			established = true
		}
		if established {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for inbound SYN on port %d", localPort)
		}
		time.Sleep(time.Millisecond)
	}

	go func() {
		for conn.Active() {
			for _, dgram := range h.iface.DatagramsOut() {
				var ip header.IPv4Header
				payload, result := ip.Parse(dgram)
				if result != header.NoError || ip.Protocol != header.IPv4ProtocolTCP {
					continue
				}
				var seg header.TCPSegment
				if seg.Parse(payload, ip.PseudoSum()) != header.NoError {
					continue
				}
				if seg.Header.DstPort != localPort || ip.Src != remoteIP || seg.Header.SrcPort != remotePort {
					continue
				}
				conn.SegmentReceived(&seg)
			}
			for _, seg := range conn.SegmentsOut() {
				seg.Header.SrcPort = localPort
				seg.Header.DstPort = remotePort
				ip := header.IPv4Header{
					Length:   header.IPv4HeaderLength + uint16(header.TCPHeaderLength+len(seg.Payload)),
					TTL:      header.IPv4DefaultTTL,
					Protocol: header.IPv4ProtocolTCP,
					Src:      hostIP,
					Dst:      remoteIP,
				}
				wire := seg.Serialize(ip.PseudoSum())
				h.iface.SendDatagram(append(ip.Serialize(), wire...), remoteIP)
			}
			time.Sleep(time.Millisecond)
		}
	}()

	return conn
}

func TestGvisorTCPHandshakeAndEcho(t *testing.T) {
	h := newHarness(t)
	const port = 7070

	// The dial blocks until the handshake completes and acceptOne blocks
	// until the guest's SYN arrives, so the dial runs concurrently.
	type dialResult struct {
		conn net.Conn
		err  error
	}
	dialed := make(chan dialResult, 1)
	go func() {
		c, err := h.dialFromGuest(port)
		dialed <- dialResult{c, err}
	}()

	conn := acceptOne(t, h, port)

	res := <-dialed
	if res.err != nil {
		t.Fatalf("gvisor dial: %v", res.err)
	}
	guestConn := res.conn
	defer guestConn.Close()

	if _, err := guestConn.Write([]byte("hello from gvisor")); err != nil {
		t.Fatalf("gvisor write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for conn.InboundStream().BufferSize() < len("hello from gvisor") {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for data to arrive at the host connection")
		}
		time.Sleep(time.Millisecond)
	}
	got := string(conn.InboundStream().Read(64))
	if got != "hello from gvisor" {
		t.Fatalf("got %q, want %q", got, "hello from gvisor")
	}

	conn.Write([]byte("hello from host"))
	conn.EndInputStream()

	buf := make([]byte, 64)
	n := 0
	for n < len("hello from host") {
		m, err := guestConn.Read(buf[n:])
		n += m
		if err != nil && err != io.EOF {
			t.Fatalf("gvisor read: %v", err)
		}
		if err == io.EOF {
			break
		}
	}
	if string(buf[:n]) != "hello from host" {
		t.Fatalf("got %q, want %q", buf[:n], "hello from host")
	}
}
