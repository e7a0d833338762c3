package tcpip

import (
	"testing"
	"time"

	"github.com/minnow-os/minnow/internal/tcpip/header"
)

func newTestConfig() TCPConfig {
	isn := NewWrappingInt32(12345)
	cfg := DefaultTCPConfig()
	cfg.FixedISN = &isn
	cfg.RetxTimeout = 50 * time.Millisecond
	return cfg
}

// TestTCPConnectionHandshake drives a full three-way handshake between two
// TCPConnections exchanging segments directly (no network layer involved).
func TestTCPConnectionHandshake(t *testing.T) {
	client := NewTCPConnection(newTestConfig())
	server := NewTCPConnection(newTestConfig())

	client.Connect()
	segs := client.SegmentsOut()
	if len(segs) != 1 || !segs[0].Header.Syn {
		t.Fatalf("expected a single SYN segment, got %+v", segs)
	}

	server.SegmentReceived(segs[0])
	segs = server.SegmentsOut()
	if len(segs) != 1 || !segs[0].Header.Syn || !segs[0].Header.Ack {
		t.Fatalf("expected a SYN/ACK segment, got %+v", segs)
	}

	client.SegmentReceived(segs[0])
	segs = client.SegmentsOut()
	if len(segs) != 1 || !segs[0].Header.Ack || segs[0].Header.Syn {
		t.Fatalf("expected a bare ACK segment, got %+v", segs)
	}

	server.SegmentReceived(segs[0])

	if client.State() != StateEstab {
		t.Fatalf("client state: got %s, want %s", client.State(), StateEstab)
	}
	if server.State() != StateEstab {
		t.Fatalf("server state: got %s, want %s", server.State(), StateEstab)
	}
}

// TestTCPConnectionDataTransfer sends a short message once the handshake
// above has established a connection, and checks it arrives intact.
func TestTCPConnectionDataTransfer(t *testing.T) {
	client := NewTCPConnection(newTestConfig())
	server := NewTCPConnection(newTestConfig())

	client.Connect()
	server.SegmentReceived(client.SegmentsOut()[0])
	client.SegmentReceived(server.SegmentsOut()[0])
	server.SegmentReceived(client.SegmentsOut()[0])

	client.Write([]byte("hello, world"))
	for _, seg := range client.SegmentsOut() {
		server.SegmentReceived(seg)
	}

	got := server.InboundStream().Read(64)
	if string(got) != "hello, world" {
		t.Fatalf("received data: got %q, want %q", got, "hello, world")
	}
}

// TestTCPConnectionRetransmitsAndGivesUp drives the retransmission timer
// past MaxRetxAttempts with no ACK ever arriving, and expects the
// connection to reset itself and go inactive. Each tick is long enough to
// expire the timer even after the RTO has doubled MaxRetxAttempts times.
func TestTCPConnectionRetransmitsAndGivesUp(t *testing.T) {
	cfg := newTestConfig()
	conn := NewTCPConnection(cfg)
	conn.Connect()
	conn.SegmentsOut() // drain the initial SYN

	for i := 0; i < MaxRetxAttempts+2 && conn.Active(); i++ {
		conn.Tick(cfg.RetxTimeout << MaxRetxAttempts)
	}

	if conn.Active() {
		t.Fatalf("connection still active after %d retransmission timeouts", MaxRetxAttempts+2)
	}
}

func TestTCPConnectionResetOnPeerRST(t *testing.T) {
	client := NewTCPConnection(newTestConfig())
	server := NewTCPConnection(newTestConfig())

	client.Connect()
	server.SegmentReceived(client.SegmentsOut()[0])
	client.SegmentReceived(server.SegmentsOut()[0])

	rst := &header.TCPSegment{Header: header.TCPHeader{Rst: true, Ack: true, SeqNo: 99999}}
	client.SegmentReceived(rst)

	if client.Active() {
		t.Fatalf("expected connection to be inactive after RST")
	}
	if !client.InboundStream().Error() {
		t.Fatalf("expected inbound stream to be marked errored after RST")
	}
}
