package netif

import (
	"testing"
	"time"

	"github.com/minnow-os/minnow/internal/tcpip/header"
)

func TestNetworkInterfaceARPRequestThenReply(t *testing.T) {
	a := NewNetworkInterface(nil, header.Address{1, 1, 1, 1, 1, 1}, [4]byte{10, 0, 0, 1})
	b := NewNetworkInterface(nil, header.Address{2, 2, 2, 2, 2, 2}, [4]byte{10, 0, 0, 2})

	a.SendDatagram([]byte("payload"), [4]byte{10, 0, 0, 2})

	frames := a.FramesOut()
	if len(frames) != 1 {
		t.Fatalf("expected one ARP request frame, got %d", len(frames))
	}

	b.RecvFrame(frames[0])
	reply := b.FramesOut()
	if len(reply) != 1 {
		t.Fatalf("expected one ARP reply frame, got %d", len(reply))
	}

	a.RecvFrame(reply[0])
	sent := a.FramesOut()
	if len(sent) != 1 {
		t.Fatalf("expected the queued datagram to flush after ARP resolved, got %d frames", len(sent))
	}

	var eth header.EthernetHeader
	rest, result := eth.Parse(sent[0])
	if result != header.NoError {
		t.Fatalf("parse flushed frame: %v", result)
	}
	if eth.EthType != header.EtherTypeIPv4 {
		t.Fatalf("flushed frame type: got %#x, want IPv4", eth.EthType)
	}
	if string(rest) != "payload" {
		t.Fatalf("flushed frame payload: got %q, want %q", rest, "payload")
	}

	// A second send to the same destination now hits the warm ARP cache.
	a.SendDatagram([]byte("more"), [4]byte{10, 0, 0, 2})
	sent = a.FramesOut()
	if len(sent) != 1 {
		t.Fatalf("expected cached ARP entry to avoid a second request, got %d frames", len(sent))
	}
}

func TestNetworkInterfaceARPCacheExpires(t *testing.T) {
	a := NewNetworkInterface(nil, header.Address{1, 1, 1, 1, 1, 1}, [4]byte{10, 0, 0, 1})
	a.arpCache[[4]byte{10, 0, 0, 2}] = arpEntry{mac: header.Address{2, 2, 2, 2, 2, 2}}

	a.Tick(31 * time.Second)

	a.SendDatagram([]byte("x"), [4]byte{10, 0, 0, 2})
	frames := a.FramesOut()
	if len(frames) != 1 {
		t.Fatalf("expected exactly one frame queued, got %d", len(frames))
	}
	var eth header.EthernetHeader
	eth.Parse(frames[0])
	if eth.EthType != header.EtherTypeARP {
		t.Fatalf("expected expired cache entry to force a fresh ARP request, got type %#x", eth.EthType)
	}
}
