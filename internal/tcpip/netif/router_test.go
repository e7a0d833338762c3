package netif

import (
	"encoding/binary"
	"testing"

	"github.com/minnow-os/minnow/internal/tcpip/header"
)

func ipFromString(t *testing.T, a, b, c, d byte) [4]byte {
	t.Helper()
	return [4]byte{a, b, c, d}
}

func buildTestDatagram(t *testing.T, dst [4]byte, ttl uint8) []byte {
	t.Helper()
	hdr := header.IPv4Header{
		Length:   header.IPv4HeaderLength,
		TTL:      ttl,
		Protocol: header.IPv4ProtocolTCP,
		Src:      [4]byte{10, 0, 0, 1},
		Dst:      dst,
	}
	return hdr.Serialize()
}

func TestRouterLongestPrefixMatch(t *testing.T) {
	r := NewRouter(nil)

	iface0 := NewNetworkInterface(nil, header.Address{0, 0, 0, 0, 0, 1}, ipFromString(t, 192, 168, 0, 1))
	iface1 := NewNetworkInterface(nil, header.Address{0, 0, 0, 0, 0, 2}, ipFromString(t, 10, 0, 0, 1))
	n0 := r.AddInterface(iface0)
	n1 := r.AddInterface(iface1)

	defaultNextHop := ipFromString(t, 192, 168, 0, 254)
	r.AddRoute(0, 0, &defaultNextHop, n0)

	specificPrefix := binary.BigEndian.Uint32([]byte{10, 0, 0, 0})
	r.AddRoute(specificPrefix, 8, nil, n1)

	dst := ipFromString(t, 10, 1, 2, 3)
	dgram := buildTestDatagram(t, dst, 64)

	iface0.datagramsOut = append(iface0.datagramsOut, dgram)
	r.Route()

	// iface1 has no ARP entry for the destination yet, so the match produces
	// an ARP request (not the IPv4 frame itself) queued on the
	// longest-prefix-match interface.
	frames := iface1.FramesOut()
	if len(frames) != 1 {
		t.Fatalf("expected the longest-prefix route (iface1, direct) to queue a frame, got %d frames on iface1", len(frames))
	}
	if frames := iface0.FramesOut(); len(frames) != 0 {
		t.Fatalf("expected no frames queued on the default-route interface, got %d", len(frames))
	}
}

func TestRouterDropsExpiredTTL(t *testing.T) {
	r := NewRouter(nil)
	iface0 := NewNetworkInterface(nil, header.Address{0, 0, 0, 0, 0, 1}, ipFromString(t, 192, 168, 0, 1))
	n0 := r.AddInterface(iface0)

	nextHop := ipFromString(t, 192, 168, 0, 254)
	r.AddRoute(0, 0, &nextHop, n0)

	dgram := buildTestDatagram(t, ipFromString(t, 8, 8, 8, 8), 1)
	iface0.datagramsOut = append(iface0.datagramsOut, dgram)
	r.Route()

	if frames := iface0.FramesOut(); len(frames) != 0 {
		t.Fatalf("expected TTL<=1 datagram to be dropped, got %d frames", len(frames))
	}
}
