package tunnel

import (
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
)

// UDPTunnel carries raw Ethernet frames between two minnow endpoints over a
// UDP socket instead of a TUN device, for running the stack without root
// (no TUNSETIFF ioctl needed) or across a NAT. Each UDP payload is exactly
// one frame; there is no additional framing.
type UDPTunnel struct {
	conn *net.UDPConn
	pc   *ipv4.PacketConn
	peer *net.UDPAddr
}

// DialUDPTunnel opens a UDP socket bound to localAddr (may be ":0") and
// fixes peerAddr as the only datagram destination/source accepted.
func DialUDPTunnel(localAddr, peerAddr string) (*UDPTunnel, error) {
	local, err := net.ResolveUDPAddr("udp4", localAddr)
	if err != nil {
		return nil, fmt.Errorf("tunnel: resolve local addr: %w", err)
	}
	peer, err := net.ResolveUDPAddr("udp4", peerAddr)
	if err != nil {
		return nil, fmt.Errorf("tunnel: resolve peer addr: %w", err)
	}
	conn, err := net.ListenUDP("udp4", local)
	if err != nil {
		return nil, fmt.Errorf("tunnel: listen udp: %w", err)
	}

	pc := ipv4.NewPacketConn(conn)
	// Ask for the source address on each read so a tunnel listening on a
	// wildcard address can still reject datagrams from anyone but peer.
	if err := pc.SetControlMessage(ipv4.FlagSrc, true); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tunnel: enable control messages: %w", err)
	}

	return &UDPTunnel{conn: conn, pc: pc, peer: peer}, nil
}

// Read implements FrameDevice: it returns the next frame received from peer,
// discarding datagrams from any other source.
func (t *UDPTunnel) Read(buf []byte) (int, error) {
	for {
		n, _, src, err := t.pc.ReadFrom(buf)
		if err != nil {
			return 0, err
		}
		udpSrc, ok := src.(*net.UDPAddr)
		if !ok || !udpSrc.IP.Equal(t.peer.IP) {
			continue
		}
		return n, nil
	}
}

// Write implements FrameDevice: it sends one frame to peer.
func (t *UDPTunnel) Write(frame []byte) (int, error) {
	return t.conn.WriteToUDP(frame, t.peer)
}

// Close releases the underlying UDP socket.
func (t *UDPTunnel) Close() error {
	return t.conn.Close()
}
