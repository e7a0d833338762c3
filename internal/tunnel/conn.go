package tunnel

import (
	"log/slog"
	"time"

	"github.com/minnow-os/minnow/internal/tcpip"
	"github.com/minnow-os/minnow/internal/tcpip/header"
	"github.com/minnow-os/minnow/internal/tcpip/netif"
)

// fourTuple identifies a TCP connection by its endpoints.
type fourTuple struct {
	localIP    [4]byte
	localPort  uint16
	remoteIP   [4]byte
	remotePort uint16
}

// Stack glues a NetworkInterface to a table of TCPConnections: it
// demultiplexes inbound IPv4/TCP datagrams to the right connection by port,
// serializes each connection's outgoing segments into IPv4 datagrams, and
// ticks every open connection on the same schedule as the interface.
type Stack struct {
	log   *slog.Logger
	iface *netif.NetworkInterface

	conns map[fourTuple]*tcpip.TCPConnection
}

// NewStack constructs a Stack driving connections over iface.
func NewStack(log *slog.Logger, iface *netif.NetworkInterface) *Stack {
	if log == nil {
		log = slog.Default()
	}
	return &Stack{
		log:   log,
		iface: iface,
		conns: make(map[fourTuple]*tcpip.TCPConnection),
	}
}

// Dial actively opens a TCP connection to remoteIP:remotePort from
// localPort, returning the TCPConnection once its SYN has been queued.
func (s *Stack) Dial(localPort uint16, remoteIP [4]byte, remotePort uint16) *tcpip.TCPConnection {
	conn := tcpip.NewTCPConnection(tcpip.DefaultTCPConfig())
	key := fourTuple{localIP: s.iface.IP(), localPort: localPort, remoteIP: remoteIP, remotePort: remotePort}
	s.conns[key] = conn

	conn.Connect()
	s.flush(conn, key)
	return conn
}

// DeliverDatagram processes one inbound IPv4 datagram: if it carries TCP
// addressed to a known connection, the segment is handed to that
// connection and any reply segments are flushed back out.
func (s *Stack) DeliverDatagram(raw []byte) {
	var ip header.IPv4Header
	payload, result := ip.Parse(raw)
	if result != header.NoError || ip.Protocol != header.IPv4ProtocolTCP {
		return
	}

	var seg header.TCPSegment
	pseudoSum := ip.PseudoSum()
	if seg.Parse(payload, pseudoSum) != header.NoError {
		return
	}

	key := fourTuple{
		localIP:    ip.Dst,
		localPort:  seg.Header.DstPort,
		remoteIP:   ip.Src,
		remotePort: seg.Header.SrcPort,
	}
	conn, ok := s.conns[key]
	if !ok {
		s.log.Debug("tunnel: dropping segment for unknown connection", "port", seg.Header.DstPort)
		return
	}

	conn.SegmentReceived(&seg)
	s.flush(conn, key)
}

// Tick advances every open connection's clock and flushes whatever segments
// that produces (retransmissions, the RST sent after too many
// retransmissions, etc), and forgets connections that are no longer active.
func (s *Stack) Tick(elapsed time.Duration) {
	for key, conn := range s.conns {
		conn.Tick(elapsed)
		s.flush(conn, key)
		if !conn.Active() {
			delete(s.conns, key)
		}
	}
}

// Pump drains every IPv4 datagram the interface has collected since the
// last call and dispatches it to the matching connection, then advances
// every connection's clock by elapsed. It is meant to be wired into an
// EventLoop via OnPoll so a single client connection stays driven without
// a Router in the picture.
func (s *Stack) Pump(elapsed time.Duration) {
	for _, dgram := range s.iface.DatagramsOut() {
		s.DeliverDatagram(dgram)
	}
	if elapsed > 0 {
		s.Tick(elapsed)
	}
}

func (s *Stack) flush(conn *tcpip.TCPConnection, key fourTuple) {
	for _, seg := range conn.SegmentsOut() {
		seg.Header.SrcPort = key.localPort
		seg.Header.DstPort = key.remotePort

		ip := header.IPv4Header{
			Length:   header.IPv4HeaderLength + uint16(header.TCPHeaderLength+len(seg.Payload)),
			TTL:      header.IPv4DefaultTTL,
			Protocol: header.IPv4ProtocolTCP,
			Src:      key.localIP,
			Dst:      key.remoteIP,
		}
		pseudoSum := ip.PseudoSum()
		tcpBytes := seg.Serialize(pseudoSum)
		datagram := append(ip.Serialize(), tcpBytes...)

		s.iface.SendDatagram(datagram, key.remoteIP)
	}
}
