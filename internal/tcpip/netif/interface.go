// Package netif implements the ARP-backed network interface and the
// longest-prefix-match router that sit below the TCP connection state
// machine in internal/tcpip. Like that package, nothing here spawns a
// goroutine; callers drive Tick from an outer event loop.
package netif

import (
	"log/slog"
	"time"

	"github.com/minnow-os/minnow/internal/tcpip/header"
)

const (
	arpEntryTTL        = 30 * time.Second
	arpRequestSuppress = 5 * time.Second
)

type arpEntry struct {
	mac     header.Address
	learned time.Time
}

type pendingRequest struct {
	lastSent time.Time
}

type queuedFrame struct {
	dgram   []byte
	nextHop [4]byte
}

// NetworkInterface bridges an Ethernet/ARP link to IPv4 datagrams: it
// resolves next-hop MAC addresses via ARP, queues datagrams awaiting
// resolution, and hands received IPv4 datagrams up to its caller while
// answering/learning from ARP traffic.
type NetworkInterface struct {
	log *slog.Logger

	mac header.Address
	ip  [4]byte

	arpCache    map[[4]byte]arpEntry
	pendingReqs map[[4]byte]pendingRequest
	pendingTx   map[[4]byte][]queuedFrame

	framesOut    [][]byte
	datagramsOut [][]byte
	now          time.Time
}

// NewNetworkInterface constructs a NetworkInterface owning mac/ip.
func NewNetworkInterface(log *slog.Logger, mac header.Address, ip [4]byte) *NetworkInterface {
	if log == nil {
		log = slog.Default()
	}
	return &NetworkInterface{
		log:         log,
		mac:         mac,
		ip:          ip,
		arpCache:    make(map[[4]byte]arpEntry),
		pendingReqs: make(map[[4]byte]pendingRequest),
		pendingTx:   make(map[[4]byte][]queuedFrame),
	}
}

// SendDatagram transmits an IPv4 datagram to nextHop, resolving its MAC
// address via ARP first if necessary. While resolution is pending, the
// datagram is queued and an ARP request is sent (at most once per
// arpRequestSuppress interval).
func (n *NetworkInterface) SendDatagram(dgram []byte, nextHop [4]byte) {
	if entry, ok := n.arpCache[nextHop]; ok {
		n.sendEthernetFrame(entry.mac, header.EtherTypeIPv4, dgram)
		return
	}

	n.pendingTx[nextHop] = append(n.pendingTx[nextHop], queuedFrame{dgram: dgram, nextHop: nextHop})

	if req, ok := n.pendingReqs[nextHop]; ok && n.now.Sub(req.lastSent) < arpRequestSuppress {
		return
	}
	n.pendingReqs[nextHop] = pendingRequest{lastSent: n.now}

	msg := header.ARPMessage{
		Opcode:       header.ARPOpRequest,
		SenderHWAddr: n.mac,
		SenderIP:     n.ip,
		TargetHWAddr: header.Address{},
		TargetIP:     nextHop,
	}
	n.sendEthernetFrame(header.Broadcast, header.EtherTypeARP, msg.Serialize())
}

// RecvFrame processes one received Ethernet frame: IPv4 datagrams destined
// for us are handed to the caller via DatagramsOut, and ARP requests/replies
// are learned from and, for requests targeting us, answered.
func (n *NetworkInterface) RecvFrame(frame []byte) {
	var eth header.EthernetHeader
	rest, result := eth.Parse(frame)
	if result != header.NoError {
		return
	}
	if eth.Dst != n.mac && eth.Dst != header.Broadcast {
		return
	}

	switch eth.EthType {
	case header.EtherTypeIPv4:
		n.datagramsOut = append(n.datagramsOut, append([]byte(nil), rest...))

	case header.EtherTypeARP:
		var msg header.ARPMessage
		if msg.Parse(rest) != header.NoError {
			return
		}
		n.arpCache[msg.SenderIP] = arpEntry{mac: msg.SenderHWAddr, learned: n.now}
		delete(n.pendingReqs, msg.SenderIP)

		if queued := n.pendingTx[msg.SenderIP]; len(queued) > 0 {
			for _, q := range queued {
				n.sendEthernetFrame(msg.SenderHWAddr, header.EtherTypeIPv4, q.dgram)
			}
			delete(n.pendingTx, msg.SenderIP)
		}

		if msg.Opcode == header.ARPOpRequest && msg.TargetIP == n.ip {
			reply := header.ARPMessage{
				Opcode:       header.ARPOpReply,
				SenderHWAddr: n.mac,
				SenderIP:     n.ip,
				TargetHWAddr: msg.SenderHWAddr,
				TargetIP:     msg.SenderIP,
			}
			n.sendEthernetFrame(msg.SenderHWAddr, header.EtherTypeARP, reply.Serialize())
		}
	}
}

// Tick ages out ARP cache entries older than arpEntryTTL and forgets
// suppressed requests older than arpRequestSuppress, advancing the
// interface's notion of "now" by elapsed.
func (n *NetworkInterface) Tick(elapsed time.Duration) {
	n.now = n.now.Add(elapsed)

	for ip, entry := range n.arpCache {
		if n.now.Sub(entry.learned) >= arpEntryTTL {
			delete(n.arpCache, ip)
		}
	}
	for ip, req := range n.pendingReqs {
		if n.now.Sub(req.lastSent) >= arpRequestSuppress {
			delete(n.pendingReqs, ip)
		}
	}
}

func (n *NetworkInterface) sendEthernetFrame(dst header.Address, ethType uint16, payload []byte) {
	eth := header.EthernetHeader{Dst: dst, Src: n.mac, EthType: ethType}
	frame := append(eth.Serialize(), payload...)
	n.framesOut = append(n.framesOut, frame)
}

// FramesOut drains and returns queued outgoing Ethernet frames.
func (n *NetworkInterface) FramesOut() [][]byte {
	out := n.framesOut
	n.framesOut = nil
	return out
}

// DatagramsOut drains and returns queued received IPv4 datagrams.
func (n *NetworkInterface) DatagramsOut() [][]byte {
	out := n.datagramsOut
	n.datagramsOut = nil
	return out
}

// IP returns the interface's own IPv4 address.
func (n *NetworkInterface) IP() [4]byte { return n.ip }

// MAC returns the interface's own Ethernet address.
func (n *NetworkInterface) MAC() header.Address { return n.mac }
