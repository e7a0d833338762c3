package header

import (
	"encoding/binary"
	"fmt"
	"net"
)

const (
	IPv4HeaderLength = 20
	IPv4DefaultTTL   = 128
	IPv4ProtocolTCP  = 6
)

// IPv4Header is an IPv4 datagram header with no options.
//
// BUG: options are not supported; a header with IHL > 5 parses its options
// bytes as opaque padding and never round-trips them.
type IPv4Header struct {
	TOS      uint8
	Length   uint16
	ID       uint16
	DontFrag bool
	MoreFrag bool
	FragOff  uint16
	TTL      uint8
	Protocol uint8
	Checksum uint16
	Src      [4]byte
	Dst      [4]byte
}

// Parse decodes an IPv4Header (and verifies its checksum) from the front of
// data, returning the header payload (options stripped).
func (h *IPv4Header) Parse(data []byte) (payload []byte, result ParseResult) {
	if len(data) < IPv4HeaderLength {
		return nil, PacketTooShort
	}

	versionIHL := data[0]
	version := versionIHL >> 4
	ihl := versionIHL & 0x0f

	h.TOS = data[1]
	h.Length = binary.BigEndian.Uint16(data[2:4])
	h.ID = binary.BigEndian.Uint16(data[4:6])

	flagsFrag := binary.BigEndian.Uint16(data[6:8])
	h.DontFrag = flagsFrag&0x4000 != 0
	h.MoreFrag = flagsFrag&0x2000 != 0
	h.FragOff = flagsFrag & 0x1fff

	h.TTL = data[8]
	h.Protocol = data[9]
	h.Checksum = binary.BigEndian.Uint16(data[10:12])
	copy(h.Src[:], data[12:16])
	copy(h.Dst[:], data[16:20])

	headerLen := int(ihl) * 4
	if len(data) < headerLen {
		return nil, PacketTooShort
	}
	if version != 4 {
		return nil, WrongIPVersion
	}
	if ihl < 5 {
		return nil, HeaderTooShort
	}
	if len(data) != int(h.Length) {
		return nil, TruncatedPacket
	}

	var check Checksum
	check.Add(data[:headerLen])
	if check.Value() != 0 {
		return nil, BadChecksum
	}

	return data[headerLen:], NoError
}

// Serialize encodes the header (with no options, IHL=5) and fills in the
// checksum.
func (h *IPv4Header) Serialize() []byte {
	out := make([]byte, IPv4HeaderLength)
	out[0] = (4 << 4) | 5
	out[1] = h.TOS
	binary.BigEndian.PutUint16(out[2:4], h.Length)
	binary.BigEndian.PutUint16(out[4:6], h.ID)

	var flagsFrag uint16
	if h.DontFrag {
		flagsFrag |= 0x4000
	}
	if h.MoreFrag {
		flagsFrag |= 0x2000
	}
	flagsFrag |= h.FragOff & 0x1fff
	binary.BigEndian.PutUint16(out[6:8], flagsFrag)

	out[8] = h.TTL
	out[9] = h.Protocol
	// checksum filled below
	copy(out[12:16], h.Src[:])
	copy(out[16:20], h.Dst[:])

	var check Checksum
	check.Add(out)
	h.Checksum = check.Value()
	binary.BigEndian.PutUint16(out[10:12], h.Checksum)

	return out
}

// PayloadLength returns the number of bytes carried after the header.
func (h *IPv4Header) PayloadLength() uint16 {
	return h.Length - IPv4HeaderLength
}

// PseudoSum returns the pseudo-header partial checksum used by TCP/UDP.
func (h *IPv4Header) PseudoSum() uint32 {
	return PseudoHeaderSum(h.Src, h.Dst, h.Protocol, int(h.PayloadLength()))
}

func (h *IPv4Header) Summary() string {
	return fmt.Sprintf("IPv4, len=%d, protocol=%d, ttl=%d, src=%s, dst=%s",
		h.Length, h.Protocol, h.TTL, net.IP(h.Src[:]), net.IP(h.Dst[:]))
}
