package header

import (
	"encoding/binary"
	"fmt"
)

// Address is a 6-byte Ethernet (MAC) address.
type Address [6]byte

var Broadcast = Address{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

func (a Address) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", a[0], a[1], a[2], a[3], a[4], a[5])
}

const (
	EthernetHeaderLength = 14

	EtherTypeIPv4 uint16 = 0x0800
	EtherTypeARP  uint16 = 0x0806
)

// EthernetHeader is the 14-byte Ethernet II frame header.
type EthernetHeader struct {
	Dst     Address
	Src     Address
	EthType uint16
}

// Parse decodes an EthernetHeader from the front of data, returning the
// remaining payload.
func (h *EthernetHeader) Parse(data []byte) (rest []byte, result ParseResult) {
	if len(data) < EthernetHeaderLength {
		return nil, PacketTooShort
	}
	copy(h.Dst[:], data[0:6])
	copy(h.Src[:], data[6:12])
	h.EthType = binary.BigEndian.Uint16(data[12:14])
	return data[EthernetHeaderLength:], NoError
}

// Serialize encodes the header into wire format.
func (h *EthernetHeader) Serialize() []byte {
	out := make([]byte, EthernetHeaderLength)
	copy(out[0:6], h.Dst[:])
	copy(out[6:12], h.Src[:])
	binary.BigEndian.PutUint16(out[12:14], h.EthType)
	return out
}

func (h *EthernetHeader) Summary() string {
	kind := fmt.Sprintf("unknown type %#x", h.EthType)
	switch h.EthType {
	case EtherTypeIPv4:
		kind = "IPv4"
	case EtherTypeARP:
		kind = "ARP"
	}
	return fmt.Sprintf("dst=%s, src=%s, type=%s", h.Dst, h.Src, kind)
}
