package header

import (
	"encoding/binary"
	"fmt"
	"net"
)

const (
	ARPMessageLength = 28

	arpHardwareEthernet uint16 = 1

	ARPOpRequest uint16 = 1
	ARPOpReply   uint16 = 2
)

// ARPMessage is an Ethernet/IPv4 ARP request or reply.
type ARPMessage struct {
	Opcode       uint16
	SenderHWAddr Address
	SenderIP     [4]byte
	TargetHWAddr Address
	TargetIP     [4]byte
}

// Parse decodes an ARPMessage from data. Only Ethernet/IPv4 request/reply
// combinations are supported; anything else yields Unsupported.
func (m *ARPMessage) Parse(data []byte) ParseResult {
	if len(data) < ARPMessageLength {
		return PacketTooShort
	}

	hwType := binary.BigEndian.Uint16(data[0:2])
	protoType := binary.BigEndian.Uint16(data[2:4])
	hwSize := data[4]
	protoSize := data[5]
	opcode := binary.BigEndian.Uint16(data[6:8])

	if hwType != arpHardwareEthernet || protoType != EtherTypeIPv4 || hwSize != 6 || protoSize != 4 {
		return Unsupported
	}
	if opcode != ARPOpRequest && opcode != ARPOpReply {
		return Unsupported
	}

	m.Opcode = opcode
	copy(m.SenderHWAddr[:], data[8:14])
	copy(m.SenderIP[:], data[14:18])
	copy(m.TargetHWAddr[:], data[18:24])
	copy(m.TargetIP[:], data[24:28])
	return NoError
}

// Serialize encodes the message into wire format.
func (m *ARPMessage) Serialize() []byte {
	out := make([]byte, ARPMessageLength)
	binary.BigEndian.PutUint16(out[0:2], arpHardwareEthernet)
	binary.BigEndian.PutUint16(out[2:4], EtherTypeIPv4)
	out[4] = 6
	out[5] = 4
	binary.BigEndian.PutUint16(out[6:8], m.Opcode)
	copy(out[8:14], m.SenderHWAddr[:])
	copy(out[14:18], m.SenderIP[:])
	copy(out[18:24], m.TargetHWAddr[:])
	copy(out[24:28], m.TargetIP[:])
	return out
}

func (m *ARPMessage) Summary() string {
	op := "unknown"
	switch m.Opcode {
	case ARPOpRequest:
		op = "REQUEST"
	case ARPOpReply:
		op = "REPLY"
	}
	return fmt.Sprintf("opcode=%s, sender=%s/%s, target=%s/%s",
		op, m.SenderHWAddr, net.IP(m.SenderIP[:]), m.TargetHWAddr, net.IP(m.TargetIP[:]))
}
