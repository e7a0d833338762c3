package header

import (
	"bytes"
	"testing"
)

func TestEthernetHeaderRoundTrip(t *testing.T) {
	h := EthernetHeader{
		Dst:     Address{2, 2, 2, 2, 2, 2},
		Src:     Address{1, 1, 1, 1, 1, 1},
		EthType: EtherTypeIPv4,
	}
	encoded := h.Serialize()

	var got EthernetHeader
	rest, result := got.Parse(encoded)
	if result != NoError {
		t.Fatalf("parse: %v", result)
	}
	if len(rest) != 0 {
		t.Fatalf("expected no payload, got %d bytes", len(rest))
	}
	if got.Dst != h.Dst || got.Src != h.Src || got.EthType != h.EthType {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestARPMessageRoundTrip(t *testing.T) {
	m := ARPMessage{
		Opcode:       ARPOpRequest,
		SenderHWAddr: Address{1, 1, 1, 1, 1, 1},
		SenderIP:     [4]byte{10, 0, 0, 1},
		TargetIP:     [4]byte{10, 0, 0, 2},
	}
	var got ARPMessage
	if result := got.Parse(m.Serialize()); result != NoError {
		t.Fatalf("parse: %v", result)
	}
	if got.SenderIP != m.SenderIP || got.TargetIP != m.TargetIP || got.Opcode != m.Opcode {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, m)
	}
}

func TestARPMessageRejectsUnsupported(t *testing.T) {
	m := ARPMessage{Opcode: ARPOpRequest}
	encoded := m.Serialize()
	encoded[1] = 0x08 // corrupt hardware type

	var got ARPMessage
	if result := got.Parse(encoded); result != Unsupported {
		t.Fatalf("parse: got %v, want Unsupported", result)
	}
}

func TestIPv4HeaderRoundTrip(t *testing.T) {
	h := IPv4Header{
		TTL:      64,
		Protocol: IPv4ProtocolTCP,
		Src:      [4]byte{10, 0, 0, 1},
		Dst:      [4]byte{10, 0, 0, 2},
	}
	payload := []byte("payload-bytes")
	h.Length = IPv4HeaderLength + uint16(len(payload))

	encoded := append(h.Serialize(), payload...)

	var got IPv4Header
	rest, result := got.Parse(encoded)
	if result != NoError {
		t.Fatalf("parse: %v", result)
	}
	if !bytes.Equal(rest, payload) {
		t.Fatalf("payload mismatch: got %q, want %q", rest, payload)
	}
	if got.Src != h.Src || got.Dst != h.Dst || got.TTL != h.TTL {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestIPv4HeaderRejectsBadChecksum(t *testing.T) {
	h := IPv4Header{TTL: 64, Protocol: IPv4ProtocolTCP, Length: IPv4HeaderLength}
	encoded := h.Serialize()
	encoded[8] ^= 0xff // corrupt the TTL byte without fixing up the checksum

	var got IPv4Header
	if _, result := got.Parse(encoded); result != BadChecksum {
		t.Fatalf("parse: got %v, want BadChecksum", result)
	}
}

func TestTCPSegmentRoundTrip(t *testing.T) {
	seg := TCPSegment{
		Header: TCPHeader{
			SrcPort: 1234,
			DstPort: 80,
			SeqNo:   1000,
			AckNo:   2000,
			Syn:     true,
			Ack:     true,
			Window:  65535,
		},
		Payload: []byte("hello"),
	}
	pseudoSum := PseudoHeaderSum([4]byte{10, 0, 0, 1}, [4]byte{10, 0, 0, 2}, IPv4ProtocolTCP, TCPHeaderLength+len(seg.Payload))
	wire := seg.Serialize(pseudoSum)

	var got TCPSegment
	if result := got.Parse(wire, pseudoSum); result != NoError {
		t.Fatalf("parse: %v", result)
	}
	if got.Header.SeqNo != seg.Header.SeqNo || got.Header.AckNo != seg.Header.AckNo {
		t.Fatalf("header mismatch: got %+v, want %+v", got.Header, seg.Header)
	}
	if !bytes.Equal(got.Payload, seg.Payload) {
		t.Fatalf("payload mismatch: got %q, want %q", got.Payload, seg.Payload)
	}
}

func TestTCPSegmentRejectsBadChecksum(t *testing.T) {
	seg := TCPSegment{Header: TCPHeader{SrcPort: 1, DstPort: 2}}
	pseudoSum := PseudoHeaderSum([4]byte{1, 2, 3, 4}, [4]byte{5, 6, 7, 8}, IPv4ProtocolTCP, TCPHeaderLength)
	wire := seg.Serialize(pseudoSum)
	wire[0] ^= 0xff

	var got TCPSegment
	if result := got.Parse(wire, pseudoSum); result != BadChecksum {
		t.Fatalf("parse: got %v, want BadChecksum", result)
	}
}
