package header

import (
	"encoding/binary"
	"fmt"
)

const TCPHeaderLength = 20

// TCP flag bits.
const (
	FlagFIN uint8 = 1 << 0
	FlagSYN uint8 = 1 << 1
	FlagRST uint8 = 1 << 2
	FlagPSH uint8 = 1 << 3
	FlagACK uint8 = 1 << 4
	FlagURG uint8 = 1 << 5
)

// TCPHeader is a TCP segment header with no options.
type TCPHeader struct {
	SrcPort uint16
	DstPort uint16
	SeqNo   uint32
	AckNo   uint32
	Urg     bool
	Ack     bool
	Psh     bool
	Rst     bool
	Syn     bool
	Fin     bool
	Window  uint16
	Sum     uint16
	UrgPtr  uint16
}

// Parse decodes a TCPHeader from the front of data, skipping any options,
// and returns the payload that follows.
func (h *TCPHeader) Parse(data []byte) (payload []byte, result ParseResult) {
	if len(data) < TCPHeaderLength {
		return nil, PacketTooShort
	}

	h.SrcPort = binary.BigEndian.Uint16(data[0:2])
	h.DstPort = binary.BigEndian.Uint16(data[2:4])
	h.SeqNo = binary.BigEndian.Uint32(data[4:8])
	h.AckNo = binary.BigEndian.Uint32(data[8:12])

	doff := data[12] >> 4
	flags := data[13]
	h.Urg = flags&FlagURG != 0
	h.Ack = flags&FlagACK != 0
	h.Psh = flags&FlagPSH != 0
	h.Rst = flags&FlagRST != 0
	h.Syn = flags&FlagSYN != 0
	h.Fin = flags&FlagFIN != 0

	h.Window = binary.BigEndian.Uint16(data[14:16])
	h.Sum = binary.BigEndian.Uint16(data[16:18])
	h.UrgPtr = binary.BigEndian.Uint16(data[18:20])

	if doff < 5 {
		return nil, HeaderTooShort
	}
	headerLen := int(doff) * 4
	if len(data) < headerLen {
		return nil, PacketTooShort
	}
	return data[headerLen:], NoError
}

// Serialize encodes the header with no options (data offset fixed at 5).
func (h *TCPHeader) Serialize() []byte {
	out := make([]byte, TCPHeaderLength)
	binary.BigEndian.PutUint16(out[0:2], h.SrcPort)
	binary.BigEndian.PutUint16(out[2:4], h.DstPort)
	binary.BigEndian.PutUint32(out[4:8], h.SeqNo)
	binary.BigEndian.PutUint32(out[8:12], h.AckNo)
	out[12] = 5 << 4

	var flags uint8
	if h.Urg {
		flags |= FlagURG
	}
	if h.Ack {
		flags |= FlagACK
	}
	if h.Psh {
		flags |= FlagPSH
	}
	if h.Rst {
		flags |= FlagRST
	}
	if h.Syn {
		flags |= FlagSYN
	}
	if h.Fin {
		flags |= FlagFIN
	}
	out[13] = flags

	binary.BigEndian.PutUint16(out[14:16], h.Window)
	// checksum filled by caller once full segment bytes are known
	binary.BigEndian.PutUint16(out[18:20], h.UrgPtr)
	return out
}

func (h *TCPHeader) Summary() string {
	flags := ""
	if h.Syn {
		flags += "S"
	}
	if h.Ack {
		flags += "A"
	}
	if h.Rst {
		flags += "R"
	}
	if h.Fin {
		flags += "F"
	}
	return fmt.Sprintf("Header(flags=%s,seqno=%d,ack=%d,win=%d)", flags, h.SeqNo, h.AckNo, h.Window)
}

// TCPSegment is a parsed/to-be-serialized TCP segment: header plus payload.
type TCPSegment struct {
	Header  TCPHeader
	Payload []byte
}

// LengthInSequenceSpace returns the number of sequence numbers this segment
// occupies: payload bytes plus one each for SYN and FIN.
func (s *TCPSegment) LengthInSequenceSpace() int {
	n := len(s.Payload)
	if s.Header.Syn {
		n++
	}
	if s.Header.Fin {
		n++
	}
	return n
}

// Parse verifies the segment's checksum (computed over pseudoSum plus the
// full segment bytes) and decodes the header, leaving the remainder as
// Payload.
func (s *TCPSegment) Parse(data []byte, pseudoSum uint32) ParseResult {
	check := NewChecksum(pseudoSum)
	check.Add(data)
	if check.Value() != 0 {
		return BadChecksum
	}

	payload, result := s.Header.Parse(data)
	if result != NoError {
		return result
	}
	s.Payload = append([]byte(nil), payload...)
	return NoError
}

// Serialize encodes the header and payload, filling in the checksum over
// pseudoSum plus the serialized bytes.
func (s *TCPSegment) Serialize(pseudoSum uint32) []byte {
	s.Header.Sum = 0
	headerBytes := s.Header.Serialize()

	check := NewChecksum(pseudoSum)
	check.Add(headerBytes)
	check.Add(s.Payload)
	s.Header.Sum = check.Value()
	binary.BigEndian.PutUint16(headerBytes[16:18], s.Header.Sum)

	out := make([]byte, 0, len(headerBytes)+len(s.Payload))
	out = append(out, headerBytes...)
	out = append(out, s.Payload...)
	return out
}
