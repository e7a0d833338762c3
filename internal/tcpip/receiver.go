package tcpip

import "github.com/minnow-os/minnow/internal/tcpip/header"

// TCPReceiver tracks the receive side of a TCP connection: it feeds incoming
// segments to a StreamReassembler and reports the acknowledgment number and
// window size to advertise back to the peer.
type TCPReceiver struct {
	reassembler *StreamReassembler

	isn       WrappingInt32
	synSeen   bool
	finSeen   bool
	finAbsSeq uint64
}

// NewTCPReceiver constructs a TCPReceiver whose reassembled stream has the
// given capacity.
func NewTCPReceiver(capacity int) *TCPReceiver {
	return &TCPReceiver{reassembler: NewStreamReassembler(capacity)}
}

// AckNo returns the next sequence number the receiver expects, or false if
// no SYN has been seen yet.
func (r *TCPReceiver) AckNo() (WrappingInt32, bool) {
	if !r.synSeen {
		return WrappingInt32{}, false
	}

	nextAbs := r.StreamOut().BytesWritten() + 1
	if r.finSeen && r.finAbsSeq == nextAbs {
		return Wrap(nextAbs+1, r.isn), true
	}
	return Wrap(nextAbs, r.isn), true
}

// WindowSize returns the number of additional bytes the receiver is willing
// to buffer.
func (r *TCPReceiver) WindowSize() int {
	return r.StreamOut().RemainingCapacity()
}

// UnassembledBytes returns bytes buffered by the reassembler but not yet
// delivered to the output stream.
func (r *TCPReceiver) UnassembledBytes() int {
	return r.reassembler.UnassembledBytes()
}

// StreamOut returns the receiver's reassembled output stream.
func (r *TCPReceiver) StreamOut() *ByteStream {
	return r.reassembler.StreamOut()
}

// SegmentReceived processes one incoming segment: it learns the ISN from a
// SYN, discards segments outside the receive window, and hands payload (and
// FIN) bytes to the reassembler at their absolute stream index.
func (r *TCPReceiver) SegmentReceived(seg *header.TCPSegment) {
	if seg.Header.Syn {
		r.isn = NewWrappingInt32(seg.Header.SeqNo)
		r.synSeen = true
	}
	if !r.synSeen {
		return
	}

	checkpoint := r.StreamOut().BytesWritten()
	absSeqNo := Unwrap(NewWrappingInt32(seg.Header.SeqNo), r.isn, checkpoint)

	var nextValidSeqNo uint64
	if ackNo, ok := r.AckNo(); ok {
		nextValidSeqNo = Unwrap(ackNo, r.isn, checkpoint)
	}
	windowTail := 0
	if w := r.WindowSize(); w > 0 {
		windowTail = w - 1
	}
	if absSeqNo > nextValidSeqNo+uint64(windowTail) {
		return
	}

	fin := seg.Header.Fin
	if fin {
		finSeq := uint32(uint64(seg.Header.SeqNo) + uint64(seg.LengthInSequenceSpace()) - 1)
		r.finAbsSeq = Unwrap(NewWrappingInt32(finSeq), r.isn, checkpoint)
		r.finSeen = true
	}

	var streamIndex uint64
	switch {
	case seg.Header.Syn:
		streamIndex = 0
	case fin && len(seg.Payload) == 0:
		if checkpoint == 0 {
			streamIndex = 0
		} else {
			if absSeqNo < 2 {
				return
			}
			streamIndex = absSeqNo - 2
		}
	default:
		if absSeqNo == 0 {
			return
		}
		streamIndex = absSeqNo - 1
	}

	if len(seg.Payload) > 0 || fin {
		r.reassembler.PushSubstring(seg.Payload, streamIndex, fin)
	}
}
