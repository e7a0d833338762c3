package tcpip

import (
	"container/list"
	"math/rand"
	"time"

	"github.com/minnow-os/minnow/internal/tcpip/header"
)

// outstandingSegment is a sent-but-not-yet-acknowledged segment, tracked so
// it can be retransmitted on timeout.
type outstandingSegment struct {
	seg        *header.TCPSegment
	absSeqNo   uint64 // absolute seqno of the first sequence number it occupies
	retransmit bool
}

// TCPSender tracks the send side of a TCP connection: it fills the window
// from an input ByteStream, tracks outstanding (unacknowledged) segments,
// and retransmits on a timer with exponential backoff.
type TCPSender struct {
	in *ByteStream

	isn          WrappingInt32
	initialRTO   time.Duration
	rto          time.Duration
	nextSeqNo    uint64
	windowSize   int
	windowKnown  bool
	checkpoint   uint64 // highest absolute ackno accepted so far (the window's left edge)
	outstanding  *list.List
	segmentsOut  []*header.TCPSegment
	timerRunning bool
	timerStart   time.Duration
	elapsed      time.Duration
	consecRetx   uint32
	synSent      bool
	finSent      bool
}

// NewTCPSender constructs a TCPSender writing from a ByteStream of the given
// capacity, with the given base retransmission timeout and initial sequence
// number (a random one is chosen if isn is nil).
func NewTCPSender(capacity int, rto time.Duration, isn *WrappingInt32) *TCPSender {
	s := &TCPSender{
		in:          NewByteStream(capacity),
		initialRTO:  rto,
		rto:         rto,
		windowSize:  1,
		outstanding: list.New(),
	}
	if isn != nil {
		s.isn = *isn
	} else {
		s.isn = NewWrappingInt32(rand.Uint32())
	}
	return s
}

// StreamIn returns the sender's input stream, into which a caller writes
// outgoing application bytes.
func (s *TCPSender) StreamIn() *ByteStream {
	return s.in
}

// NextSeqnoAbsolute returns the absolute sequence number of the next byte
// (or SYN/FIN) the sender will send.
func (s *TCPSender) NextSeqnoAbsolute() uint64 {
	return s.nextSeqNo
}

// BytesInFlight returns the number of sequence numbers sent but not yet
// acknowledged.
func (s *TCPSender) BytesInFlight() int {
	total := 0
	for e := s.outstanding.Front(); e != nil; e = e.Next() {
		total += e.Value.(*outstandingSegment).seg.LengthInSequenceSpace()
	}
	return total
}

// ConsecutiveRetransmissions returns how many times in a row the
// retransmission timer has fired without a strictly-advancing ACK resetting
// it.
func (s *TCPSender) ConsecutiveRetransmissions() uint32 {
	return s.consecRetx
}

func (s *TCPSender) nextSeqWrapped() WrappingInt32 {
	return Wrap(s.nextSeqNo, s.isn)
}

// buildSegment creates a new outgoing segment carrying up to len(payload)
// bytes (which may be empty), tracks it as outstanding, and appends it to
// the pending segmentsOut queue.
func (s *TCPSender) buildSegment(payload []byte, syn, fin bool) {
	seg := &header.TCPSegment{
		Header: header.TCPHeader{
			SeqNo: s.nextSeqWrapped().RawValue(),
			Syn:   syn,
			Fin:   fin,
		},
		Payload: payload,
	}

	length := seg.LengthInSequenceSpace()
	absSeqNo := s.nextSeqNo
	s.nextSeqNo += uint64(length)
	if syn {
		s.synSent = true
	}
	if fin {
		s.finSent = true
	}

	if length > 0 {
		s.outstanding.PushBack(&outstandingSegment{seg: seg, absSeqNo: absSeqNo})
		if !s.timerRunning {
			s.timerRunning = true
			s.timerStart = s.elapsed
		}
	}

	s.segmentsOut = append(s.segmentsOut, seg)
}

// FillWindow sends the initial SYN if it has not gone out yet, then as many
// segments as the receiver's advertised window allows. A FIN is only sent
// when it fits inside that window.
func (s *TCPSender) FillWindow() {
	if !s.synSent {
		s.buildSegment(nil, true, false)
	}

	effectiveWindow := s.windowSize
	if effectiveWindow == 0 {
		effectiveWindow = 1 // probe a zero window with one byte
	}

	for {
		inFlight := s.BytesInFlight()
		available := effectiveWindow - inFlight
		if available <= 0 {
			break
		}
		if s.finSent {
			break
		}
		if s.in.EOF() && s.in.BufferEmpty() && !s.synSent {
			break
		}

		payloadLen := available
		if payloadLen > MaxPayloadSize {
			payloadLen = MaxPayloadSize
		}
		payload := s.in.Read(payloadLen)

		fin := false
		if s.in.EOF() && s.in.BufferEmpty() {
			// room for the FIN within this segment's sequence-space budget
			if len(payload) < available {
				fin = true
			}
		}

		if len(payload) == 0 && !fin {
			break
		}
		s.buildSegment(payload, false, fin)

		if fin {
			break
		}
	}
}

// AckReceived processes an incoming ACK: it advances the left edge of the
// outstanding-segment list, records the advertised window, and resets the
// retransmission timer/backoff if the ack strictly advanced it.
func (s *TCPSender) AckReceived(ackNo WrappingInt32, window int) {
	checkpoint := s.nextSeqNo
	absAckNo := Unwrap(ackNo, s.isn, checkpoint)

	if absAckNo > s.nextSeqNo {
		return // acks something never sent
	}
	if absAckNo < s.checkpoint {
		return // stale/duplicate ack, already acknowledged past this point
	}

	advanced := absAckNo > s.checkpoint
	if advanced {
		s.checkpoint = absAckNo
	}

	s.windowSize = window
	s.windowKnown = true

	for e := s.outstanding.Front(); e != nil; {
		next := e.Next()
		o := e.Value.(*outstandingSegment)
		end := o.absSeqNo + uint64(o.seg.LengthInSequenceSpace())
		if end <= absAckNo {
			s.outstanding.Remove(e)
			advanced = true
		}
		e = next
	}

	if advanced {
		s.rto = s.initialRTO
		s.consecRetx = 0
		if s.outstanding.Len() == 0 {
			s.timerRunning = false
		} else {
			s.timerRunning = true
			s.timerStart = s.elapsed
		}
	}

	s.FillWindow()
}

// Tick advances the sender's internal clock and retransmits the
// oldest outstanding segment (doubling the RTO, per spec, only while the
// peer's last-known window was non-zero) if the retransmission timer has
// expired.
func (s *TCPSender) Tick(msSinceLastTick time.Duration) {
	s.elapsed += msSinceLastTick

	if !s.timerRunning {
		return
	}
	if s.elapsed-s.timerStart < s.rto {
		return
	}

	front := s.outstanding.Front()
	if front == nil {
		s.timerRunning = false
		return
	}
	o := front.Value.(*outstandingSegment)
	s.segmentsOut = append(s.segmentsOut, o.seg)

	if s.windowSize > 0 {
		s.rto *= 2
		s.consecRetx++
	}
	s.timerStart = s.elapsed
}

// SendEmptySegment emits a zero-length segment carrying only the current
// sequence number (used for pure ACKs and, with rst set by the caller, for
// resets).
func (s *TCPSender) SendEmptySegment() {
	seg := &header.TCPSegment{
		Header: header.TCPHeader{SeqNo: s.nextSeqWrapped().RawValue()},
	}
	s.segmentsOut = append(s.segmentsOut, seg)
}

// SegmentsOut drains and returns the queue of segments produced since the
// last call.
func (s *TCPSender) SegmentsOut() []*header.TCPSegment {
	out := s.segmentsOut
	s.segmentsOut = nil
	return out
}

// PeekSegmentsOut returns the queue of produced segments without draining
// it, for callers (TCPConnection) that need to count newly produced segments
// or flag the last one as a RST before draining the queue.
func (s *TCPSender) PeekSegmentsOut() []*header.TCPSegment {
	return s.segmentsOut
}
