package tcpip

import (
	"time"

	"github.com/minnow-os/minnow/internal/tcpip/header"
)

// TCPConnection drives a TCPSender and TCPReceiver together into the full
// TCP connection state machine: it decides when to stamp ACK/window fields
// onto outgoing segments, when to answer with a bare ACK, when to give up
// and reset, and when the connection is done lingering and can be torn
// down.
type TCPConnection struct {
	cfg      TCPConfig
	sender   *TCPSender
	receiver *TCPReceiver

	segmentsOut []*header.TCPSegment

	lingerAfterStreamsFinish bool
	totalTick                time.Duration
	lastRecvSegTick          time.Duration
	active                   bool
	finReceived              bool
	finSent                  bool
	synSentOrRecv            bool
}

// NewTCPConnection constructs a TCPConnection with the given configuration.
func NewTCPConnection(cfg TCPConfig) *TCPConnection {
	return &TCPConnection{
		cfg:                      cfg,
		sender:                   NewTCPSender(cfg.SendCapacity, cfg.RetxTimeout, cfg.FixedISN),
		receiver:                 NewTCPReceiver(cfg.RecvCapacity),
		lingerAfterStreamsFinish: true,
		active:                   true,
	}
}

// Connect begins an active open: it sends the initial SYN.
func (c *TCPConnection) Connect() {
	c.sender.FillWindow()
	c.drainSender(true)
	if len(c.segmentsOut) > 0 {
		c.synSentOrRecv = true
	}
}

// Write enqueues data on the outbound stream and pushes out whatever
// segments that allows the sender to send, stamping the current ack/window
// onto each as it's admitted to segmentsOut.
func (c *TCPConnection) Write(data []byte) int {
	n, _ := c.sender.StreamIn().Write(data)
	c.sender.FillWindow()
	c.drainSender(false)
	c.checkActive()
	return n
}

// drainSender moves every segment the sender produced into the connection's
// outgoing queue, stamping ack/window onto each (once the receiver has an
// ackno to offer) and tracking fin_sent. skipAckStamp exists only for
// Connect's initial SYN, which has no ack to offer yet regardless.
func (c *TCPConnection) drainSender(skipAckStamp bool) {
	for _, seg := range c.sender.SegmentsOut() {
		if !skipAckStamp {
			if ackNo, ok := c.receiver.AckNo(); ok {
				seg.Header.Ack = true
				seg.Header.AckNo = ackNo.RawValue()
				win := c.receiver.WindowSize()
				if win > 0xffff {
					win = 0xffff
				}
				seg.Header.Window = uint16(win)
			}
		}
		if seg.Header.Fin {
			c.finSent = true
		}
		c.segmentsOut = append(c.segmentsOut, seg)
	}
}

// RemainingOutboundCapacity reports how much more can be written before the
// outbound stream is full.
func (c *TCPConnection) RemainingOutboundCapacity() int {
	return c.sender.StreamIn().RemainingCapacity()
}

// EndInputStream signals that no more data will be written; this lets the
// sender emit a FIN once all buffered bytes are sent.
func (c *TCPConnection) EndInputStream() {
	c.sender.StreamIn().EndInput()
	c.sender.FillWindow()
	c.Write(nil)
}

// InboundStream returns the reassembled stream of bytes received from the
// peer.
func (c *TCPConnection) InboundStream() *ByteStream {
	return c.receiver.StreamOut()
}

// BytesInFlight returns the sender's unacknowledged byte count.
func (c *TCPConnection) BytesInFlight() int {
	return c.sender.BytesInFlight()
}

// UnassembledBytes returns bytes buffered by the receiver's reassembler but
// not yet delivered.
func (c *TCPConnection) UnassembledBytes() int {
	return c.receiver.UnassembledBytes()
}

// TimeSinceLastSegmentReceived returns how long it has been since a segment
// last arrived.
func (c *TCPConnection) TimeSinceLastSegmentReceived() time.Duration {
	return c.totalTick - c.lastRecvSegTick
}

// State returns the connection's current named TCP state.
func (c *TCPConnection) State() State {
	return Summarize(SenderSummary(c.sender), ReceiverSummary(c.receiver), c.active, c.lingerAfterStreamsFinish)
}

// Active reports whether the connection is still alive (has not reset or
// completed its linger period).
func (c *TCPConnection) Active() bool {
	return c.active
}

// SegmentsOut drains and returns the outgoing segment queue.
func (c *TCPConnection) SegmentsOut() []*header.TCPSegment {
	out := c.segmentsOut
	c.segmentsOut = nil
	return out
}

// SegmentReceived processes one incoming segment: it feeds the receiver,
// handles passive-open SYNs, resets, FINs, and ACKs, and replies with a bare
// ACK whenever the peer's segment consumed sequence space or looks like a
// stray keep-alive retransmission of our own prior ack.
func (c *TCPConnection) SegmentReceived(seg *header.TCPSegment) {
	c.lastRecvSegTick = c.totalTick

	c.receiver.SegmentReceived(seg)

	if seg.Header.Syn && c.sender.NextSeqnoAbsolute() == 0 {
		c.Write(nil)
		c.synSentOrRecv = true
		return
	}

	if !c.synSentOrRecv {
		return
	}

	if seg.Header.Rst {
		c.active = false
		c.sender.StreamIn().SetError()
		c.receiver.StreamOut().SetError()
		return
	}

	if seg.Header.Fin {
		c.finReceived = true
		if !c.finSent {
			c.lingerAfterStreamsFinish = false
		}
	}

	if seg.Header.Ack {
		c.sender.AckReceived(NewWrappingInt32(seg.Header.AckNo), int(seg.Header.Window))
		c.Write(nil)
	}

	if seg.LengthInSequenceSpace() > 0 {
		c.sender.SendEmptySegment()
		c.Write(nil)
	}

	if ackNo, ok := c.receiver.AckNo(); ok && seg.LengthInSequenceSpace() == 0 &&
		seg.Header.SeqNo == ackNo.RawValue()-1 {
		c.sender.SendEmptySegment()
		c.Write(nil)
	}

	c.checkActive()
}

// Tick advances the connection's clock, drives the sender's retransmission
// timer, and gives up (sending a RST) once MaxRetxAttempts consecutive
// retransmissions have occurred.
func (c *TCPConnection) Tick(elapsed time.Duration) {
	if c.sender.ConsecutiveRetransmissions() >= MaxRetxAttempts {
		c.sendReset()
		return
	}

	before := len(c.sender.PeekSegmentsOut())
	c.totalTick += elapsed
	c.sender.Tick(elapsed)
	after := len(c.sender.PeekSegmentsOut())
	if after > before {
		c.Write(nil)
	}

	c.checkActive()
}

// sendReset emits an empty segment, flags it RST after the fact (mirroring
// the original implementation's post-hoc mutation rather than threading an
// rst parameter through FillWindow), and marks the connection dead.
func (c *TCPConnection) sendReset() {
	c.sender.SendEmptySegment()
	pending := c.sender.PeekSegmentsOut()
	if len(pending) > 0 {
		pending[len(pending)-1].Header.Rst = true
	}
	c.Write(nil)

	c.sender.StreamIn().SetError()
	c.receiver.StreamOut().SetError()
	c.active = false
}

// checkActive implements the linger/shutdown policy: once both streams have
// finished and every byte the sender sent has been acknowledged, the
// connection either lingers for 10 RTOs (to absorb a retransmitted FIN from
// the peer) or closes immediately if it never needs to linger.
func (c *TCPConnection) checkActive() {
	if !c.active {
		return
	}

	receiverDone := c.receiver.UnassembledBytes() == 0 && c.receiver.StreamOut().InputEnded()
	senderDone := c.finSent && SenderSummary(c.sender) == SenderFinAcked
	if !(receiverDone && senderDone) {
		return
	}

	if c.lingerAfterStreamsFinish {
		if c.TimeSinceLastSegmentReceived() >= 10*c.cfg.RetxTimeout {
			c.active = false
		}
	} else if c.finReceived {
		c.active = false
	}
}

// Close performs the same unclean-shutdown reset the connection would send
// if dropped while still active (RFC 793 doesn't mandate this, but leaving a
// live connection behind without at least attempting a RST is impolite to
// the peer).
func (c *TCPConnection) Close() {
	if c.active {
		c.sendReset()
	}
}
