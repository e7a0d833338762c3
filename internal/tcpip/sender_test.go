package tcpip

import (
	"testing"
	"time"
)

// TestTCPSenderIgnoresStaleAck reproduces a duplicate/stale ack arriving
// after the window has already advanced past it: it must not rewind the
// checkpoint, overwrite the advertised window, or drop outstanding segments
// the stale ack doesn't actually cover.
func TestTCPSenderIgnoresStaleAck(t *testing.T) {
	isn := NewWrappingInt32(0)
	s := NewTCPSender(4000, time.Second, &isn)

	s.FillWindow() // SYN, nextSeqNo -> 1
	s.SegmentsOut()

	s.AckReceived(Wrap(1, isn), 1000) // acks the SYN

	s.StreamIn().Write([]byte("hello world"))
	s.FillWindow()
	s.SegmentsOut()

	s.AckReceived(Wrap(6, isn), 500) // acks the first 5 data bytes

	wantWindow := s.windowSize
	wantCheckpoint := s.checkpoint
	wantOutstanding := s.outstanding.Len()
	if wantOutstanding == 0 {
		t.Fatalf("setup: expected an outstanding segment not yet fully acked")
	}

	// Stale: absolute ack 3 is behind the checkpoint of 6. A shrunk window
	// of 10 must not be adopted, and nothing outstanding may be removed.
	s.AckReceived(Wrap(3, isn), 10)

	if s.windowSize != wantWindow {
		t.Fatalf("window size after stale ack: got %d, want %d (unchanged)", s.windowSize, wantWindow)
	}
	if s.checkpoint != wantCheckpoint {
		t.Fatalf("checkpoint after stale ack: got %d, want %d (unchanged)", s.checkpoint, wantCheckpoint)
	}
	if s.outstanding.Len() != wantOutstanding {
		t.Fatalf("outstanding count after stale ack: got %d, want %d (unchanged)", s.outstanding.Len(), wantOutstanding)
	}
}

// TestTCPSenderRejectsAckBeyondNextSeqNo covers the existing half of the
// validity check alongside the stale-ack half above: an ack for a sequence
// number never sent must not advance anything either.
func TestTCPSenderRejectsAckBeyondNextSeqNo(t *testing.T) {
	isn := NewWrappingInt32(0)
	s := NewTCPSender(4000, time.Second, &isn)

	s.FillWindow() // SYN, nextSeqNo -> 1
	s.SegmentsOut()

	s.AckReceived(Wrap(500, isn), 1000) // nothing sent past seqno 1

	if s.checkpoint != 0 {
		t.Fatalf("checkpoint after out-of-range ack: got %d, want 0", s.checkpoint)
	}
	if s.windowKnown {
		t.Fatalf("window known after out-of-range ack: got true, want false")
	}
}
