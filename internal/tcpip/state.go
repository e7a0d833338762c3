package tcpip

// SenderStateSummary and ReceiverStateSummary classify each half of the
// connection into the coarse states the teacher's tinyrange-cc-inherited
// terminology (and the original spec this was distilled from) names for
// debugging and test assertions. They are not the RFC 793 state machine by
// themselves; State below combines them with linger/active bits into the
// familiar LISTEN/ESTABLISHED/etc. names.
type SenderStateSummary string

const (
	SenderError    SenderStateSummary = "error (connection was reset)"
	SenderClosed   SenderStateSummary = "waiting for stream to begin (no SYN sent)"
	SenderSynSent  SenderStateSummary = "stream started but nothing acknowledged"
	SenderSynAcked SenderStateSummary = "stream ongoing"
	SenderFinSent  SenderStateSummary = "stream finished (FIN sent) but not fully acknowledged"
	SenderFinAcked SenderStateSummary = "stream finished and fully acknowledged"
)

type ReceiverStateSummary string

const (
	ReceiverError   ReceiverStateSummary = "error (connection was reset)"
	ReceiverListen  ReceiverStateSummary = "waiting for SYN: ackno is empty"
	ReceiverSynRecv ReceiverStateSummary = "SYN received (ackno exists), and input to stream hasn't ended"
	ReceiverFinRecv ReceiverStateSummary = "input to stream has ended"
)

// SenderSummary classifies the sender's half of the connection.
func SenderSummary(s *TCPSender) SenderStateSummary {
	switch {
	case s.StreamIn().Error():
		return SenderError
	case s.NextSeqnoAbsolute() == 0:
		return SenderClosed
	case s.NextSeqnoAbsolute() == uint64(s.BytesInFlight()):
		return SenderSynSent
	case !s.StreamIn().EOF():
		return SenderSynAcked
	case s.NextSeqnoAbsolute() < s.StreamIn().BytesWritten()+2:
		return SenderSynAcked
	case s.BytesInFlight() != 0:
		return SenderFinSent
	default:
		return SenderFinAcked
	}
}

// ReceiverSummary classifies the receiver's half of the connection.
func ReceiverSummary(r *TCPReceiver) ReceiverStateSummary {
	switch {
	case r.StreamOut().Error():
		return ReceiverError
	default:
		if _, ok := r.AckNo(); !ok {
			return ReceiverListen
		}
		if r.StreamOut().InputEnded() {
			return ReceiverFinRecv
		}
		return ReceiverSynRecv
	}
}

// State is the named TCP connection state (RFC 793 terminology), derived
// from the sender/receiver summaries plus whether the connection is active
// and whether it lingers in TIME_WAIT after both streams finish.
type State string

const (
	StateListen     State = "LISTEN"
	StateSynSent    State = "SYN_SENT"
	StateSynRcvd    State = "SYN_RCVD"
	StateEstab      State = "ESTABLISHED"
	StateCloseWait  State = "CLOSE_WAIT"
	StateLastAck    State = "LAST_ACK"
	StateFinWait1   State = "FIN_WAIT_1"
	StateFinWait2   State = "FIN_WAIT_2"
	StateClosing    State = "CLOSING"
	StateTimeWait   State = "TIME_WAIT"
	StateClosed   State = "CLOSED"
	StateReset    State = "RESET"
	StateUnknown  State = "UNKNOWN"
)

// Summarize maps a (sender, receiver, active, linger) tuple onto the named
// connection state.
func Summarize(sender SenderStateSummary, receiver ReceiverStateSummary, active, linger bool) State {
	if sender == SenderError || receiver == ReceiverError {
		return StateReset
	}
	if !active {
		return StateClosed
	}

	switch {
	case receiver == ReceiverListen && sender == SenderClosed:
		return StateListen
	case receiver == ReceiverListen && sender == SenderSynSent:
		return StateSynSent
	case receiver == ReceiverSynRecv && sender == SenderSynSent:
		return StateSynRcvd
	case receiver == ReceiverSynRecv && sender == SenderSynAcked:
		return StateEstab
	case receiver == ReceiverFinRecv && sender == SenderSynAcked:
		return StateCloseWait
	case receiver == ReceiverFinRecv && sender == SenderFinSent && !linger:
		return StateLastAck
	case receiver == ReceiverSynRecv && sender == SenderFinSent:
		return StateFinWait1
	case receiver == ReceiverSynRecv && sender == SenderFinAcked:
		return StateFinWait2
	case receiver == ReceiverFinRecv && sender == SenderFinSent && linger:
		return StateClosing
	case receiver == ReceiverFinRecv && sender == SenderFinAcked && linger:
		return StateTimeWait
	default:
		return StateUnknown
	}
}
