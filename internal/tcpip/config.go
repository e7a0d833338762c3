package tcpip

import "time"

// TCPConfig bundles the tunable parameters of a TCPConnection.
type TCPConfig struct {
	RetxTimeout  time.Duration
	RecvCapacity int
	SendCapacity int
	FixedISN     *WrappingInt32
}

const (
	// DefaultCapacity is the default byte-stream capacity for both the send
	// and receive sides of a connection.
	DefaultCapacity = 64000
	// MaxPayloadSize bounds how many payload bytes a single outgoing segment
	// carries.
	MaxPayloadSize = 1452
	// TimeoutDefault is the initial retransmission timeout.
	TimeoutDefault = 1000 * time.Millisecond
	// MaxRetxAttempts is the number of consecutive retransmissions a sender
	// tolerates before the connection gives up and resets.
	MaxRetxAttempts = 8
)

// DefaultTCPConfig returns a TCPConfig with the package defaults.
func DefaultTCPConfig() TCPConfig {
	return TCPConfig{
		RetxTimeout:  TimeoutDefault,
		RecvCapacity: DefaultCapacity,
		SendCapacity: DefaultCapacity,
	}
}
