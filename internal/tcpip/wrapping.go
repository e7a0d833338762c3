// Package tcpip implements the core of a userspace TCP/IP stack: sequence
// number arithmetic, a bounded byte stream, stream reassembly, and the TCP
// receive/send/connection state machines. Nothing in this package spawns a
// goroutine or takes a lock; callers drive it with plain method calls from a
// single-threaded event loop (see internal/tunnel for that loop).
package tcpip

import "fmt"

// WrappingInt32 is a 32-bit sequence number that wraps modulo 2^32, used for
// TCP sequence and acknowledgment numbers.
type WrappingInt32 struct {
	raw uint32
}

// NewWrappingInt32 constructs a WrappingInt32 from its raw wire value.
func NewWrappingInt32(raw uint32) WrappingInt32 {
	return WrappingInt32{raw: raw}
}

// RawValue returns the underlying 32-bit wire value.
func (w WrappingInt32) RawValue() uint32 {
	return w.raw
}

// Add returns w shifted by n (mod 2^32), n may be negative.
func (w WrappingInt32) Add(n int64) WrappingInt32 {
	return WrappingInt32{raw: uint32(int64(w.raw) + n)}
}

// Sub returns the wrapped difference w - other, the distance in both
// directions being ambiguous without a checkpoint; callers that need the
// absolute distance should use Unwrap.
func (w WrappingInt32) Sub(other WrappingInt32) int64 {
	return int64(int32(w.raw - other.raw))
}

func (w WrappingInt32) String() string {
	return fmt.Sprintf("%d", w.raw)
}

// Equal reports whether two WrappingInt32 values have the same raw value.
func (w WrappingInt32) Equal(other WrappingInt32) bool {
	return w.raw == other.raw
}

// Wrap converts the absolute sequence number n into a WrappingInt32 relative
// to isn (the initial sequence number).
func Wrap(n uint64, isn WrappingInt32) WrappingInt32 {
	return WrappingInt32{raw: isn.raw + uint32(n)}
}

// Unwrap returns the absolute sequence number corresponding to seq (relative
// to isn) that is closest to checkpoint. Because sequence numbers repeat
// every 2^32, there are infinitely many absolute values that wrap to the same
// seq; Unwrap picks the one nearest checkpoint.
func Unwrap(seq, isn WrappingInt32, checkpoint uint64) uint64 {
	const modulus = uint64(1) << 32

	offset := uint64(seq.raw - isn.raw) // seq's position within [0, 2^32) relative to isn

	// checkpoint's own offset into the current 2^32 period, and the base of
	// that period. The absolute value we want is base+offset, but the true
	// nearest candidate may instead lie one period below or above base.
	base := (checkpoint / modulus) * modulus
	candidate := base + offset

	if candidate > checkpoint {
		if candidate >= modulus {
			below := candidate - modulus
			if distance(below, checkpoint) < distance(candidate, checkpoint) {
				candidate = below
			}
		}
	} else {
		above := candidate + modulus
		if distance(above, checkpoint) < distance(candidate, checkpoint) {
			candidate = above
		}
	}

	return candidate
}

func distance(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
