package tcpip

// ByteStream is a bounded, in-order FIFO of bytes. Writers fill it up to its
// capacity; once capacity is reached, further writes are truncated rather
// than blocking or growing the buffer. A stream can be ended (no more bytes
// will ever be written) and can carry a sticky error flag set by a consumer
// that has given up on it (e.g. after a TCP reset).
type ByteStream struct {
	buf      []byte
	capacity int
	readPos  int
	writePos int

	totalRead  uint64
	totalWrite uint64

	inputEnded bool
	errored    bool
}

// NewByteStream constructs a ByteStream with the given capacity in bytes.
func NewByteStream(capacity int) *ByteStream {
	return &ByteStream{
		buf:      make([]byte, capacity),
		capacity: capacity,
	}
}

// Write copies as much of data as fits in the remaining capacity, returning
// the number of bytes actually written.
func (s *ByteStream) Write(data []byte) (int, error) {
	n := min(s.RemainingCapacity(), len(data))
	if n == 0 {
		return 0, nil
	}

	tail := s.capacity - s.writePos
	if n <= tail {
		copy(s.buf[s.writePos:s.writePos+n], data[:n])
		s.writePos = (s.writePos + n) % s.capacity
	} else {
		copy(s.buf[s.writePos:s.capacity], data[:tail])
		rest := n - tail
		copy(s.buf[0:rest], data[tail:n])
		s.writePos = rest
	}
	s.totalWrite += uint64(n)
	return n, nil
}

// Peek returns up to len bytes at the front of the stream without consuming
// them.
func (s *ByteStream) Peek(length int) []byte {
	n := min(s.BufferSize(), length)
	if n == 0 {
		return nil
	}

	out := make([]byte, n)
	tail := s.capacity - s.readPos
	if n <= tail {
		copy(out, s.buf[s.readPos:s.readPos+n])
	} else {
		copy(out, s.buf[s.readPos:s.capacity])
		copy(out[tail:], s.buf[0:n-tail])
	}
	return out
}

// Pop discards the first length bytes of the stream (equivalent to Read
// followed by discarding the result).
func (s *ByteStream) Pop(length int) {
	n := min(s.BufferSize(), length)
	s.readPos = (s.readPos + n) % s.capacity
	s.totalRead += uint64(n)
}

// Read removes and returns up to length bytes from the front of the stream.
func (s *ByteStream) Read(length int) []byte {
	out := s.Peek(length)
	s.Pop(len(out))
	return out
}

// EndInput marks that no further bytes will ever be written.
func (s *ByteStream) EndInput() {
	s.inputEnded = true
}

// InputEnded reports whether EndInput has been called.
func (s *ByteStream) InputEnded() bool {
	return s.inputEnded
}

// BufferSize returns the number of bytes currently buffered and unread.
func (s *ByteStream) BufferSize() int {
	return int(s.totalWrite - s.totalRead)
}

// BufferEmpty reports whether there are no buffered bytes left to read.
func (s *ByteStream) BufferEmpty() bool {
	return s.totalWrite == s.totalRead
}

// EOF reports whether input has ended and every written byte has been read.
func (s *ByteStream) EOF() bool {
	return s.inputEnded && s.totalRead == s.totalWrite
}

// BytesWritten returns the total number of bytes ever written to the stream.
func (s *ByteStream) BytesWritten() uint64 {
	return s.totalWrite
}

// BytesRead returns the total number of bytes ever read from the stream.
func (s *ByteStream) BytesRead() uint64 {
	return s.totalRead
}

// RemainingCapacity returns how many more bytes can be written before the
// stream is full.
func (s *ByteStream) RemainingCapacity() int {
	return s.capacity - s.BufferSize()
}

// SetError marks the stream as errored. Once set it is never cleared; a
// consumer should stop reading and a producer should stop writing.
func (s *ByteStream) SetError() {
	s.errored = true
}

// Error reports whether SetError has been called on this stream.
func (s *ByteStream) Error() bool {
	return s.errored
}
