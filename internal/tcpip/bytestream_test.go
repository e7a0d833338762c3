package tcpip

import "testing"

func TestByteStreamWriteReadEnd(t *testing.T) {
	s := NewByteStream(15)

	if n, _ := s.Write([]byte("cat")); n != 3 {
		t.Fatalf("write: got %d, want 3", n)
	}
	if s.InputEnded() {
		t.Fatalf("input_ended: got true, want false")
	}
	if s.BufferEmpty() {
		t.Fatalf("buffer_empty: got true, want false")
	}
	if s.EOF() {
		t.Fatalf("eof: got true, want false")
	}
	if got := s.BytesRead(); got != 0 {
		t.Fatalf("bytes_read: got %d, want 0", got)
	}
	if got := s.BytesWritten(); got != 3 {
		t.Fatalf("bytes_written: got %d, want 3", got)
	}
	if got := s.RemainingCapacity(); got != 12 {
		t.Fatalf("remaining_capacity: got %d, want 12", got)
	}
	if got := string(s.Peek(3)); got != "cat" {
		t.Fatalf("peek: got %q, want %q", got, "cat")
	}

	s.EndInput()
	if !s.InputEnded() {
		t.Fatalf("input_ended: got false, want true")
	}

	s.Pop(3)
	if !s.EOF() {
		t.Fatalf("eof: got false, want true")
	}
	if got := s.RemainingCapacity(); got != 15 {
		t.Fatalf("remaining_capacity after pop: got %d, want 15", got)
	}
}

func TestByteStreamCapacityOverwrite(t *testing.T) {
	s := NewByteStream(2)

	if n, _ := s.Write([]byte("cat")); n != 2 {
		t.Fatalf("write: got %d, want 2 (truncated to capacity)", n)
	}
	if got := string(s.Peek(2)); got != "ca" {
		t.Fatalf("peek: got %q, want %q", got, "ca")
	}
	if n, _ := s.Write([]byte("t")); n != 0 {
		t.Fatalf("write into full stream: got %d, want 0", n)
	}

	s.Pop(2)
	if n, _ := s.Write([]byte("tac")); n != 2 {
		t.Fatalf("write after pop: got %d, want 2", n)
	}
	if got := string(s.Peek(2)); got != "ta" {
		t.Fatalf("peek: got %q, want %q", got, "ta")
	}
}

func TestByteStreamWrapsAroundRingBuffer(t *testing.T) {
	s := NewByteStream(3)

	s.Write([]byte("abcdef"))
	if got := string(s.Peek(3)); got != "abc" {
		t.Fatalf("peek: got %q, want %q", got, "abc")
	}
	s.Pop(1)

	for i := 0; i < 1000; i++ {
		if got := s.RemainingCapacity(); got != 1 {
			t.Fatalf("iteration %d: remaining_capacity: got %d, want 1", i, got)
		}
		s.Write([]byte("x"))
		if got := s.RemainingCapacity(); got != 0 {
			t.Fatalf("iteration %d: remaining_capacity after write: got %d, want 0", i, got)
		}
		s.Pop(1)
	}

	s.EndInput()
	s.Pop(s.BufferSize())
	if !s.EOF() {
		t.Fatalf("eof: got false, want true")
	}
}

func TestByteStreamSetError(t *testing.T) {
	s := NewByteStream(4)
	if s.Error() {
		t.Fatalf("error: got true, want false")
	}
	s.SetError()
	if !s.Error() {
		t.Fatalf("error: got false, want true")
	}
}
