package tcpip

import "sort"

// segment is a contiguous, not-yet-assembled run of bytes waiting on earlier
// stream index data to arrive.
type segment struct {
	index uint64
	data  []byte
}

func (s segment) end() uint64 {
	return s.index + uint64(len(s.data))
}

// StreamReassembler accepts possibly-overlapping, possibly-out-of-order
// substrings addressed by absolute stream index and reassembles them into a
// single in-order ByteStream, dropping whatever falls outside the output
// stream's available capacity.
type StreamReassembler struct {
	out      *ByteStream
	pending  []segment // sorted, non-overlapping, held until contiguous with out
	eofIndex uint64
	eofSeen  bool
}

// NewStreamReassembler constructs a reassembler writing into a ByteStream of
// the given capacity.
func NewStreamReassembler(capacity int) *StreamReassembler {
	return &StreamReassembler{out: NewByteStream(capacity)}
}

// PushSubstring delivers a substring of the logical byte stream starting at
// the given absolute index. If eof is true, index+len(data) marks the end of
// the stream. Bytes already written, or beyond the reassembler's available
// capacity, are silently trimmed.
func (r *StreamReassembler) PushSubstring(data []byte, index uint64, eof bool) {
	if eof {
		r.eofIndex = index + uint64(len(data))
		r.eofSeen = true
	}

	firstUnassembled := r.out.BytesWritten()
	// Window is bounded by the output stream's remaining capacity alone, per
	// [N, N+remaining_capacity).
	windowEnd := firstUnassembled + uint64(r.out.RemainingCapacity())

	start := index
	end := index + uint64(len(data))
	if start < firstUnassembled {
		start = firstUnassembled
	}
	if end > windowEnd {
		end = windowEnd
	}
	if end > start {
		trimmed := data[start-index : end-index]
		r.insert(segment{index: start, data: trimmed})
	} else if len(data) == 0 && eof && index == firstUnassembled {
		// Empty final substring that lands exactly at the assembly point:
		// nothing to insert, but reassemble() below must still notice EOF.
	}

	r.reassemble()
}

// insert merges a new segment into the sorted, non-overlapping pending list.
func (r *StreamReassembler) insert(seg segment) {
	merged := append([]segment{}, r.pending...)
	merged = append(merged, seg)
	sort.Slice(merged, func(i, j int) bool { return merged[i].index < merged[j].index })

	out := merged[:0]
	for _, s := range merged {
		if len(out) > 0 {
			last := &out[len(out)-1]
			if s.index <= last.end() {
				if s.end() > last.end() {
					extra := s.end() - last.end()
					last.data = append(last.data, s.data[uint64(len(s.data))-extra:]...)
				}
				continue
			}
		}
		out = append(out, s)
	}
	r.pending = out
}

// reassemble writes any pending segment that is now contiguous with the
// output stream's write position into the stream, and ends input once EOF
// has been observed and every byte up to it has been written.
func (r *StreamReassembler) reassemble() {
	for len(r.pending) > 0 && r.pending[0].index == r.out.BytesWritten() {
		seg := r.pending[0]
		n, _ := r.out.Write(seg.data)
		if n < len(seg.data) {
			// The stream ran out of room partway through; keep whatever
			// didn't fit as still-pending instead of losing it.
			r.pending[0] = segment{index: seg.index + uint64(n), data: seg.data[n:]}
			break
		}
		r.pending = r.pending[1:]
	}

	if r.eofSeen && r.out.BytesWritten() == r.eofIndex {
		r.out.EndInput()
	}
}

// UnassembledBytes returns the number of bytes currently buffered but not
// yet written to the output stream (because of a gap before them).
func (r *StreamReassembler) UnassembledBytes() int {
	total := 0
	for _, s := range r.pending {
		total += len(s.data)
	}
	return total
}

// StreamOut returns the reassembled output stream.
func (r *StreamReassembler) StreamOut() *ByteStream {
	return r.out
}
