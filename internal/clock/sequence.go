package clock

import "sync/atomic"

// Sequence is a monotonic logical counter. Each Next call returns a unique,
// strictly increasing value; it never consults wall time.
type Sequence struct {
	seq atomic.Int64
}

func NewSequence() *Sequence {
	return &Sequence{}
}

// NewSequenceAt resumes a sequence from a previously observed position.
func NewSequenceAt(start int64) *Sequence {
	s := &Sequence{}
	s.seq.Store(start)
	return s
}

func (s *Sequence) Next() int64 {
	return s.seq.Add(1)
}

func (s *Sequence) Current() int64 {
	return s.seq.Load()
}
