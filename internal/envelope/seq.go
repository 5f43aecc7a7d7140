package envelope

import "sync/atomic"

// Sequence allocates outbound envelope sequence numbers. The zero value is
// ready to use and hands out 1 first.
type Sequence struct {
	n atomic.Uint32
}

// Next returns the next sequence number.
func (s *Sequence) Next() uint32 { return s.n.Add(1) }

// Current returns the last number handed out, or 0.
func (s *Sequence) Current() uint32 { return s.n.Load() }
