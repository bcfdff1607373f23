package sequence

import "sync/atomic"

// Sequencer hands out gap-free, strictly increasing numbers. The engine
// keeps one per instrument to number outbound messages; the outbox keeps
// one for its keys.
type Sequencer struct {
	last atomic.Uint64
}

// New returns a sequencer whose first Next is start+1.
func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.last.Store(start)
	return s
}

func (s *Sequencer) Next() uint64 {
	return s.last.Add(1)
}

// Last returns the most recently issued number, or the start value.
func (s *Sequencer) Last() uint64 {
	return s.last.Load()
}

// Resume continues numbering after v. Used when reopening a store that
// already holds numbered entries.
func (s *Sequencer) Resume(v uint64) {
	for {
		cur := s.last.Load()
		if v <= cur || s.last.CompareAndSwap(cur, v) {
			return
		}
	}
}
