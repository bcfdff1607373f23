package orderbook

import (
	"errors"
	"fmt"
)

var (
	ErrNoBaseView  = errors.New("delta received before a full view")
	ErrSequenceGap = errors.New("message sequence gap")
)

// Replica rebuilds a book on the consumer side from a subscription's
// message stream. It expects full-depth views.
type Replica struct {
	book    *OrderBook
	status  Status
	hasBase bool
}

func NewReplica(id InstrumentID) *Replica {
	return &Replica{book: NewOrderBook(id)}
}

// Apply folds one message into the replica. A snapshot re-bases the
// sequence, so it is accepted after a gap; deltas and status messages
// must follow the last applied message.
func (r *Replica) Apply(m Message) error {
	if r.hasBase && m.Kind != MsgSnapshot && m.Seq() != r.status.Seq+1 {
		return fmt.Errorf("%w: %s expected %d got %d", ErrSequenceGap, r.book.ID, r.status.Seq+1, m.Seq())
	}

	switch m.Kind {
	case MsgSnapshot:
		if err := r.book.ApplySnapshot(Snapshot{
			Instrument: m.View.Instrument,
			Bids:       m.View.Bids,
			Asks:       m.View.Asks,
			Timestamp:  m.View.Timestamp,
		}); err != nil {
			return err
		}
	case MsgDelta:
		if !r.hasBase {
			return ErrNoBaseView
		}
		if m.Delta == nil {
			return fmt.Errorf("%w: delta message without delta", ErrInvalidUpdate)
		}
		if err := r.book.ApplyDelta(*m.Delta); err != nil {
			return err
		}
	case MsgStatus:
		if m.View.State == Uninitialized {
			r.book.Reset()
		}
	default:
		return fmt.Errorf("%w: message kind %d", ErrInvalidUpdate, m.Kind)
	}

	r.status = Status{State: m.View.State, Stale: m.View.Stale, Seq: m.Seq()}
	r.hasBase = true
	return nil
}

// View projects the replica at the given depth.
func (r *Replica) View(depth int) View {
	return Project(r.book, depth, r.status)
}

func (r *Replica) Status() Status { return r.status }
