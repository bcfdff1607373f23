package orderbook

import (
	"fmt"
	"time"
)

// OrderBook is single-writer and deterministic.
type OrderBook struct {
	ID   InstrumentID
	Bids *LevelSet
	Asks *LevelSet

	lastTimestamp time.Time
	initialized   bool
}

func NewOrderBook(id InstrumentID) *OrderBook {
	return &OrderBook{
		ID:   id,
		Bids: NewLevelSet(Buy),
		Asks: NewLevelSet(Sell),
	}
}

// Initialized reports whether a snapshot has been applied since
// creation or the last Reset.
func (b *OrderBook) Initialized() bool { return b.initialized }

func (b *OrderBook) LastTimestamp() time.Time { return b.lastTimestamp }

// ApplySnapshot replaces both sides. It has no precondition on prior
// state and never fails for a snapshot addressed to this book.
func (b *OrderBook) ApplySnapshot(s Snapshot) error {
	if s.Instrument != b.ID {
		return fmt.Errorf("%w: snapshot for %s applied to %s", ErrInvalidUpdate, s.Instrument, b.ID)
	}
	b.Bids.Replace(s.Bids)
	b.Asks.Replace(s.Asks)
	b.lastTimestamp = s.Timestamp
	b.initialized = true
	return nil
}

// ApplyDelta mutates exactly one level. A delta older than the last
// accepted mutation is rejected with ErrStaleUpdate and leaves the book
// unchanged. Removing an absent level succeeds as a no-op.
func (b *OrderBook) ApplyDelta(d Delta) error {
	if d.Instrument != b.ID {
		return fmt.Errorf("%w: delta for %s applied to %s", ErrInvalidUpdate, d.Instrument, b.ID)
	}
	if err := d.validate(); err != nil {
		return err
	}
	if d.Timestamp.Before(b.lastTimestamp) {
		return fmt.Errorf("%w: %s delta at %d older than book at %d",
			ErrStaleUpdate, b.ID, d.Timestamp.UnixNano(), b.lastTimestamp.UnixNano())
	}

	b.side(d.Side).Set(d.Price, d.Quantity)
	b.lastTimestamp = d.Timestamp
	return nil
}

func (b *OrderBook) BestBid() (Level, bool) { return b.Bids.Best() }

func (b *OrderBook) BestAsk() (Level, bool) { return b.Asks.Best() }

// Reset returns the book to its uninitialized state.
func (b *OrderBook) Reset() {
	b.Bids.Clear()
	b.Asks.Clear()
	b.lastTimestamp = time.Time{}
	b.initialized = false
}

func (b *OrderBook) side(s Side) *LevelSet {
	if s == Buy {
		return b.Bids
	}
	return b.Asks
}
