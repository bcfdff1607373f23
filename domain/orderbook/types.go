package orderbook

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// InstrumentID is an opaque instrument key, e.g. "BTC_USD".
type InstrumentID string

type Side uint8

const (
	Buy Side = iota + 1
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// SideFromBuyFlag maps the legacy boolean side flag of the feed wire
// format. The convention is fixed: true is Buy, false is Sell.
func SideFromBuyFlag(isBuy bool) Side {
	if isBuy {
		return Buy
	}
	return Sell
}

// ParseSide accepts "buy"/"bid" and "sell"/"ask" in any case.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(s) {
	case "buy", "bid":
		return Buy, nil
	case "sell", "ask":
		return Sell, nil
	}
	return 0, fmt.Errorf("unknown side %q", s)
}

// Level is an aggregate quantity resting at one price.
type Level struct {
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
}

func NewLevel(price float64, qty int64) Level {
	return Level{Price: decimal.NewFromFloat(price), Quantity: qty}
}

// Snapshot fully replaces a book.
type Snapshot struct {
	Instrument InstrumentID
	Bids       []Level
	Asks       []Level
	Timestamp  time.Time
}

// Delta changes a single price level. Quantity 0 removes the level.
type Delta struct {
	Instrument InstrumentID
	Side       Side
	Price      decimal.Decimal
	Quantity   int64
	Timestamp  time.Time
}

func (d Delta) validate() error {
	if !d.Side.Valid() {
		return fmt.Errorf("%w: side %d", ErrInvalidLevel, d.Side)
	}
	if d.Quantity < 0 {
		return fmt.Errorf("%w: negative quantity %d at %s", ErrInvalidLevel, d.Quantity, d.Price)
	}
	if !d.Price.IsPositive() {
		return fmt.Errorf("%w: non-positive price %s", ErrInvalidLevel, d.Price)
	}
	return nil
}

type UpdateKind uint8

const (
	KindSnapshot UpdateKind = iota + 1
	KindDelta
)

func (k UpdateKind) String() string {
	switch k {
	case KindSnapshot:
		return "snapshot"
	case KindDelta:
		return "delta"
	default:
		return "unknown"
	}
}

// Update is the inbound Snapshot | Delta variant. Exactly one of the
// pointers is set, matching Kind.
type Update struct {
	Kind     UpdateKind
	Snapshot *Snapshot
	Delta    *Delta
}

func SnapshotUpdate(s Snapshot) Update {
	return Update{Kind: KindSnapshot, Snapshot: &s}
}

func DeltaUpdate(d Delta) Update {
	return Update{Kind: KindDelta, Delta: &d}
}

// Instrument returns the instrument the update addresses, or "" when the
// payload for Kind is missing.
func (u Update) Instrument() InstrumentID {
	switch {
	case u.Kind == KindSnapshot && u.Snapshot != nil:
		return u.Snapshot.Instrument
	case u.Kind == KindDelta && u.Delta != nil:
		return u.Delta.Instrument
	}
	return ""
}
