package orderbook

import (
	"encoding/json"
	"fmt"
	"time"
)

type SyncState uint8

const (
	Uninitialized SyncState = iota
	Synced
	Desynced
)

func (s SyncState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Synced:
		return "synced"
	case Desynced:
		return "desynced"
	default:
		return "unknown"
	}
}

func (s SyncState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SyncState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "uninitialized":
		*s = Uninitialized
	case "synced":
		*s = Synced
	case "desynced":
		*s = Desynced
	default:
		return fmt.Errorf("unknown sync state %q", b)
	}
	return nil
}

// Status is the per-instrument metadata stamped on a View.
type Status struct {
	State SyncState
	Stale bool
	Seq   uint64
}

// View is an immutable projection of a book. Level slices are never
// shared with the book and must not be modified by receivers.
type View struct {
	Instrument InstrumentID
	Bids       []Level
	Asks       []Level
	BestBid    *Level
	BestAsk    *Level
	Timestamp  time.Time
	State      SyncState
	Stale      bool
	Seq        uint64
}

// Project renders b into a View with at most depth levels per side
// (depth <= 0 renders every level). It reads b without mutating it, so
// the caller must hold whatever lock serialises writers to b.
func Project(b *OrderBook, depth int, st Status) View {
	v := View{
		Instrument: b.ID,
		Bids:       b.Bids.Top(depth),
		Asks:       b.Asks.Top(depth),
		Timestamp:  b.lastTimestamp,
		State:      st.State,
		Stale:      st.Stale,
		Seq:        st.Seq,
	}
	if l, ok := b.BestBid(); ok {
		v.BestBid = &l
	}
	if l, ok := b.BestAsk(); ok {
		v.BestAsk = &l
	}
	return v
}

// Truncate returns v limited to depth levels per side. Views are
// shared between subscribers, so the result reslices rather than edits.
func (v View) Truncate(depth int) View {
	if depth <= 0 {
		return v
	}
	if len(v.Bids) > depth {
		v.Bids = v.Bids[:depth:depth]
	}
	if len(v.Asks) > depth {
		v.Asks = v.Asks[:depth:depth]
	}
	return v
}

type viewJSON struct {
	Instrument InstrumentID `json:"instrument_id"`
	Bids       []Level      `json:"bids"`
	Asks       []Level      `json:"asks"`
	BestBid    *Level       `json:"best_bid"`
	BestAsk    *Level       `json:"best_ask"`
	Timestamp  int64        `json:"timestamp"`
	State      SyncState    `json:"state"`
	Stale      bool         `json:"stale"`
	Seq        uint64       `json:"seq"`
}

func (v View) MarshalJSON() ([]byte, error) {
	return json.Marshal(viewJSON{
		Instrument: v.Instrument,
		Bids:       nonNil(v.Bids),
		Asks:       nonNil(v.Asks),
		BestBid:    v.BestBid,
		BestAsk:    v.BestAsk,
		Timestamp:  unixNano(v.Timestamp),
		State:      v.State,
		Stale:      v.Stale,
		Seq:        v.Seq,
	})
}

func (v *View) UnmarshalJSON(b []byte) error {
	var raw viewJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*v = View{
		Instrument: raw.Instrument,
		Bids:       raw.Bids,
		Asks:       raw.Asks,
		BestBid:    raw.BestBid,
		BestAsk:    raw.BestAsk,
		Timestamp:  fromUnixNano(raw.Timestamp),
		State:      raw.State,
		Stale:      raw.Stale,
		Seq:        raw.Seq,
	}
	return nil
}

func nonNil(ls []Level) []Level {
	if ls == nil {
		return []Level{}
	}
	return ls
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}
