package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"lobcast/domain/orderbook"

	"github.com/shopspring/decimal"
)

var ErrMalformed = errors.New("malformed feed message")

const (
	typeSnapshot = "snapshot"
	typeDelta    = "delta"
)

// envelope is the JSON shape of one feed message. Timestamps are Unix
// nanoseconds.
type envelope struct {
	Type         string            `json:"type"`
	InstrumentID string            `json:"instrument_id"`
	Bids         []orderbook.Level `json:"bids,omitempty"`
	Asks         []orderbook.Level `json:"asks,omitempty"`
	Side         *wireSide         `json:"side,omitempty"`
	Price        *decimal.Decimal  `json:"price,omitempty"`
	Quantity     int64             `json:"quantity,omitempty"`
	Timestamp    int64             `json:"timestamp"`
}

// wireSide accepts "buy"/"sell" and the legacy boolean flag where true
// means buy.
type wireSide orderbook.Side

func (s wireSide) MarshalJSON() ([]byte, error) {
	return json.Marshal(orderbook.Side(s).String())
}

func (s *wireSide) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch string(b) {
	case "true":
		*s = wireSide(orderbook.SideFromBuyFlag(true))
		return nil
	case "false":
		*s = wireSide(orderbook.SideFromBuyFlag(false))
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("side must be a string or boolean: %w", err)
	}
	side, err := orderbook.ParseSide(raw)
	if err != nil {
		return err
	}
	*s = wireSide(side)
	return nil
}

// Decode parses one feed message into an engine update.
func Decode(b []byte) (orderbook.Update, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return orderbook.Update{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.InstrumentID == "" {
		return orderbook.Update{}, fmt.Errorf("%w: missing instrument_id", ErrMalformed)
	}
	if env.Timestamp <= 0 {
		return orderbook.Update{}, fmt.Errorf("%w: missing timestamp", ErrMalformed)
	}
	at := time.Unix(0, env.Timestamp).UTC()
	id := orderbook.InstrumentID(env.InstrumentID)

	switch env.Type {
	case typeSnapshot:
		return orderbook.SnapshotUpdate(orderbook.Snapshot{
			Instrument: id,
			Bids:       env.Bids,
			Asks:       env.Asks,
			Timestamp:  at,
		}), nil
	case typeDelta:
		if env.Side == nil || env.Price == nil {
			return orderbook.Update{}, fmt.Errorf("%w: delta needs side and price", ErrMalformed)
		}
		return orderbook.DeltaUpdate(orderbook.Delta{
			Instrument: id,
			Side:       orderbook.Side(*env.Side),
			Price:      *env.Price,
			Quantity:   env.Quantity,
			Timestamp:  at,
		}), nil
	}
	return orderbook.Update{}, fmt.Errorf("%w: unknown type %q", ErrMalformed, env.Type)
}

// Encode renders u in the feed format. Used by producers and tests.
func Encode(u orderbook.Update) ([]byte, error) {
	switch u.Kind {
	case orderbook.KindSnapshot:
		if u.Snapshot == nil {
			break
		}
		s := u.Snapshot
		return json.Marshal(envelope{
			Type:         typeSnapshot,
			InstrumentID: string(s.Instrument),
			Bids:         s.Bids,
			Asks:         s.Asks,
			Timestamp:    s.Timestamp.UnixNano(),
		})
	case orderbook.KindDelta:
		if u.Delta == nil {
			break
		}
		d := u.Delta
		side := wireSide(d.Side)
		price := d.Price
		return json.Marshal(envelope{
			Type:         typeDelta,
			InstrumentID: string(d.Instrument),
			Side:         &side,
			Price:        &price,
			Quantity:     d.Quantity,
			Timestamp:    d.Timestamp.UnixNano(),
		})
	}
	return nil, fmt.Errorf("%w: cannot encode %s update", ErrMalformed, u.Kind)
}
