package feed

import (
	"errors"
	"testing"
	"time"

	"lobcast/domain/orderbook"

	"github.com/shopspring/decimal"
)

func TestDecodeSnapshot(t *testing.T) {
	raw := `{"type":"snapshot","instrument_id":"BTC_USD","bids":[{"price":"100.5","quantity":5},{"price":99,"quantity":3}],"asks":[{"price":"101","quantity":4}],"timestamp":1700000000000000000}`
	u, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if u.Kind != orderbook.KindSnapshot || u.Snapshot == nil {
		t.Fatalf("kind = %s", u.Kind)
	}
	s := u.Snapshot
	if s.Instrument != "BTC_USD" || len(s.Bids) != 2 || len(s.Asks) != 1 {
		t.Fatalf("snapshot = %+v", s)
	}
	if !s.Bids[0].Price.Equal(decimal.RequireFromString("100.5")) || s.Bids[1].Quantity != 3 {
		t.Fatalf("bids = %+v", s.Bids)
	}
	if !s.Timestamp.Equal(time.Unix(1_700_000_000, 0)) {
		t.Fatalf("timestamp = %v", s.Timestamp)
	}
}

func TestDecodeDeltaSideForms(t *testing.T) {
	cases := map[string]orderbook.Side{
		`true`:   orderbook.Buy,
		`false`:  orderbook.Sell,
		`"buy"`:  orderbook.Buy,
		`"sell"`: orderbook.Sell,
		`"bid"`:  orderbook.Buy,
		`"ask"`:  orderbook.Sell,
	}
	for side, want := range cases {
		raw := `{"type":"delta","instrument_id":"ETH_USD","side":` + side + `,"price":"2000.25","quantity":0,"timestamp":5}`
		u, err := Decode([]byte(raw))
		if err != nil {
			t.Fatalf("side %s: %v", side, err)
		}
		if u.Delta.Side != want {
			t.Errorf("side %s decoded as %s, want %s", side, u.Delta.Side, want)
		}
		if u.Delta.Quantity != 0 {
			t.Errorf("quantity = %d", u.Delta.Quantity)
		}
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"type":"delta","instrument_id":"X","price":"1","timestamp":1}`,
		`{"type":"delta","instrument_id":"X","side":"up","price":"1","timestamp":1}`,
		`{"type":"snapshot","timestamp":1}`,
		`{"type":"snapshot","instrument_id":"X"}`,
		`{"type":"trade","instrument_id":"X","timestamp":1}`,
	} {
		if _, err := Decode([]byte(raw)); err == nil {
			t.Errorf("Decode(%s) succeeded", raw)
		} else if !errors.Is(err, ErrMalformed) {
			t.Errorf("Decode(%s) = %v, want ErrMalformed", raw, err)
		}
	}
}

func TestEncodeDecodeDelta(t *testing.T) {
	in := orderbook.DeltaUpdate(orderbook.Delta{
		Instrument: "SOL_USD",
		Side:       orderbook.Sell,
		Price:      decimal.RequireFromString("21.125"),
		Quantity:   9,
		Timestamp:  time.Unix(0, 42),
	})
	raw, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	d := out.Delta
	if d.Side != orderbook.Sell || !d.Price.Equal(in.Delta.Price) || d.Quantity != 9 || d.Timestamp.UnixNano() != 42 {
		t.Fatalf("round trip lost data: %s -> %+v", raw, d)
	}
}
