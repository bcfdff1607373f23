package orderbook

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

type MessageKind uint8

const (
	// MsgSnapshot carries a full view. It is always the first message a
	// subscriber sees once the book is initialized.
	MsgSnapshot MessageKind = iota + 1
	// MsgDelta carries the applied delta and the post-delta view.
	MsgDelta
	// MsgStatus reports a sync/staleness change; the book itself did
	// not change unless the view says it was reset.
	MsgStatus
)

func (k MessageKind) String() string {
	switch k {
	case MsgSnapshot:
		return "snapshot"
	case MsgDelta:
		return "delta"
	case MsgStatus:
		return "status"
	default:
		return "unknown"
	}
}

func parseMessageKind(s string) (MessageKind, error) {
	switch s {
	case "snapshot":
		return MsgSnapshot, nil
	case "delta":
		return MsgDelta, nil
	case "status":
		return MsgStatus, nil
	}
	return 0, fmt.Errorf("unknown message kind %q", s)
}

// Message is the outbound variant delivered to subscribers.
type Message struct {
	Kind  MessageKind
	View  View
	Delta *Delta
}

func (m Message) Seq() uint64 { return m.View.Seq }

type deltaJSON struct {
	Side      string          `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
	Timestamp int64           `json:"timestamp"`
}

type messageJSON struct {
	Type  string     `json:"type"`
	View  View       `json:"view"`
	Delta *deltaJSON `json:"delta,omitempty"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	out := messageJSON{Type: m.Kind.String(), View: m.View}
	if m.Delta != nil {
		out.Delta = &deltaJSON{
			Side:      m.Delta.Side.String(),
			Price:     m.Delta.Price,
			Quantity:  m.Delta.Quantity,
			Timestamp: unixNano(m.Delta.Timestamp),
		}
	}
	return json.Marshal(out)
}

func (m *Message) UnmarshalJSON(b []byte) error {
	var raw messageJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	kind, err := parseMessageKind(raw.Type)
	if err != nil {
		return err
	}
	*m = Message{Kind: kind, View: raw.View}
	if raw.Delta != nil {
		side, err := ParseSide(raw.Delta.Side)
		if err != nil {
			return err
		}
		m.Delta = &Delta{
			Instrument: raw.View.Instrument,
			Side:       side,
			Price:      raw.Delta.Price,
			Quantity:   raw.Delta.Quantity,
			Timestamp:  fromUnixNano(raw.Delta.Timestamp),
		}
	}
	return nil
}
