package feed

import (
	"context"
	"errors"
	"testing"

	"lobcast/domain/orderbook"
	"lobcast/infra/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

type ackCall struct {
	tag     uint64
	ack     bool
	requeue bool
}

// recordingAcker stands in for the channel behind a delivery.
type recordingAcker struct {
	calls []ackCall
}

func (a *recordingAcker) Ack(tag uint64, multiple bool) error {
	a.calls = append(a.calls, ackCall{tag: tag, ack: true})
	return nil
}

func (a *recordingAcker) Nack(tag uint64, multiple, requeue bool) error {
	a.calls = append(a.calls, ackCall{tag: tag, requeue: requeue})
	return nil
}

func (a *recordingAcker) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

const amqpDelta = `{"type":"delta","instrument_id":"BTC_USD","side":"buy","price":"100","quantity":1,"timestamp":1700000000000000000}`

func TestAMQPHandleAcknowledgement(t *testing.T) {
	errEngine := errors.New("engine down")
	cases := []struct {
		name       string
		body       string
		handlerErr error
		wantErr    bool
		want       ackCall
	}{
		{name: "accepted", body: amqpDelta, want: ackCall{tag: 7, ack: true}},
		{name: "undecodable", body: `{"type":`, want: ackCall{tag: 7, requeue: false}},
		{name: "handler error", body: amqpDelta, handlerErr: errEngine, wantErr: true, want: ackCall{tag: 7, requeue: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := metrics.New()
			src, err := NewAMQPSource(AMQPConfig{URL: "amqp://localhost", Exchange: "feed"}, m, zerolog.Nop())
			if err != nil {
				t.Fatal(err)
			}
			acker := &recordingAcker{}
			d := amqp.Delivery{Acknowledger: acker, DeliveryTag: 7, Body: []byte(tc.body)}

			var seen []orderbook.Update
			h := func(_ context.Context, u orderbook.Update) error {
				seen = append(seen, u)
				return tc.handlerErr
			}
			err = src.handle(context.Background(), h, &d)
			if (err != nil) != tc.wantErr {
				t.Fatalf("handle err = %v, want error %v", err, tc.wantErr)
			}
			if len(acker.calls) != 1 || acker.calls[0] != tc.want {
				t.Fatalf("acks = %+v, want [%+v]", acker.calls, tc.want)
			}
			if tc.name == "undecodable" {
				if len(seen) != 0 {
					t.Fatal("undecodable body reached the handler")
				}
				if c := testutil.ToFloat64(m.FeedDecodeErrors.WithLabelValues("amqp")); c != 1 {
					t.Fatalf("decode errors = %v, want 1", c)
				}
			}
		})
	}
}
