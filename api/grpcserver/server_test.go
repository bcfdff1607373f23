package grpcserver

import (
	"context"
	"net"
	"testing"
	"time"

	"lobcast/domain/orderbook"
	"lobcast/infra/metrics"
	"lobcast/service"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func startServer(t *testing.T, e *service.Engine) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	Register(srv, NewServer(e, 10, zerolog.Nop()))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewClient(conn)
}

func newEngine(t *testing.T) *service.Engine {
	t.Helper()
	e := service.NewEngine(service.Options{QueueSize: 64}, metrics.New(), zerolog.Nop())
	t.Cleanup(e.Close)
	_ = e.ApplySnapshot(orderbook.Snapshot{
		Instrument: "BTC_USD",
		Bids:       []orderbook.Level{orderbook.NewLevel(100, 5), orderbook.NewLevel(99, 3)},
		Asks:       []orderbook.Level{orderbook.NewLevel(101, 4)},
		Timestamp:  time.Unix(1_700_000_000, 0),
	})
	return e
}

func TestGetBook(t *testing.T) {
	c := startServer(t, newEngine(t))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	v, err := c.GetBook(ctx, "BTC_USD", 1)
	if err != nil {
		t.Fatalf("GetBook: %v", err)
	}
	if len(v.Bids) != 1 || !v.Bids[0].Price.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("bids = %+v", v.Bids)
	}
	if !v.Timestamp.Equal(time.Unix(1_700_000_000, 0)) {
		t.Fatalf("timestamp = %v", v.Timestamp)
	}

	_, err = c.GetBook(ctx, "NOPE", 1)
	if status.Code(err) != codes.NotFound {
		t.Fatalf("unknown instrument code = %v", status.Code(err))
	}
}

func TestSubscribeStream(t *testing.T) {
	e := newEngine(t)
	c := startServer(t, e)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	stream, err := c.Subscribe(ctx, "BTC_USD")
	if err != nil {
		t.Fatal(err)
	}
	replica := orderbook.NewReplica("BTC_USD")
	first, err := stream.Recv()
	if err != nil {
		t.Fatal(err)
	}
	if first.Kind != orderbook.MsgSnapshot {
		t.Fatalf("first message kind = %s", first.Kind)
	}
	if err := replica.Apply(first); err != nil {
		t.Fatal(err)
	}

	_ = e.ApplyDelta(orderbook.Delta{
		Instrument: "BTC_USD",
		Side:       orderbook.Sell,
		Price:      decimal.NewFromInt(101),
		Quantity:   0,
		Timestamp:  time.Unix(1_700_000_001, 0),
	})
	next, err := stream.Recv()
	if err != nil {
		t.Fatal(err)
	}
	if err := replica.Apply(next); err != nil {
		t.Fatal(err)
	}
	if v := replica.View(0); len(v.Asks) != 0 || len(v.Bids) != 2 {
		t.Fatalf("replica view = %+v", v)
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for e.SubscriberCount("BTC_USD") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream end did not unsubscribe")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSubscribeRequiresInstrument(t *testing.T) {
	c := startServer(t, newEngine(t))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	stream, err := c.Subscribe(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := stream.Recv(); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %v", status.Code(err))
	}
}
