package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"lobcast/domain/orderbook"
	"lobcast/infra/metrics"
	"lobcast/service"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func newTestHandler(t *testing.T) (*Handler, *service.Engine) {
	t.Helper()
	m := metrics.New()
	e := service.NewEngine(service.Options{QueueSize: 64}, m, zerolog.Nop())
	t.Cleanup(e.Close)
	_ = e.ApplySnapshot(orderbook.Snapshot{
		Instrument: "BTC_USD",
		Bids:       []orderbook.Level{orderbook.NewLevel(100, 5), orderbook.NewLevel(99, 3)},
		Asks:       []orderbook.Level{orderbook.NewLevel(101, 4)},
		Timestamp:  time.Unix(1_700_000_000, 0),
	})
	reg := m.Register(zerolog.Nop())
	h := NewHandler(e, Options{DefaultDepth: 1, Metrics: metrics.Handler(reg)}, zerolog.Nop())
	return h, e
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestGetBookDepth(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := get(t, h, "/api/v1/books/BTC_USD")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	var v orderbook.View
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatal(err)
	}
	if len(v.Bids) != 1 {
		t.Fatalf("default depth not applied: %v", v.Bids)
	}

	rec = get(t, h, "/api/v1/books/BTC_USD?depth=0")
	_ = json.Unmarshal(rec.Body.Bytes(), &v)
	if len(v.Bids) != 2 {
		t.Fatalf("depth=0 should return every level: %v", v.Bids)
	}
}

func TestGetBookErrors(t *testing.T) {
	h, _ := newTestHandler(t)
	if rec := get(t, h, "/api/v1/books/NOPE"); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown instrument status = %d", rec.Code)
	}
	if rec := get(t, h, "/api/v1/books/BTC_USD?depth=-2"); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad depth status = %d", rec.Code)
	}
}

func TestHealthReadyMetrics(t *testing.T) {
	h, _ := newTestHandler(t)
	if rec := get(t, h, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	if rec := get(t, h, "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz before ready = %d", rec.Code)
	}
	h.SetReady(true)
	if rec := get(t, h, "/readyz"); rec.Code != http.StatusOK {
		t.Fatalf("readyz = %d", rec.Code)
	}
	rec := get(t, h, "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "lobcast_snapshots_applied_total") {
		t.Fatalf("metrics body missing engine counters: %d", rec.Code)
	}
}

func TestListBooks(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := get(t, h, "/api/v1/books")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"instrument_id":"BTC_USD"`) {
		t.Fatalf("list = %d %s", rec.Code, rec.Body)
	}
}

func TestWebSocketStream(t *testing.T) {
	h, e := newTestHandler(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/stream/BTC_USD"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	replica := orderbook.NewReplica("BTC_USD")
	var first orderbook.Message
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatal(err)
	}
	if first.Kind != orderbook.MsgSnapshot || len(first.View.Bids) != 2 {
		t.Fatalf("first = %s %v", first.Kind, first.View.Bids)
	}
	if err := replica.Apply(first); err != nil {
		t.Fatal(err)
	}

	err = e.ApplyDelta(orderbook.Delta{
		Instrument: "BTC_USD",
		Side:       orderbook.Buy,
		Price:      decimal.NewFromInt(100),
		Quantity:   7,
		Timestamp:  time.Unix(1_700_000_001, 0),
	})
	if err != nil {
		t.Fatal(err)
	}
	var next orderbook.Message
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatal(err)
	}
	if err := replica.Apply(next); err != nil {
		t.Fatal(err)
	}
	if best := replica.View(0).BestBid; best == nil || best.Quantity != 7 {
		t.Fatalf("replica best bid = %+v", best)
	}
}
