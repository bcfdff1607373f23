package orderbook

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestProjectDepthTruncation(t *testing.T) {
	b := NewOrderBook("ETH_USD")
	_ = b.ApplySnapshot(Snapshot{
		Instrument: "ETH_USD",
		Bids:       []Level{NewLevel(10, 1), NewLevel(12, 1), NewLevel(11, 1)},
		Asks:       []Level{NewLevel(15, 1), NewLevel(13, 1), NewLevel(14, 1)},
		Timestamp:  ts(0),
	})

	v := Project(b, 2, Status{State: Synced, Seq: 3})
	assertLevels(t, "bids", v.Bids, NewLevel(12, 1), NewLevel(11, 1))
	assertLevels(t, "asks", v.Asks, NewLevel(13, 1), NewLevel(14, 1))
	if v.Seq != 3 || v.State != Synced {
		t.Errorf("status not stamped: seq=%d state=%s", v.Seq, v.State)
	}

	all := Project(b, 0, Status{})
	if len(all.Bids) != 3 || len(all.Asks) != 3 {
		t.Fatalf("depth 0 should render every level, got %d/%d", len(all.Bids), len(all.Asks))
	}
}

func TestProjectDeterministicAndDetached(t *testing.T) {
	b := newSnapshotBook(t)
	st := Status{State: Synced, Seq: 1}

	v1 := Project(b, 0, st)
	v2 := Project(b, 0, st)
	if !reflect.DeepEqual(v1, v2) {
		t.Fatalf("projections differ:\n%+v\n%+v", v1, v2)
	}

	v1.Bids[0].Quantity = 999
	if q, _ := b.Bids.Quantity(px(100)); q != 5 {
		t.Fatalf("mutating a view leaked into the book: qty=%d", q)
	}
}

func TestProjectEmptyBook(t *testing.T) {
	v := Project(NewOrderBook("XRP_USD"), 5, Status{})
	if v.BestBid != nil || v.BestAsk != nil {
		t.Fatal("empty book must have no best levels")
	}
	if len(v.Bids) != 0 || len(v.Asks) != 0 {
		t.Fatal("empty book must render no levels")
	}
}

func TestViewJSONShape(t *testing.T) {
	b := newSnapshotBook(t)
	_ = b.ApplyDelta(delta(Sell, 101, 0, 1))

	raw, err := json.Marshal(Project(b, 0, Status{State: Synced, Seq: 2}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(raw)
	for _, want := range []string{`"instrument_id":"BTC_USD"`, `"asks":[]`, `"best_ask":null`, `"state":"synced"`, `"seq":2`} {
		if !strings.Contains(s, want) {
			t.Errorf("view json %s missing %s", s, want)
		}
	}

	var back View
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.BestBid == nil || !back.BestBid.Price.Equal(px(100)) || !back.Timestamp.Equal(ts(1)) {
		t.Fatalf("decoded view lost data: %+v", back)
	}
}

func TestTruncateLeavesSourceIntact(t *testing.T) {
	b := newSnapshotBook(t)
	full := Project(b, 0, Status{})
	top := full.Truncate(1)
	assertLevels(t, "bids", top.Bids, NewLevel(100, 5))
	if len(full.Bids) != 2 {
		t.Fatalf("truncate modified the source view: %v", full.Bids)
	}
	if len(full.Truncate(0).Bids) != 2 {
		t.Fatal("depth 0 must keep every level")
	}
}
