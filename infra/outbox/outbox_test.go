package outbox

import (
	"errors"
	"testing"

	"github.com/cockroachdb/pebble"
)

func TestAppendScanAck(t *testing.T) {
	o, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer o.Close()

	for _, inst := range []string{"BTC_USD", "ETH_USD", "BTC_USD"} {
		if _, err := o.Append(inst, []byte(`{"type":"delta"}`)); err != nil {
			t.Fatal(err)
		}
	}

	var seqs []uint64
	if err := o.ScanPending(0, func(e Entry) error {
		seqs = append(seqs, e.Seq)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(seqs) != 3 || seqs[0] != 1 || seqs[2] != 3 {
		t.Fatalf("scan order = %v", seqs)
	}

	if err := o.Ack(2); err != nil {
		t.Fatal(err)
	}
	if n, _ := o.Pending(); n != 2 {
		t.Fatalf("pending = %d, want 2", n)
	}
	if _, err := o.Get(2); !errors.Is(err, pebble.ErrNotFound) {
		t.Fatalf("acked entry still present: %v", err)
	}
}

func TestMarkFailedKeepsPayload(t *testing.T) {
	o, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer o.Close()

	seq, _ := o.Append("SOL_USD", []byte("payload"))
	e, _ := o.Get(seq)
	if err := o.MarkFailed(e); err != nil {
		t.Fatal(err)
	}
	got, err := o.Get(seq)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != StateFailed || got.Retries != 1 || got.LastAttempt == 0 {
		t.Fatalf("entry = %+v", got)
	}
	if got.Instrument != "SOL_USD" || string(got.Payload) != "payload" {
		t.Fatalf("entry data lost: %+v", got)
	}
}

func TestReopenContinuesSequence(t *testing.T) {
	dir := t.TempDir()
	o, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = o.Append("BTC_USD", []byte("a"))
	_, _ = o.Append("BTC_USD", []byte("b"))
	if err := o.Close(); err != nil {
		t.Fatal(err)
	}

	o, err = Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer o.Close()
	seq, _ := o.Append("BTC_USD", []byte("c"))
	if seq != 3 {
		t.Fatalf("seq after reopen = %d, want 3", seq)
	}
}

func TestScanLimitAndStop(t *testing.T) {
	o, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer o.Close()
	for i := 0; i < 5; i++ {
		_, _ = o.Append("BTC_USD", nil)
	}

	n := 0
	_ = o.ScanPending(2, func(Entry) error { n++; return nil })
	if n != 2 {
		t.Fatalf("limit ignored: visited %d", n)
	}

	stop := errors.New("stop")
	n = 0
	err = o.ScanPending(0, func(Entry) error {
		n++
		if n == 3 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) || n != 3 {
		t.Fatalf("scan did not stop: n=%d err=%v", n, err)
	}
}
