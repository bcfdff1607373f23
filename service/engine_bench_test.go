package service

import (
	"testing"

	"lobcast/domain/orderbook"
	"lobcast/infra/metrics"

	"github.com/rs/zerolog"
)

func BenchmarkApplyDelta_FanOut(b *testing.B) {
	e := NewEngine(Options{QueueSize: 1 << 16}, metrics.New(), zerolog.Nop())
	defer e.Close()
	_ = e.ApplySnapshot(btcSnapshot(0))

	for i := 0; i < 8; i++ {
		s, _ := e.Subscribe("BTC_USD")
		go func() {
			for range s.C() {
			}
		}()
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		d := btcDelta(orderbook.Buy, float64(90+i%10), int64(1+i%5), 1)
		if err := e.ApplyDelta(d); err != nil {
			b.Fatal(err)
		}
	}
}
