package service

import (
	"errors"
	"fmt"

	"lobcast/domain/orderbook"
	"lobcast/infra/metrics"

	"github.com/rs/zerolog"
)

// applier gates updates for one instrument. Snapshots always pass and
// (re)synchronise the book. Deltas pass only while synced; a stale delta
// flips the instrument to desynced and every delta after it is dropped
// until the next snapshot.
type applier struct {
	id      orderbook.InstrumentID
	state   orderbook.SyncState
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func newApplier(id orderbook.InstrumentID, m *metrics.Metrics, log zerolog.Logger) *applier {
	return &applier{id: id, state: orderbook.Uninitialized, metrics: m, log: log}
}

// apply returns the outbound message kind for an accepted update. Callers
// hold the instrument lock.
func (a *applier) apply(book *orderbook.OrderBook, u orderbook.Update) (orderbook.MessageKind, error) {
	switch u.Kind {
	case orderbook.KindSnapshot:
		if u.Snapshot == nil {
			return 0, fmt.Errorf("%w: snapshot update without snapshot", orderbook.ErrInvalidUpdate)
		}
		if err := book.ApplySnapshot(*u.Snapshot); err != nil {
			return 0, err
		}
		if a.state == orderbook.Desynced {
			a.log.Info().Str("instrument", string(a.id)).Msg("resynchronised by snapshot")
		}
		a.state = orderbook.Synced
		a.metrics.SnapshotsApplied.WithLabelValues(string(a.id)).Inc()
		return orderbook.MsgSnapshot, nil

	case orderbook.KindDelta:
		if u.Delta == nil {
			return 0, fmt.Errorf("%w: delta update without delta", orderbook.ErrInvalidUpdate)
		}
		switch a.state {
		case orderbook.Uninitialized:
			a.drop(metrics.ReasonUninitialized)
			return 0, orderbook.ErrUnknownInstrument
		case orderbook.Desynced:
			a.drop(metrics.ReasonDesynced)
			return 0, orderbook.ErrDesynced
		}
		err := book.ApplyDelta(*u.Delta)
		switch {
		case err == nil:
			a.metrics.DeltasApplied.WithLabelValues(string(a.id)).Inc()
			return orderbook.MsgDelta, nil
		case errors.Is(err, orderbook.ErrStaleUpdate):
			a.state = orderbook.Desynced
			a.drop(metrics.ReasonStale)
			a.log.Warn().
				Str("instrument", string(a.id)).
				Time("delta_ts", u.Delta.Timestamp).
				Time("book_ts", book.LastTimestamp()).
				Msg("stale delta, instrument desynced until next snapshot")
		case errors.Is(err, orderbook.ErrInvalidLevel):
			a.drop(metrics.ReasonInvalid)
		}
		return 0, err
	}
	return 0, fmt.Errorf("%w: kind %d", orderbook.ErrInvalidUpdate, u.Kind)
}

func (a *applier) reset() { a.state = orderbook.Uninitialized }

func (a *applier) drop(reason string) {
	a.metrics.DeltasDropped.WithLabelValues(string(a.id), reason).Inc()
}
