package feed

import (
	"context"
	"errors"
	"sync"

	"lobcast/domain/orderbook"
	"lobcast/service"

	"github.com/rs/zerolog"
)

type Engine interface {
	Apply(u orderbook.Update) error
	MarkStale(id orderbook.InstrumentID, stale bool) error
}

// Ingestor pumps one source into the engine. When the source stops,
// every instrument it fed is marked stale so subscribers know the book
// is no longer moving.
type Ingestor struct {
	engine Engine
	log    zerolog.Logger
}

func NewIngestor(engine Engine, log zerolog.Logger) *Ingestor {
	return &Ingestor{engine: engine, log: log.With().Str("component", "ingestor").Logger()}
}

func (i *Ingestor) Run(ctx context.Context, src Source) error {
	log := i.log.With().Str("source", src.Name()).Logger()

	var mu sync.Mutex
	fed := make(map[orderbook.InstrumentID]struct{})

	err := src.Run(ctx, func(ctx context.Context, u orderbook.Update) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		id := u.Instrument()
		mu.Lock()
		fed[id] = struct{}{}
		mu.Unlock()

		if err := i.engine.Apply(u); err != nil {
			if service.IsDropped(err) {
				log.Debug().Err(err).Str("instrument", string(id)).Msg("update dropped")
			} else {
				log.Warn().Err(err).Str("instrument", string(id)).Msg("update rejected")
			}
		}
		return nil
	})

	mu.Lock()
	defer mu.Unlock()
	for id := range fed {
		if serr := i.engine.MarkStale(id, true); serr != nil && !errors.Is(serr, orderbook.ErrUnknownInstrument) {
			log.Warn().Err(serr).Str("instrument", string(id)).Msg("mark stale failed")
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Int("instruments", len(fed)).Msg("feed stopped")
		return err
	}
	log.Info().Int("instruments", len(fed)).Msg("feed stopped")
	return nil
}
