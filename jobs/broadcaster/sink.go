package broadcaster

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"lobcast/domain/orderbook"
	"lobcast/infra/outbox"
	"lobcast/service"

	"github.com/rs/zerolog"
)

// Sink copies every message of the configured instruments into the
// outbox. A subscription lost to an overrun is replaced; the new one
// starts with a full view, so downstream consumers can rebuild.
type Sink struct {
	engine      *service.Engine
	outbox      *outbox.Outbox
	instruments []orderbook.InstrumentID
	log         zerolog.Logger
}

func NewSink(engine *service.Engine, ob *outbox.Outbox, instruments []orderbook.InstrumentID, log zerolog.Logger) *Sink {
	return &Sink{
		engine:      engine,
		outbox:      ob,
		instruments: instruments,
		log:         log.With().Str("component", "outbox-sink").Logger(),
	}
}

func (s *Sink) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	errs := make(chan error, len(s.instruments))
	for _, id := range s.instruments {
		wg.Add(1)
		go func(id orderbook.InstrumentID) {
			defer wg.Done()
			if err := s.follow(ctx, id); err != nil {
				errs <- err
			}
		}(id)
	}
	wg.Wait()
	close(errs)
	return <-errs
}

func (s *Sink) follow(ctx context.Context, id orderbook.InstrumentID) error {
	for {
		sub, err := s.engine.Subscribe(id)
		if err != nil {
			return err
		}
		err = s.drain(ctx, sub)
		sub.Close()
		if !errors.Is(err, service.ErrSubscriberOverrun) {
			return err
		}
		s.log.Warn().Str("instrument", string(id)).Msg("outbox sink overran, resubscribing")
	}
}

func (s *Sink) drain(ctx context.Context, sub *service.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-sub.C():
			if !ok {
				return sub.Err()
			}
			payload, err := json.Marshal(m)
			if err != nil {
				return err
			}
			if _, err := s.outbox.Append(string(m.View.Instrument), payload); err != nil {
				return err
			}
		}
	}
}
