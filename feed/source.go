// Package feed turns upstream market-data messages into engine updates.
// Each Source owns one upstream connection; an Ingestor pumps a Source
// into the engine.
package feed

import (
	"context"

	"lobcast/domain/orderbook"
)

// Handler receives decoded updates in upstream order. A non-nil error
// stops the source.
type Handler func(ctx context.Context, u orderbook.Update) error

type Source interface {
	Name() string
	// Run blocks until ctx is done or the upstream fails.
	Run(ctx context.Context, h Handler) error
}
