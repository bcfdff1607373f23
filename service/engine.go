package service

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"lobcast/domain/orderbook"
	"lobcast/infra/metrics"
	"lobcast/infra/sequence"

	"github.com/rs/zerolog"
)

type Options struct {
	// QueueSize bounds each subscriber's pending messages.
	QueueSize int
	// ViewDepth bounds levels per side in published views; 0 is full depth.
	ViewDepth int
	// StrictInstruments limits Subscribe to registered instruments, so
	// remote clients cannot grow the registry.
	StrictInstruments bool
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.ViewDepth < 0 {
		o.ViewDepth = 0
	}
	return o
}

// instrument bundles everything owned by one book. mu serialises
// mutation, projection and publication for it.
type instrument struct {
	mu      sync.Mutex
	id      orderbook.InstrumentID
	book    *orderbook.OrderBook
	applier *applier
	hub     *hub
	seq     *sequence.Sequencer
	stale   bool
}

func (in *instrument) status(seq uint64) orderbook.Status {
	return orderbook.Status{State: in.applier.state, Stale: in.stale, Seq: seq}
}

// Engine is the registry of instrument books.
type Engine struct {
	opts    Options
	metrics *metrics.Metrics
	log     zerolog.Logger

	mu          sync.RWMutex
	instruments map[orderbook.InstrumentID]*instrument
}

func NewEngine(opts Options, m *metrics.Metrics, log zerolog.Logger) *Engine {
	return &Engine{
		opts:        opts.withDefaults(),
		metrics:     m,
		log:         log.With().Str("component", "engine").Logger(),
		instruments: make(map[orderbook.InstrumentID]*instrument),
	}
}

// Register creates uninitialized books for ids that do not exist yet.
func (e *Engine) Register(ids ...orderbook.InstrumentID) {
	for _, id := range ids {
		if id != "" {
			e.instrument(id)
		}
	}
}

func (e *Engine) lookup(id orderbook.InstrumentID) (*instrument, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	in, ok := e.instruments[id]
	return in, ok
}

func (e *Engine) instrument(id orderbook.InstrumentID) *instrument {
	if in, ok := e.lookup(id); ok {
		return in
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if in, ok := e.instruments[id]; ok {
		return in
	}
	in := &instrument{
		id:      id,
		book:    orderbook.NewOrderBook(id),
		applier: newApplier(id, e.metrics, e.log),
		hub:     newHub(id, e.metrics, e.log),
		seq:     sequence.New(0),
	}
	e.instruments[id] = in
	e.log.Debug().Str("instrument", string(id)).Msg("book created")
	return in
}

// Apply routes an update through the instrument's gate and, when it is
// accepted, publishes exactly one message to the instrument's
// subscribers before returning.
func (e *Engine) Apply(u orderbook.Update) error {
	id := u.Instrument()
	if id == "" {
		return fmt.Errorf("apply %s: %w: missing instrument", u.Kind, orderbook.ErrInvalidUpdate)
	}
	in := e.instrument(id)

	in.mu.Lock()
	defer in.mu.Unlock()

	before := in.applier.state
	kind, err := in.applier.apply(in.book, u)
	if err != nil {
		if before != orderbook.Desynced && in.applier.state == orderbook.Desynced {
			in.hub.publish(e.message(in, orderbook.MsgStatus, nil))
		}
		return fmt.Errorf("apply %s %s: %w", u.Kind, id, err)
	}

	in.stale = false
	var d *orderbook.Delta
	if kind == orderbook.MsgDelta {
		cp := *u.Delta
		d = &cp
	}
	in.hub.publish(e.message(in, kind, d))
	return nil
}

func (e *Engine) ApplySnapshot(s orderbook.Snapshot) error {
	return e.Apply(orderbook.SnapshotUpdate(s))
}

func (e *Engine) ApplyDelta(d orderbook.Delta) error {
	return e.Apply(orderbook.DeltaUpdate(d))
}

// message numbers and projects the current state. Callers hold in.mu.
func (e *Engine) message(in *instrument, kind orderbook.MessageKind, d *orderbook.Delta) orderbook.Message {
	return orderbook.Message{
		Kind:  kind,
		View:  orderbook.Project(in.book, e.opts.ViewDepth, in.status(in.seq.Next())),
		Delta: d,
	}
}

func (e *Engine) BestBid(id orderbook.InstrumentID) (orderbook.Level, bool) {
	in, ok := e.lookup(id)
	if !ok {
		return orderbook.Level{}, false
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.book.BestBid()
}

func (e *Engine) BestAsk(id orderbook.InstrumentID) (orderbook.Level, bool) {
	in, ok := e.lookup(id)
	if !ok {
		return orderbook.Level{}, false
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.book.BestAsk()
}

// SnapshotView projects the book at depth (<= 0 for all levels). A
// registered but never-snapshotted instrument yields an empty
// uninitialized view.
func (e *Engine) SnapshotView(id orderbook.InstrumentID, depth int) (orderbook.View, error) {
	in, ok := e.lookup(id)
	if !ok {
		return orderbook.View{}, fmt.Errorf("view %s: %w", id, orderbook.ErrUnknownInstrument)
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	return orderbook.Project(in.book, depth, in.status(in.seq.Last())), nil
}

// Subscribe registers a consumer. The first message on the handle is the
// full current view (a snapshot, or a status message while the book is
// uninitialized); every later message follows one accepted change.
func (e *Engine) Subscribe(id orderbook.InstrumentID) (*Subscription, error) {
	if id == "" {
		return nil, fmt.Errorf("subscribe: %w: missing instrument", orderbook.ErrInvalidUpdate)
	}
	if e.opts.StrictInstruments {
		if _, ok := e.lookup(id); !ok {
			return nil, fmt.Errorf("subscribe %s: %w", id, orderbook.ErrUnknownInstrument)
		}
	}
	in := e.instrument(id)
	s := newSubscription(id, e.opts.QueueSize, e.detach)

	in.mu.Lock()
	defer in.mu.Unlock()

	kind := orderbook.MsgSnapshot
	if !in.book.Initialized() {
		kind = orderbook.MsgStatus
	}
	first := orderbook.Message{
		Kind: kind,
		View: orderbook.Project(in.book, e.opts.ViewDepth, in.status(in.seq.Last())),
	}
	in.hub.add(s, first)
	return s, nil
}

func (e *Engine) Unsubscribe(s *Subscription) {
	s.Close()
}

func (e *Engine) detach(s *Subscription) {
	in, ok := e.lookup(s.instrument)
	if !ok {
		return
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	in.hub.remove(s, nil)
}

// MarkStale flags the instrument's upstream as stalled (or recovered)
// and tells subscribers. The book is left as is; the next accepted
// update clears the flag.
func (e *Engine) MarkStale(id orderbook.InstrumentID, stale bool) error {
	in, ok := e.lookup(id)
	if !ok {
		return fmt.Errorf("mark stale %s: %w", id, orderbook.ErrUnknownInstrument)
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.stale == stale {
		return nil
	}
	in.stale = stale
	in.hub.publish(e.message(in, orderbook.MsgStatus, nil))
	e.log.Info().Str("instrument", string(id)).Bool("stale", stale).Msg("staleness changed")
	return nil
}

// Reset drops the book back to uninitialized, for when upstream is gone
// for good. Subscribers stay attached and see a status message.
func (e *Engine) Reset(id orderbook.InstrumentID) error {
	in, ok := e.lookup(id)
	if !ok {
		return fmt.Errorf("reset %s: %w", id, orderbook.ErrUnknownInstrument)
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	in.book.Reset()
	in.applier.reset()
	in.stale = false
	in.hub.publish(e.message(in, orderbook.MsgStatus, nil))
	e.log.Info().Str("instrument", string(id)).Msg("book reset")
	return nil
}

func (e *Engine) SubscriberCount(id orderbook.InstrumentID) int {
	in, ok := e.lookup(id)
	if !ok {
		return 0
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.hub.len()
}

// Instruments lists registered instruments in lexical order.
func (e *Engine) Instruments() []orderbook.InstrumentID {
	e.mu.RLock()
	out := make([]orderbook.InstrumentID, 0, len(e.instruments))
	for id := range e.instruments {
		out = append(out, id)
	}
	e.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Close ends every subscription. The engine stays usable.
func (e *Engine) Close() {
	e.mu.RLock()
	all := make([]*instrument, 0, len(e.instruments))
	for _, in := range e.instruments {
		all = append(all, in)
	}
	e.mu.RUnlock()
	for _, in := range all {
		in.mu.Lock()
		in.hub.closeAll()
		in.mu.Unlock()
	}
}

// IsDropped reports whether err is one of the expected rejections of
// the sequencing gate, as opposed to a malformed update.
func IsDropped(err error) bool {
	return errors.Is(err, orderbook.ErrStaleUpdate) ||
		errors.Is(err, orderbook.ErrDesynced) ||
		errors.Is(err, orderbook.ErrUnknownInstrument)
}
