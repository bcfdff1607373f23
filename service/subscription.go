package service

import (
	"errors"
	"sync"

	"lobcast/domain/orderbook"

	"github.com/google/uuid"
)

var ErrSubscriberOverrun = errors.New("subscriber queue overrun")

// Subscription is one consumer's handle on an instrument. Messages arrive
// on C in publication order; C is closed when the subscription ends,
// after which Err reports why (nil for a normal Close).
type Subscription struct {
	id         string
	instrument orderbook.InstrumentID
	ch         chan orderbook.Message
	detach     func(*Subscription)

	once sync.Once
	mu   sync.Mutex
	err  error
}

func newSubscription(id orderbook.InstrumentID, queueSize int, detach func(*Subscription)) *Subscription {
	return &Subscription{
		id:         uuid.NewString(),
		instrument: id,
		ch:         make(chan orderbook.Message, queueSize),
		detach:     detach,
	}
}

func (s *Subscription) ID() string { return s.id }

func (s *Subscription) Instrument() orderbook.InstrumentID { return s.instrument }

func (s *Subscription) C() <-chan orderbook.Message { return s.ch }

func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close unsubscribes. Safe to call more than once and after an overrun.
func (s *Subscription) Close() {
	s.detach(s)
}

// offer never blocks. It reports false when the queue is full.
func (s *Subscription) offer(m orderbook.Message) bool {
	select {
	case s.ch <- m:
		return true
	default:
		return false
	}
}

// terminate closes the channel once. Only the hub calls it, under the
// instrument lock, so no send can race the close.
func (s *Subscription) terminate(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.ch)
	})
}
