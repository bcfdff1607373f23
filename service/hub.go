package service

import (
	"lobcast/domain/orderbook"
	"lobcast/infra/metrics"

	"github.com/rs/zerolog"
)

// hub is the subscriber registry of one instrument. Every method runs
// under the owning instrument's lock, which is what keeps all
// subscribers on the same message order.
type hub struct {
	id      orderbook.InstrumentID
	subs    map[string]*Subscription
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func newHub(id orderbook.InstrumentID, m *metrics.Metrics, log zerolog.Logger) *hub {
	return &hub{id: id, subs: make(map[string]*Subscription), metrics: m, log: log}
}

func (h *hub) len() int { return len(h.subs) }

// add registers s with first already queued, so nothing published after
// it can overtake the initial view.
func (h *hub) add(s *Subscription, first orderbook.Message) {
	s.offer(first)
	h.subs[s.id] = s
	h.metrics.Subscribers.WithLabelValues(string(h.id)).Inc()
	h.log.Info().
		Str("instrument", string(h.id)).
		Str("subscription", s.id).
		Int("subscribers", len(h.subs)).
		Msg("subscribed")
}

func (h *hub) remove(s *Subscription, err error) {
	if _, ok := h.subs[s.id]; !ok {
		return
	}
	delete(h.subs, s.id)
	s.terminate(err)
	h.metrics.Subscribers.WithLabelValues(string(h.id)).Dec()
	h.log.Info().
		Str("instrument", string(h.id)).
		Str("subscription", s.id).
		Int("subscribers", len(h.subs)).
		AnErr("reason", err).
		Msg("unsubscribed")
}

// publish fans m out without blocking. A subscriber whose queue is full
// is dropped; it recovers by subscribing again.
func (h *hub) publish(m orderbook.Message) {
	h.metrics.MessagesPublished.WithLabelValues(string(h.id)).Inc()
	for _, s := range h.subs {
		if s.offer(m) {
			continue
		}
		h.metrics.SubscriberOverruns.WithLabelValues(string(h.id)).Inc()
		h.log.Warn().
			Str("instrument", string(h.id)).
			Str("subscription", s.id).
			Uint64("seq", m.Seq()).
			Msg("subscriber queue full, dropping subscriber")
		h.remove(s, ErrSubscriberOverrun)
	}
}

func (h *hub) closeAll() {
	for _, s := range h.subs {
		h.remove(s, nil)
	}
}
