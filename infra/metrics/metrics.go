package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Drop reasons used on DeltasDropped.
const (
	ReasonStale         = "stale"
	ReasonDesynced      = "desynced"
	ReasonUninitialized = "uninitialized"
	ReasonInvalid       = "invalid"
)

// Metrics groups the engine's collectors. Collectors are unregistered
// until Register is called, so tests can build as many as they need.
type Metrics struct {
	SnapshotsApplied   *prometheus.CounterVec
	DeltasApplied      *prometheus.CounterVec
	DeltasDropped      *prometheus.CounterVec
	Subscribers        *prometheus.GaugeVec
	SubscriberOverruns *prometheus.CounterVec
	MessagesPublished  *prometheus.CounterVec
	FeedDecodeErrors   *prometheus.CounterVec
	OutboxPublished    prometheus.Counter
	OutboxPending      prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		SnapshotsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lobcast_snapshots_applied_total", Help: "Snapshots applied by instrument",
		}, []string{"instrument"}),
		DeltasApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lobcast_deltas_applied_total", Help: "Deltas accepted by instrument",
		}, []string{"instrument"}),
		DeltasDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lobcast_deltas_dropped_total", Help: "Deltas rejected by instrument and reason",
		}, []string{"instrument", "reason"}),
		Subscribers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lobcast_subscribers", Help: "Live subscribers by instrument",
		}, []string{"instrument"}),
		SubscriberOverruns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lobcast_subscriber_overruns_total", Help: "Subscribers dropped on a full queue",
		}, []string{"instrument"}),
		MessagesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lobcast_messages_published_total", Help: "Messages fanned out by instrument",
		}, []string{"instrument"}),
		FeedDecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lobcast_feed_decode_errors_total", Help: "Feed messages that failed to decode by source",
		}, []string{"source"}),
		OutboxPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lobcast_outbox_published_total", Help: "Outbox entries acknowledged by Kafka",
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lobcast_outbox_pending", Help: "Outbox entries seen pending on the last scan",
		}),
	}
}

// Register adds every collector plus Go and process collectors to a
// fresh registry.
func (m *Metrics) Register(logger zerolog.Logger) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	toRegister := []prometheus.Collector{
		m.SnapshotsApplied, m.DeltasApplied, m.DeltasDropped,
		m.Subscribers, m.SubscriberOverruns, m.MessagesPublished,
		m.FeedDecodeErrors, m.OutboxPublished, m.OutboxPending,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	for _, c := range toRegister {
		if err := reg.Register(c); err != nil {
			logger.Warn().Err(err).Msg("metric registration failed")
		}
	}
	logger.Info().Msg("prometheus metrics initialized")
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
