package broadcaster

import (
	"context"
	"errors"
	"time"

	"lobcast/infra/metrics"
	"lobcast/infra/outbox"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

// Broadcaster drains the outbox into Kafka. Entries go out in append
// order; the first failure ends the round so nothing overtakes it.
type Broadcaster struct {
	outbox   *outbox.Outbox
	producer sarama.SyncProducer
	topic    string
	interval time.Duration
	batch    int
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

var errRoundStopped = errors.New("publish round stopped")

func NewProducer(brokers []string, maxRetries int) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = maxRetries
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	return sarama.NewSyncProducer(brokers, cfg)
}

func New(ob *outbox.Outbox, producer sarama.SyncProducer, topic string, interval time.Duration, m *metrics.Metrics, log zerolog.Logger) *Broadcaster {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &Broadcaster{
		outbox:   ob,
		producer: producer,
		topic:    topic,
		interval: interval,
		batch:    512,
		metrics:  m,
		log:      log.With().Str("component", "broadcaster").Str("topic", topic).Logger(),
	}
}

// Run publishes on every tick until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) error {
	b.log.Info().Dur("interval", b.interval).Msg("broadcaster started")
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.log.Info().Msg("broadcaster stopped")
			return nil
		case <-ticker.C:
			b.publishOnce()
		}
	}
}

// publishOnce sends one batch and returns how many entries were acked.
func (b *Broadcaster) publishOnce() int {
	sent := 0
	err := b.outbox.ScanPending(b.batch, func(e outbox.Entry) error {
		msg := &sarama.ProducerMessage{
			Topic: b.topic,
			Key:   sarama.StringEncoder(e.Instrument),
			Value: sarama.ByteEncoder(e.Payload),
		}
		if _, _, err := b.producer.SendMessage(msg); err != nil {
			if merr := b.outbox.MarkFailed(e); merr != nil {
				b.log.Error().Err(merr).Uint64("seq", e.Seq).Msg("outbox mark failed")
			}
			b.log.Warn().Err(err).Uint64("seq", e.Seq).Uint32("retries", e.Retries+1).Msg("publish failed, retrying next tick")
			return errRoundStopped
		}
		if err := b.outbox.Ack(e.Seq); err != nil {
			b.log.Error().Err(err).Uint64("seq", e.Seq).Msg("outbox ack failed")
			return errRoundStopped
		}
		b.metrics.OutboxPublished.Inc()
		sent++
		return nil
	})
	if err != nil && !errors.Is(err, errRoundStopped) {
		b.log.Error().Err(err).Msg("outbox scan failed")
	}
	if n, err := b.outbox.Pending(); err == nil {
		b.metrics.OutboxPending.Set(float64(n))
	}
	return sent
}

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}
