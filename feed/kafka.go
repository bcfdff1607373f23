package feed

import (
	"context"
	"errors"
	"fmt"

	"lobcast/infra/kafka"
	"lobcast/infra/metrics"

	"github.com/rs/zerolog"
)

type recordReader interface {
	Fetch(ctx context.Context) (kafka.Record, error)
	Commit(ctx context.Context, r kafka.Record) error
	Close() error
}

// KafkaSource consumes the feed topic. Records keyed by instrument keep
// per-instrument order within a partition.
type KafkaSource struct {
	reader  recordReader
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func NewKafkaSource(brokers []string, topic, groupID string, m *metrics.Metrics, log zerolog.Logger) *KafkaSource {
	return &KafkaSource{
		reader:  kafka.NewConsumer(brokers, topic, groupID),
		metrics: m,
		log:     log.With().Str("component", "feed.kafka").Str("topic", topic).Logger(),
	}
}

func (s *KafkaSource) Name() string { return "kafka" }

func (s *KafkaSource) Run(ctx context.Context, h Handler) error {
	defer s.reader.Close()
	s.log.Info().Msg("kafka feed started")
	for {
		rec, err := s.reader.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("kafka fetch: %w", err)
		}

		u, err := Decode(rec.Value)
		if err != nil {
			s.metrics.FeedDecodeErrors.WithLabelValues(s.Name()).Inc()
			s.log.Warn().Err(err).Int("partition", rec.Partition).Int64("offset", rec.Offset).Msg("skipping undecodable record")
		} else if err := h(ctx, u); err != nil {
			return err
		}

		if err := s.reader.Commit(ctx, rec); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka commit: %w", err)
		}
	}
}
