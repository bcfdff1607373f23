package feed

import (
	"context"
	"errors"
	"fmt"

	"lobcast/infra/metrics"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

type AMQPConfig struct {
	URL      string
	Exchange string
	Prefetch int
}

// AMQPSource binds an exclusive queue to a fanout exchange, so every
// lobcast instance sees the whole feed.
type AMQPSource struct {
	cfg     AMQPConfig
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func NewAMQPSource(cfg AMQPConfig, m *metrics.Metrics, log zerolog.Logger) (*AMQPSource, error) {
	if cfg.URL == "" {
		return nil, errors.New("amqp url is required")
	}
	if cfg.Exchange == "" {
		return nil, errors.New("amqp exchange is required")
	}
	return &AMQPSource{
		cfg:     cfg,
		metrics: m,
		log:     log.With().Str("component", "feed.amqp").Str("exchange", cfg.Exchange).Logger(),
	}, nil
}

func (s *AMQPSource) Name() string { return "amqp" }

func (s *AMQPSource) Run(ctx context.Context, h Handler) error {
	conn, err := amqp.Dial(s.cfg.URL)
	if err != nil {
		return fmt.Errorf("connect to rabbitmq: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	deliveries, err := s.bind(ch)
	if err != nil {
		return err
	}
	s.log.Info().Msg("rabbitmq feed started")

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr := <-closed:
			if amqpErr == nil {
				return nil
			}
			return fmt.Errorf("rabbitmq connection closed: %w", amqpErr)
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			if err := s.handle(ctx, h, &d); err != nil {
				return err
			}
		}
	}
}

func (s *AMQPSource) bind(ch *amqp.Channel) (<-chan amqp.Delivery, error) {
	if err := ch.ExchangeDeclare(s.cfg.Exchange, "fanout", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", s.cfg.Exchange, err)
	}
	queue, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(queue.Name, "", s.cfg.Exchange, false, nil); err != nil {
		return nil, fmt.Errorf("bind queue %s to %s: %w", queue.Name, s.cfg.Exchange, err)
	}
	prefetch := s.cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(queue.Name, "", false, true, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("start consume: %w", err)
	}
	return deliveries, nil
}

// handle acks everything the engine saw. Undecodable bodies are
// rejected without requeue since redelivery cannot fix them.
func (s *AMQPSource) handle(ctx context.Context, h Handler, d *amqp.Delivery) error {
	u, err := Decode(d.Body)
	if err != nil {
		s.metrics.FeedDecodeErrors.WithLabelValues(s.Name()).Inc()
		s.log.Warn().Err(err).Uint64("delivery_tag", d.DeliveryTag).Msg("rejecting undecodable delivery")
		if err := d.Nack(false, false); err != nil {
			s.log.Warn().Err(err).Msg("failed to nack delivery")
		}
		return nil
	}
	if err := h(ctx, u); err != nil {
		_ = d.Nack(false, true)
		return err
	}
	if err := d.Ack(false); err != nil {
		s.log.Warn().Err(err).Msg("failed to ack delivery")
	}
	return nil
}
