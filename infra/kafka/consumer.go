package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

type Record struct {
	Key       []byte
	Value     []byte
	Partition int
	Offset    int64
	Time      time.Time

	msg kafka.Message
}

// Consumer reads a topic as part of a consumer group with explicit
// commits, so a record is only committed after it was handled.
type Consumer struct {
	reader *kafka.Reader
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			Topic:          topic,
			GroupID:        groupID,
			MinBytes:       1,
			MaxBytes:       10 << 20,
			MaxWait:        100 * time.Millisecond,
			CommitInterval: 0,
		}),
	}
}

func (c *Consumer) Fetch(ctx context.Context) (Record, error) {
	m, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return Record{}, err
	}
	return Record{
		Key:       m.Key,
		Value:     m.Value,
		Partition: m.Partition,
		Offset:    m.Offset,
		Time:      m.Time,
		msg:       m,
	}, nil
}

func (c *Consumer) Commit(ctx context.Context, r Record) error {
	return c.reader.CommitMessages(ctx, r.msg)
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
