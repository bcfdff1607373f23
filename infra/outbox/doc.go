// Package outbox is the durable hand-off between the engine and Kafka.
// It holds only messages not yet acknowledged by the broker.
package outbox
