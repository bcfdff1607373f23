// Package broadcaster republishes engine messages to Kafka. Sink copies
// each instrument's message stream into the pebble outbox; Broadcaster
// periodically drains the outbox and deletes what Kafka acknowledged.
package broadcaster
