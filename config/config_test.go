package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("LOBCAST_CONFIG", "")
	t.Setenv("LOBCAST_LOG_LEVEL", "")

	c, err := Load()
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if c.Logging.Level != "info" {
		t.Fatalf("expected default log level info, got %s", c.Logging.Level)
	}
	if c.Engine.DefaultDepth != 10 {
		t.Fatalf("expected default depth 10, got %d", c.Engine.DefaultDepth)
	}
	if c.Hub.QueueSize != 256 {
		t.Fatalf("expected queue size 256, got %d", c.Hub.QueueSize)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOBCAST_CONFIG", "")
	t.Setenv("LOBCAST_LOG_LEVEL", "debug")
	t.Setenv("LOBCAST_GRPC_ADDR", ":6000")
	t.Setenv("LOBCAST_KAFKA_BROKERS", "k1:9092, k2:9092,")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Logging.Level != "debug" {
		t.Fatalf("env override failed for log level, got %s", c.Logging.Level)
	}
	if c.GRPC.Addr != ":6000" {
		t.Fatalf("env override failed for grpc addr, got %s", c.GRPC.Addr)
	}
	if len(c.Feed.Kafka.Brokers) != 2 || c.Feed.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("brokers = %v", c.Feed.Kafka.Brokers)
	}
}

func TestYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lobcast.yaml")
	body := []byte(`
engine:
  default_depth: 5
hub:
  queue_size: 8
feed:
  amqp:
    enabled: true
    exchange: books
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LOBCAST_CONFIG", path)

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Engine.DefaultDepth != 5 || c.Hub.QueueSize != 8 {
		t.Fatalf("file values not applied: depth=%d queue=%d", c.Engine.DefaultDepth, c.Hub.QueueSize)
	}
	if !c.Feed.AMQP.Enabled || c.Feed.AMQP.Exchange != "books" {
		t.Fatalf("amqp section not applied: %+v", c.Feed.AMQP)
	}
	// untouched keys keep their defaults
	if c.GRPC.Addr != ":50051" {
		t.Fatalf("grpc addr = %s, want default", c.GRPC.Addr)
	}
}

func TestValidateRejectsZeroQueue(t *testing.T) {
	c := defaultConfig()
	c.Hub.QueueSize = 0
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for zero queue size")
	}
}
