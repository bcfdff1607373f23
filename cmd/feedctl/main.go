// Command feedctl publishes feed messages read from stdin, one JSON
// object per line, to the Kafka feed topic.
//
//	feedctl -brokers localhost:9092 -topic lobcast.feed < updates.jsonl
package main

import (
	"bufio"
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"lobcast/config"
	"lobcast/feed"
	"lobcast/infra/kafka"
	logpkg "lobcast/infra/log"
)

func main() {
	cfg, err := config.Load()
	logger := logpkg.NewLogger(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("config error")
	}

	brokers := flag.String("brokers", strings.Join(cfg.Feed.Kafka.Brokers, ","), "comma separated kafka brokers")
	topic := flag.String("topic", cfg.Feed.Kafka.Topic, "feed topic")
	strict := flag.Bool("strict", false, "stop at the first invalid line")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	producer := kafka.NewProducer(strings.Split(*brokers, ","), *topic)
	defer producer.Close()

	sc := bufio.NewScanner(os.Stdin)
	sc.Buffer(make([]byte, 64<<10), 16<<20)

	sent, skipped, line := 0, 0, 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		u, err := feed.Decode([]byte(raw))
		if err != nil {
			if *strict {
				logger.Fatal().Err(err).Int("line", line).Msg("invalid feed message")
			}
			logger.Warn().Err(err).Int("line", line).Msg("skipping invalid feed message")
			skipped++
			continue
		}
		// re-encode so the topic only ever carries the canonical form
		payload, err := feed.Encode(u)
		if err != nil {
			logger.Fatal().Err(err).Int("line", line).Msg("encode failed")
		}
		if err := producer.Send(ctx, []byte(u.Instrument()), payload); err != nil {
			logger.Fatal().Err(err).Int("line", line).Msg("kafka write failed")
		}
		sent++
	}
	if err := sc.Err(); err != nil {
		logger.Error().Err(err).Msg("read stdin")
	}
	logger.Info().Int("sent", sent).Int("skipped", skipped).Str("topic", *topic).Msg("feedctl done")
}
