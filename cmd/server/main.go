package main

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"lobcast/api/grpcserver"
	"lobcast/api/httpserver"
	"lobcast/config"
	"lobcast/domain/orderbook"
	"lobcast/feed"
	"lobcast/infra/cache"
	logpkg "lobcast/infra/log"
	"lobcast/infra/metrics"
	"lobcast/infra/outbox"
	"lobcast/jobs/broadcaster"
	"lobcast/service"

	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	logger := logpkg.NewLogger(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("config error")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---------------- Engine ----------------

	m := metrics.New()
	reg := m.Register(logger)

	engine := service.NewEngine(service.Options{
		QueueSize:         cfg.Hub.QueueSize,
		ViewDepth:         cfg.Engine.ViewDepth,
		StrictInstruments: cfg.Engine.StrictInstruments,
	}, m, logger)
	engine.Register(instrumentIDs(cfg.Engine.Instruments)...)

	g, gctx := errgroup.WithContext(ctx)

	// ---------------- Feed ----------------

	ingestor := feed.NewIngestor(engine, logger)
	if cfg.Feed.Kafka.Enabled {
		src := feed.NewKafkaSource(cfg.Feed.Kafka.Brokers, cfg.Feed.Kafka.Topic, cfg.Feed.Kafka.GroupID, m, logger)
		g.Go(func() error { return ingestor.Run(gctx, src) })
	}
	if cfg.Feed.AMQP.Enabled {
		src, err := feed.NewAMQPSource(feed.AMQPConfig{
			URL:      cfg.Feed.AMQP.URL,
			Exchange: cfg.Feed.AMQP.Exchange,
			Prefetch: cfg.Feed.AMQP.Prefetch,
		}, m, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("amqp feed init failed")
		}
		g.Go(func() error { return ingestor.Run(gctx, src) })
	}

	// ---------------- Outbound jobs ----------------

	if cfg.Publish.Enabled {
		ob, err := outbox.Open(cfg.Publish.OutboxDir)
		if err != nil {
			logger.Fatal().Err(err).Msg("outbox init failed")
		}
		defer ob.Close()

		producer, err := broadcaster.NewProducer(cfg.Publish.Brokers, cfg.Publish.MaxRetries)
		if err != nil {
			logger.Fatal().Err(err).Msg("kafka producer init failed")
		}
		bc := broadcaster.New(ob, producer, cfg.Publish.Topic, cfg.PublishInterval(), m, logger)
		defer bc.Close()

		sink := broadcaster.NewSink(engine, ob, instrumentIDs(cfg.Publish.Instruments), logger)
		g.Go(func() error { return sink.Run(gctx) })
		g.Go(func() error { return bc.Run(gctx) })
	}

	if cfg.Cache.Redis.Enabled {
		client := cache.NewClient(cfg.Cache.Redis.Addr, cfg.Cache.Redis.Password, cfg.Cache.Redis.DB)
		defer client.Close()
		books := cache.New(client, engine, instrumentIDs(cfg.Cache.Redis.Instruments), cfg.Engine.DefaultDepth, cfg.CacheTTL(), logger)
		g.Go(func() error { return books.Run(gctx) })
	}

	// ---------------- gRPC ----------------

	if cfg.GRPC.Enabled {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			logger.Fatal().Err(err).Str("addr", cfg.GRPC.Addr).Msg("grpc listen failed")
		}
		grpcSrv := grpc.NewServer()
		grpcserver.Register(grpcSrv, grpcserver.NewServer(engine, cfg.Engine.DefaultDepth, logger))
		g.Go(func() error {
			logger.Info().Str("addr", cfg.GRPC.Addr).Msg("grpc server listening")
			return grpcSrv.Serve(lis)
		})
		g.Go(func() error {
			<-gctx.Done()
			grpcSrv.GracefulStop()
			return nil
		})
	}

	// ---------------- HTTP ----------------

	if cfg.HTTP.Enabled {
		handler := httpserver.NewHandler(engine, httpserver.Options{
			DefaultDepth: cfg.Engine.DefaultDepth,
			PingInterval: time.Duration(cfg.HTTP.PingIntervalSeconds) * time.Second,
			Metrics:      metrics.Handler(reg),
		}, logger)
		srv := httpserver.NewServer(cfg.HTTP.Addr, handler,
			time.Duration(cfg.HTTP.ReadTimeoutSeconds)*time.Second,
			time.Duration(cfg.HTTP.IdleTimeoutSeconds)*time.Second)
		g.Go(func() error {
			logger.Info().Str("addr", cfg.HTTP.Addr).Msg("http server listening")
			return srv.ListenAndServe()
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		handler.SetReady(true)
	}

	// streams block on their subscriptions; ending them lets shutdown finish
	g.Go(func() error {
		<-gctx.Done()
		engine.Close()
		return nil
	})

	logger.Info().
		Int("instruments", len(engine.Instruments())).
		Bool("kafka_feed", cfg.Feed.Kafka.Enabled).
		Bool("amqp_feed", cfg.Feed.AMQP.Enabled).
		Bool("publish", cfg.Publish.Enabled).
		Msg("lobcast started")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("lobcast stopped with error")
		return err
	}
	logger.Info().Msg("lobcast stopped")
	return nil
}

func instrumentIDs(raw []string) []orderbook.InstrumentID {
	out := make([]orderbook.InstrumentID, 0, len(raw))
	for _, s := range raw {
		out = append(out, orderbook.InstrumentID(s))
	}
	return out
}
