package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"lobcast/domain/orderbook"
	"lobcast/service"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const keyPrefix = "lobcast:book:"

func Key(id orderbook.InstrumentID) string { return keyPrefix + string(id) }

// Store is the slice of the Redis API the cache needs; *redis.Client
// satisfies it.
type Store interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// BookCache mirrors the latest view of each configured instrument into
// Redis, truncated to depth, so other processes can read a book without
// subscribing.
type BookCache struct {
	client      Store
	engine      *service.Engine
	instruments []orderbook.InstrumentID
	depth       int
	ttl         time.Duration
	log         zerolog.Logger
}

func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

func New(client Store, engine *service.Engine, instruments []orderbook.InstrumentID, depth int, ttl time.Duration, log zerolog.Logger) *BookCache {
	return &BookCache{
		client:      client,
		engine:      engine,
		instruments: instruments,
		depth:       depth,
		ttl:         ttl,
		log:         log.With().Str("component", "redis-cache").Logger(),
	}
}

func (c *BookCache) Run(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	c.log.Info().Int("instruments", len(c.instruments)).Msg("book cache started")

	var wg sync.WaitGroup
	for _, id := range c.instruments {
		wg.Add(1)
		go func(id orderbook.InstrumentID) {
			defer wg.Done()
			c.follow(ctx, id)
		}(id)
	}
	wg.Wait()
	return nil
}

// follow only needs the latest view, so it skips ahead to the newest
// queued message and resubscribes after an overrun.
func (c *BookCache) follow(ctx context.Context, id orderbook.InstrumentID) {
	for ctx.Err() == nil {
		sub, err := c.engine.Subscribe(id)
		if err != nil {
			c.log.Error().Err(err).Str("instrument", string(id)).Msg("subscribe failed")
			return
		}
		err = c.drain(ctx, sub)
		sub.Close()
		if !errors.Is(err, service.ErrSubscriberOverrun) {
			return
		}
	}
}

func (c *BookCache) drain(ctx context.Context, sub *service.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-sub.C():
			if !ok {
				return sub.Err()
			}
			m = latest(sub, m)
			if err := c.Store(ctx, m.View); err != nil {
				c.log.Warn().Err(err).Str("instrument", string(m.View.Instrument)).Msg("cache write failed")
			}
		}
	}
}

func latest(sub *service.Subscription, m orderbook.Message) orderbook.Message {
	for {
		select {
		case next, ok := <-sub.C():
			if !ok {
				return m
			}
			m = next
		default:
			return m
		}
	}
}

func (c *BookCache) Store(ctx context.Context, v orderbook.View) error {
	b, err := json.Marshal(v.Truncate(c.depth))
	if err != nil {
		return err
	}
	return c.client.Set(ctx, Key(v.Instrument), b, c.ttl).Err()
}

// Load reads a cached view back, as a consumer process would.
func Load(ctx context.Context, client Store, id orderbook.InstrumentID) (orderbook.View, error) {
	raw, err := client.Get(ctx, Key(id)).Bytes()
	if err != nil {
		return orderbook.View{}, err
	}
	var v orderbook.View
	if err := json.Unmarshal(raw, &v); err != nil {
		return orderbook.View{}, fmt.Errorf("decode cached view %s: %w", id, err)
	}
	return v, nil
}
