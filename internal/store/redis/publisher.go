// Package redis publishes emitted signals and caches the latest candle per
// subscription key. The publisher is optional: a nil *Publisher is safe to
// call, so the pipeline degrades cleanly when Redis is absent.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"signal-systemv1/internal/model"
)

const latestTTL = 30 * time.Minute

// Config configures the publisher.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Publisher writes signal events and latest-candle cache entries to Redis.
type Publisher struct {
	client *goredis.Client
}

// New connects and pings the server.
func New(cfg Config) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Publisher{client: client}, nil
}

// Client exposes the underlying client for health checks.
func (p *Publisher) Client() *goredis.Client {
	if p == nil {
		return nil
	}
	return p.client
}

// PublishSignal fans the signal out on the strategy's signal channel.
// Best-effort: failures are logged, never propagated to the emitter.
func (p *Publisher) PublishSignal(ctx context.Context, sig model.Signal) {
	if p == nil {
		return
	}
	payload, err := json.Marshal(sig)
	if err != nil {
		return
	}
	channel := "pub:signal:" + sig.StrategyID
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		log.Printf("[redis] publish signal on %s: %v", channel, err)
	}
}

// CacheLatest stores the most recent candle for a key with a TTL.
func (p *Publisher) CacheLatest(ctx context.Context, key model.SubscriptionKey, c model.Candle) {
	if p == nil {
		return
	}
	if err := p.client.Set(ctx, "latest:candle:"+key.String(), c.JSON(), latestTTL).Err(); err != nil {
		log.Printf("[redis] cache latest for %s: %v", key, err)
	}
}

// Close releases the connection.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.client.Close()
}
