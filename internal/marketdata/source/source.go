// Package source provides candle source adapters: each adapter wraps one
// upstream feed connection for a single (symbol, timeframe) key and
// normalizes raw ticks into canonical candles.
package source

import (
	"context"

	"signal-systemv1/internal/model"
)

// Source is one upstream feed for a single subscription key.
type Source interface {
	// Run connects and streams normalized candles into sink until the
	// connection fails or ctx is cancelled. Returns nil only on
	// cancellation; the caller owns the retry policy.
	Run(ctx context.Context, sink chan<- model.Candle) error

	// History fetches up to limit trailing candles, oldest first. Used for
	// the initial bulk fetch and for post-reconnect reconciliation.
	History(ctx context.Context, limit int) ([]model.Candle, error)

	// Close releases the underlying connection. Safe to call more than
	// once and after the connection has already dropped.
	Close() error
}

// Factory creates the source adapter for a subscription key. The
// distributor guarantees at most one live adapter per key.
type Factory func(key model.SubscriptionKey) (Source, error)

// HistoryFunc fetches trailing candles for a key outside the streaming
// connection (REST collaborator or local store).
type HistoryFunc func(ctx context.Context, key model.SubscriptionKey, limit int) ([]model.Candle, error)
