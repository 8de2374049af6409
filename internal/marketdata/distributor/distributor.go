// Package distributor multiplexes one upstream candle source per
// subscription key across many downstream subscribers.
//
// It owns a bounded rolling candle cache per key, classifies every upstream
// candle as a full (new bar) or incremental (forming bar) update, suppresses
// redundant redeliveries, and fans the result out to all subscribers of the
// key without blocking on slow consumers.
package distributor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"signal-systemv1/internal/marketdata/source"
	"signal-systemv1/internal/model"
)

const (
	// DefaultRetryDelay is the fixed delay between upstream reconnect
	// attempts.
	DefaultRetryDelay = 5 * time.Second

	// DefaultGraceDelay is how long an unsubscribed key's adapter is kept
	// alive waiting for a resubscribe.
	DefaultGraceDelay = 5 * time.Second

	// reconcileWindow is how many trailing candles are re-requested after
	// a reconnect to fill any gap.
	reconcileWindow = 100

	// subscriberBuf is the per-subscriber update channel depth.
	subscriberBuf = 256
)

// ErrDuplicateSubscriber is returned when a subscriber id subscribes twice
// to the same key without unsubscribing.
var ErrDuplicateSubscriber = errors.New("subscriber already registered for key")

// Config configures a Distributor.
type Config struct {
	Factory    source.Factory
	BufferCap  int           // candle cache capacity per key (default 1000)
	RetryDelay time.Duration // fixed reconnect delay (default 5s)
	GraceDelay time.Duration // idle adapter teardown grace (default 5s)
}

// Distributor owns one source adapter and one candle cache per distinct
// subscription key and fans updates out to N subscribers.
type Distributor struct {
	cfg Config

	mu      sync.Mutex
	streams map[model.SubscriptionKey]*stream
	closed  bool

	// OnDrop is called when an update is dropped for a slow subscriber.
	OnDrop func(key model.SubscriptionKey, subscriberID string)
	// OnReconnect is called on every upstream reconnect attempt.
	OnReconnect func(key model.SubscriptionKey)
	// OnDeliver is called once per update fanned out to a key's subscribers.
	OnDeliver func(key model.SubscriptionKey)
	// OnSuppress is called when a redundant redelivery is filtered out.
	OnSuppress func(key model.SubscriptionKey)
}

// stream is the per-key state: one adapter, one cache, N subscribers.
type stream struct {
	key    model.SubscriptionKey
	src    source.Source
	buf    *model.CandleBuffer
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	subs     map[string]chan model.Update
	teardown *time.Timer // pending grace teardown, nil when none
	stopped  bool
}

// New creates a Distributor. The Factory is required.
func New(cfg Config) *Distributor {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.GraceDelay <= 0 {
		cfg.GraceDelay = DefaultGraceDelay
	}
	if cfg.BufferCap <= 0 {
		cfg.BufferCap = model.DefaultBufferCap
	}
	return &Distributor{
		cfg:     cfg,
		streams: make(map[model.SubscriptionKey]*stream),
	}
}

// Subscribe registers a subscriber for a key. The first subscriber for a key
// creates the adapter and performs a one-time bulk history fetch so the
// cache never starts falsely empty. Later subscribers share the same adapter
// and cache. Returns the current snapshot and the subscriber's update
// channel; the channel is closed on Unsubscribe or shutdown.
func (d *Distributor) Subscribe(ctx context.Context, key model.SubscriptionKey, subscriberID string) ([]model.Candle, <-chan model.Update, error) {
	var st *stream
	for {
		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			return nil, nil, errors.New("distributor closed")
		}
		var ok bool
		st, ok = d.streams[key]
		if !ok {
			var err error
			st, err = d.openStream(ctx, key)
			if err != nil {
				d.mu.Unlock()
				return nil, nil, err
			}
			d.streams[key] = st
		}
		d.mu.Unlock()

		st.mu.Lock()
		if !st.stopped {
			break
		}
		// Lost the race against a grace teardown that had already begun;
		// the stream is gone from the map, so retry with a fresh one.
		st.mu.Unlock()
	}
	defer st.mu.Unlock()

	// A resubscribe within the grace window reuses the live adapter.
	if st.teardown != nil {
		st.teardown.Stop()
		st.teardown = nil
		log.Printf("[distributor] %s: teardown cancelled by resubscribe", key)
	}
	if _, exists := st.subs[subscriberID]; exists {
		return nil, nil, fmt.Errorf("%w: %s on %s", ErrDuplicateSubscriber, subscriberID, key)
	}
	ch := make(chan model.Update, subscriberBuf)
	st.subs[subscriberID] = ch
	return st.buf.Snapshot(), ch, nil
}

// Unsubscribe removes a subscriber. Idempotent: unknown keys or subscriber
// ids are a no-op. When the last subscriber leaves, adapter teardown is
// scheduled after the grace delay rather than immediately.
func (d *Distributor) Unsubscribe(key model.SubscriptionKey, subscriberID string) {
	d.mu.Lock()
	st, ok := d.streams[key]
	d.mu.Unlock()
	if !ok {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	ch, exists := st.subs[subscriberID]
	if !exists {
		return
	}
	delete(st.subs, subscriberID)
	close(ch)

	if len(st.subs) == 0 && st.teardown == nil {
		log.Printf("[distributor] %s: no subscribers, teardown in %s", key, d.cfg.GraceDelay)
		st.teardown = time.AfterFunc(d.cfg.GraceDelay, func() { d.teardown(key, st) })
	}
}

// SubscriberCount returns the number of subscribers for a key.
func (d *Distributor) SubscriberCount(key model.SubscriptionKey) int {
	d.mu.Lock()
	st, ok := d.streams[key]
	d.mu.Unlock()
	if !ok {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.subs)
}

// TotalSubscribers returns the number of subscribers across all keys.
func (d *Distributor) TotalSubscribers() int {
	d.mu.Lock()
	streams := make([]*stream, 0, len(d.streams))
	for _, st := range d.streams {
		streams = append(streams, st)
	}
	d.mu.Unlock()

	total := 0
	for _, st := range streams {
		st.mu.Lock()
		total += len(st.subs)
		st.mu.Unlock()
	}
	return total
}

// Snapshot returns a copy of the cached window for a key, if present.
func (d *Distributor) Snapshot(key model.SubscriptionKey, limit int) []model.Candle {
	d.mu.Lock()
	st, ok := d.streams[key]
	d.mu.Unlock()
	if !ok {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if limit > 0 {
		return st.buf.Tail(limit)
	}
	return st.buf.Snapshot()
}

// Shutdown tears down all adapters and closes all subscriber channels.
func (d *Distributor) Shutdown() {
	d.mu.Lock()
	d.closed = true
	streams := make([]*stream, 0, len(d.streams))
	for _, st := range d.streams {
		streams = append(streams, st)
	}
	d.streams = make(map[model.SubscriptionKey]*stream)
	d.mu.Unlock()

	for _, st := range streams {
		st.stop()
	}
}

// openStream creates the adapter for a key, bulk-fetches history, and starts
// the delivery loop. Caller holds d.mu.
func (d *Distributor) openStream(ctx context.Context, key model.SubscriptionKey) (*stream, error) {
	src, err := d.cfg.Factory(key)
	if err != nil {
		return nil, fmt.Errorf("distributor: create source for %s: %w", key, err)
	}

	sctx, cancel := context.WithCancel(context.Background())
	st := &stream{
		key:    key,
		src:    src,
		buf:    model.NewCandleBuffer(d.cfg.BufferCap),
		cancel: cancel,
		done:   make(chan struct{}),
		subs:   make(map[string]chan model.Update),
	}

	// One-time bulk fetch before live ticks to avoid a false empty state.
	hist, err := src.History(ctx, d.cfg.BufferCap)
	if err != nil {
		log.Printf("[distributor] %s: bulk fetch failed: %v (starting empty)", key, err)
	} else {
		for _, c := range hist {
			st.buf.Append(c)
		}
		log.Printf("[distributor] %s: pre-populated %d candles", key, st.buf.Len())
	}

	candleCh := make(chan model.Candle, 1024)
	go d.runSource(sctx, st, candleCh)
	go d.deliver(sctx, st, candleCh)
	return st, nil
}

// runSource drives the adapter with a fixed-delay retry loop. The cache is
// never torn down on failure; after each reconnect the trailing window is
// re-requested and reconciled through the normal classification path.
func (d *Distributor) runSource(ctx context.Context, st *stream, candleCh chan<- model.Candle) {
	first := true
	for {
		if ctx.Err() != nil {
			return
		}
		if !first {
			if hist, err := st.src.History(ctx, reconcileWindow); err == nil {
				for _, c := range hist {
					select {
					case candleCh <- c:
					case <-ctx.Done():
						return
					}
				}
			} else {
				log.Printf("[distributor] %s: reconcile fetch failed: %v", st.key, err)
			}
		}
		first = false

		err := st.src.Run(ctx, candleCh)
		if ctx.Err() != nil {
			return
		}
		log.Printf("[distributor] %s: upstream dropped (%v), retrying in %s", st.key, err, d.cfg.RetryDelay)
		if d.OnReconnect != nil {
			d.OnReconnect(st.key)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.cfg.RetryDelay):
		}
	}
}

// deliver consumes upstream candles, classifies them against the cache, and
// fans qualifying updates out. Single writer for the stream's buffer.
func (d *Distributor) deliver(ctx context.Context, st *stream, candleCh <-chan model.Candle) {
	defer close(st.done)
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-candleCh:
			if !ok {
				return
			}
			if upd, ok := d.classify(st, c); ok {
				d.fanout(st, upd)
				if d.OnDeliver != nil {
					d.OnDeliver(st.key)
				}
			}
		}
	}
}

// classify applies the update-classification contract:
//   - timestamp newer than the cached last → full update (new bar)
//   - same timestamp, changed close or volume → incremental (replace last)
//   - same timestamp, identical close and volume → suppressed
//   - older timestamp → dropped (out-of-order upstream tick)
func (d *Distributor) classify(st *stream, c model.Candle) (model.Update, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	last, ok := st.buf.Last()
	if !ok || c.TS.After(last.TS) {
		st.buf.Append(c)
		return model.Update{Key: st.key, Type: model.UpdateFull, Candles: []model.Candle{c}}, true
	}
	if c.TS.Equal(last.TS) {
		if c.Close == last.Close && c.Volume == last.Volume && c.Final == last.Final {
			if d.OnSuppress != nil {
				d.OnSuppress(st.key)
			}
			return model.Update{}, false // redundant redelivery
		}
		st.buf.ReplaceLast(c)
		return model.Update{Key: st.key, Type: model.UpdateIncremental, Candles: []model.Candle{c}}, true
	}
	return model.Update{}, false // out-of-order
}

// fanout sends the update to every subscriber without blocking; slow
// consumers lose the update and OnDrop is notified.
func (d *Distributor) fanout(st *stream, upd model.Update) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for id, ch := range st.subs {
		select {
		case ch <- upd:
		default:
			if d.OnDrop != nil {
				d.OnDrop(st.key, id)
			} else {
				log.Printf("[distributor] %s: subscriber %s full, dropping update", st.key, id)
			}
		}
	}
}

// teardown closes the adapter for an idle key, unless a subscriber came
// back while the timer was firing.
func (d *Distributor) teardown(key model.SubscriptionKey, st *stream) {
	st.mu.Lock()
	if len(st.subs) > 0 {
		st.teardown = nil
		st.mu.Unlock()
		return
	}
	st.teardown = nil
	st.stopped = true // no new subscribers from here on
	st.mu.Unlock()

	d.mu.Lock()
	if d.streams[key] == st {
		delete(d.streams, key)
	}
	d.mu.Unlock()

	st.stop()
	log.Printf("[distributor] %s: adapter torn down", key)
}

func (st *stream) stop() {
	st.cancel()
	st.src.Close()
	<-st.done

	st.mu.Lock()
	defer st.mu.Unlock()
	st.stopped = true
	for id, ch := range st.subs {
		close(ch)
		delete(st.subs, id)
	}
}
