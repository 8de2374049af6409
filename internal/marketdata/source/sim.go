package source

import (
	"context"
	"math/rand"
	"time"

	"signal-systemv1/internal/model"
)

// SimSource generates a deterministic random-walk candle stream for one key.
// Drop-in replacement for WSSource — useful for staging and tests without an
// upstream feed.
type SimSource struct {
	key      model.SubscriptionKey
	interval time.Duration
	rng      *rand.Rand
	price    float64
}

// NewSimSource creates a simulated source. interval is the bar duration
// (defaults to 1s if zero); seed makes runs reproducible.
func NewSimSource(key model.SubscriptionKey, interval time.Duration, seed int64) *SimSource {
	if interval <= 0 {
		interval = time.Second
	}
	return &SimSource{
		key:      key,
		interval: interval,
		rng:      rand.New(rand.NewSource(seed)),
		price:    100,
	}
}

// Run emits one forming update mid-bar and a final candle at each bar close,
// until ctx is cancelled. Never returns an error.
func (s *SimSource) Run(ctx context.Context, sink chan<- model.Candle) error {
	ticker := time.NewTicker(s.interval / 2)
	defer ticker.Stop()

	ts := time.Now().UTC().Truncate(s.interval)
	cur := s.next(ts, false)
	half := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !half {
				// mid-bar mutation of the forming candle
				cur.Close += s.rng.Float64() - 0.5
				cur.High = max(cur.High, cur.Close)
				cur.Low = min(cur.Low, cur.Close)
				cur.Volume += s.rng.Float64() * 10
				half = true
			} else {
				cur.Final = true
				s.price = cur.Close
				half = false
			}
			select {
			case sink <- cur:
			case <-ctx.Done():
				return nil
			}
			if cur.Final {
				ts = ts.Add(s.interval)
				cur = s.next(ts, false)
			}
		}
	}
}

// History generates limit synthetic trailing bars ending before now.
func (s *SimSource) History(ctx context.Context, limit int) ([]model.Candle, error) {
	ts := time.Now().UTC().Truncate(s.interval).Add(-time.Duration(limit) * s.interval)
	out := make([]model.Candle, 0, limit)
	for i := 0; i < limit; i++ {
		c := s.next(ts, true)
		s.price = c.Close
		out = append(out, c)
		ts = ts.Add(s.interval)
	}
	return out, nil
}

// Close is a no-op; there is no connection.
func (s *SimSource) Close() error { return nil }

func (s *SimSource) next(ts time.Time, final bool) model.Candle {
	open := s.price
	close := open + (s.rng.Float64()-0.5)*2
	return model.Candle{
		Symbol:    s.key.Symbol,
		Timeframe: s.key.Timeframe,
		TS:        ts,
		Open:      open,
		High:      max(open, close),
		Low:       min(open, close),
		Close:     close,
		Volume:    10 + s.rng.Float64()*100,
		Final:     final,
	}
}
