package model

// DefaultBufferCap is the default rolling-window capacity per subscription.
const DefaultBufferCap = 1000

// CandleBuffer is a capacity-bounded, timestamp-ordered candle window for
// one SubscriptionKey. The oldest entry is evicted FIFO on overflow.
// Invariant: strictly increasing timestamps, no duplicates.
//
// Single-writer: only the owning distributor goroutine mutates it.
type CandleBuffer struct {
	candles []Candle
	cap     int
}

// NewCandleBuffer creates a buffer with the given capacity (DefaultBufferCap
// when capacity <= 0).
func NewCandleBuffer(capacity int) *CandleBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferCap
	}
	return &CandleBuffer{
		candles: make([]Candle, 0, capacity),
		cap:     capacity,
	}
}

// Append adds a candle with a timestamp strictly after the current last.
// Returns false (buffer unchanged) for out-of-order or duplicate timestamps.
func (b *CandleBuffer) Append(c Candle) bool {
	if n := len(b.candles); n > 0 && !c.TS.After(b.candles[n-1].TS) {
		return false
	}
	if len(b.candles) == b.cap {
		copy(b.candles, b.candles[1:])
		b.candles = b.candles[:b.cap-1]
	}
	b.candles = append(b.candles, c)
	return true
}

// ReplaceLast overwrites the last candle in place. The replacement must carry
// the same timestamp as the entry it replaces.
func (b *CandleBuffer) ReplaceLast(c Candle) bool {
	n := len(b.candles)
	if n == 0 || !c.TS.Equal(b.candles[n-1].TS) {
		return false
	}
	b.candles[n-1] = c
	return true
}

// Last returns the most recent candle, if any.
func (b *CandleBuffer) Last() (Candle, bool) {
	if len(b.candles) == 0 {
		return Candle{}, false
	}
	return b.candles[len(b.candles)-1], true
}

// Len returns the number of buffered candles.
func (b *CandleBuffer) Len() int { return len(b.candles) }

// Cap returns the buffer capacity.
func (b *CandleBuffer) Cap() int { return b.cap }

// Snapshot returns a copy of all buffered candles in timestamp order.
func (b *CandleBuffer) Snapshot() []Candle {
	out := make([]Candle, len(b.candles))
	copy(out, b.candles)
	return out
}

// Tail returns a copy of the most recent n candles (all when n >= Len).
func (b *CandleBuffer) Tail(n int) []Candle {
	if n <= 0 {
		return nil
	}
	if n > len(b.candles) {
		n = len(b.candles)
	}
	out := make([]Candle, n)
	copy(out, b.candles[len(b.candles)-n:])
	return out
}
