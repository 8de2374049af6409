// Package indicator provides stateful technical indicators computed
// incrementally over streaming candles.
//
// Each indicator keeps only the minimum trailing input window its period
// requires. Value() reports ok=false until enough samples have accumulated;
// warm-up is therefore represented as an absent value, never an error.
package indicator

import "signal-systemv1/internal/model"

// Indicator is the interface for all technical indicators.
type Indicator interface {
	// ID returns the configured indicator id (e.g. "ema_fast").
	ID() string

	// Update feeds a new candle and recalculates.
	Update(candle model.Candle)

	// Value returns the primary output. ok is false until enough
	// samples have accumulated.
	Value() (float64, bool)

	// Outputs returns all outputs keyed by derived id. Single-output
	// indicators return {id: value}; multi-output indicators add
	// suffixed keys (e.g. "macd_signal", "bb_upper"). Empty until ready.
	Outputs() map[string]float64

	// Reset clears all history; used on strategy stop.
	Reset()
}

// window is a fixed-capacity trailing sample window shared by the
// window-recompute indicators.
type window struct {
	buf   []float64
	size  int
	idx   int
	count int
}

func newWindow(size int) window {
	return window{buf: make([]float64, size), size: size}
}

func (w *window) push(v float64) {
	w.buf[w.idx] = v
	w.idx = (w.idx + 1) % w.size
	w.count++
}

func (w *window) full() bool { return w.count >= w.size }

// values returns the window contents oldest-first. Only valid when full.
func (w *window) values() []float64 {
	out := make([]float64, 0, w.size)
	for i := 0; i < w.size; i++ {
		out = append(out, w.buf[(w.idx+i)%w.size])
	}
	return out
}

func (w *window) reset() {
	w.idx = 0
	w.count = 0
	for i := range w.buf {
		w.buf[i] = 0
	}
}
