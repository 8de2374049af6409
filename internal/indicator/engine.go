package indicator

import (
	"fmt"

	"signal-systemv1/internal/model"
)

// Snapshot holds the current outputs of all indicators in an engine, keyed
// by (possibly derived) indicator id. Indicators still warming up are
// simply absent.
type Snapshot map[string]float64

// Engine holds one indicator instance per configured indicator for a single
// strategy. Designed for single-goroutine usage — no locks needed.
type Engine struct {
	indicators []Indicator
}

// DefaultConfigs is the fallback indicator set used when a strategy
// configures none.
func DefaultConfigs() []model.IndicatorConfig {
	return []model.IndicatorConfig{
		{ID: "sma_20", Type: "sma", Params: map[string]int{"period": 20}},
		{ID: "ema_9", Type: "ema", Params: map[string]int{"period": 9}},
		{ID: "rsi_14", Type: "rsi", Params: map[string]int{"period": 14}},
	}
}

// NewEngine builds indicator instances for the given configs. Falls back to
// DefaultConfigs when configs is empty.
func NewEngine(configs []model.IndicatorConfig) (*Engine, error) {
	if len(configs) == 0 {
		configs = DefaultConfigs()
	}
	inds := make([]Indicator, 0, len(configs))
	for _, cfg := range configs {
		ind, err := New(cfg)
		if err != nil {
			return nil, fmt.Errorf("indicator engine: %w", err)
		}
		inds = append(inds, ind)
	}
	return &Engine{indicators: inds}, nil
}

// Update feeds the candle to all indicators and returns the combined
// snapshot of ready outputs.
func (e *Engine) Update(candle model.Candle) Snapshot {
	snap := make(Snapshot, len(e.indicators)*2)
	for _, ind := range e.indicators {
		ind.Update(candle)
		for k, v := range ind.Outputs() {
			snap[k] = v
		}
	}
	return snap
}

// Warmup replays historical candles through all indicators without
// producing snapshots. Used before live ticks arrive.
func (e *Engine) Warmup(candles []model.Candle) {
	for _, c := range candles {
		for _, ind := range e.indicators {
			ind.Update(c)
		}
	}
}

// Snapshot returns the current outputs without feeding a new candle.
func (e *Engine) Snapshot() Snapshot {
	snap := make(Snapshot, len(e.indicators)*2)
	for _, ind := range e.indicators {
		for k, v := range ind.Outputs() {
			snap[k] = v
		}
	}
	return snap
}

// Reset clears all indicator state.
func (e *Engine) Reset() {
	for _, ind := range e.indicators {
		ind.Reset()
	}
}

// Size returns the number of indicator instances.
func (e *Engine) Size() int { return len(e.indicators) }
