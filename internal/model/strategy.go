package model

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig marks strategy configuration that is missing required
// fields. A strategy with invalid configuration is rejected at load time and
// never reaches running.
var ErrInvalidConfig = errors.New("invalid strategy configuration")

// IndicatorConfig specifies one indicator instance inside a strategy.
type IndicatorConfig struct {
	ID     string         `json:"id"`     // unique within the strategy, e.g. "ema_fast"
	Type   string         `json:"type"`   // "sma", "ema", "rsi", "macd", "bollinger", ...
	Params map[string]int `json:"params"` // e.g. {"period": 20}
}

// Period returns the "period" parameter with a fallback default.
func (ic IndicatorConfig) Period(def int) int {
	if p, ok := ic.Params["period"]; ok && p > 0 {
		return p
	}
	return def
}

// RiskConfig carries strategy risk parameters. Consumed by external
// collaborators; validated for shape only.
type RiskConfig struct {
	MaxPositionSize float64 `json:"max_position_size,omitempty"`
	StopLossPct     float64 `json:"stop_loss_pct,omitempty"`
	TakeProfitPct   float64 `json:"take_profit_pct,omitempty"`
}

// StrategyConfig is the persisted strategy definition consumed read-only by
// the core.
type StrategyConfig struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Symbol     string            `json:"symbol"`
	Timeframe  string            `json:"timeframe"`
	Enabled    bool              `json:"enabled"`
	Indicators []IndicatorConfig `json:"indicators"`
	Signals    []SignalRule      `json:"signals"`
	Risk       RiskConfig        `json:"risk"`
}

// Key returns the subscription key the strategy consumes.
func (sc StrategyConfig) Key() SubscriptionKey {
	return SubscriptionKey{Symbol: sc.Symbol, Timeframe: sc.Timeframe}
}

// Validate checks presence of required fields. Missing fields are an
// ErrInvalidConfig, not guessed defaults.
func (sc *StrategyConfig) Validate() error {
	if sc.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidConfig)
	}
	if sc.Name == "" {
		return fmt.Errorf("%w: strategy %s: missing name", ErrInvalidConfig, sc.ID)
	}
	if sc.Symbol == "" {
		return fmt.Errorf("%w: strategy %s: missing symbol", ErrInvalidConfig, sc.ID)
	}
	if sc.Timeframe == "" {
		return fmt.Errorf("%w: strategy %s: missing timeframe", ErrInvalidConfig, sc.ID)
	}
	seen := make(map[string]bool, len(sc.Indicators))
	for i, ic := range sc.Indicators {
		if ic.ID == "" || ic.Type == "" {
			return fmt.Errorf("%w: strategy %s: indicator %d missing id or type", ErrInvalidConfig, sc.ID, i)
		}
		if seen[ic.ID] {
			return fmt.Errorf("%w: strategy %s: duplicate indicator id %q", ErrInvalidConfig, sc.ID, ic.ID)
		}
		seen[ic.ID] = true
	}
	for i, r := range sc.Signals {
		if r.ID == "" {
			return fmt.Errorf("%w: strategy %s: rule %d missing id", ErrInvalidConfig, sc.ID, i)
		}
		if len(r.Conditions) == 0 {
			return fmt.Errorf("%w: strategy %s: rule %s has no conditions", ErrInvalidConfig, sc.ID, r.ID)
		}
		for j, c := range r.Conditions {
			if c.Indicator == "" {
				return fmt.Errorf("%w: strategy %s: rule %s condition %d missing indicator", ErrInvalidConfig, sc.ID, r.ID, j)
			}
			switch c.Operator {
			case OpGT, OpLT, OpGTE, OpLTE, OpEQ, OpCrossover, OpCrossunder:
			default:
				return fmt.Errorf("%w: strategy %s: rule %s condition %d: unknown operator %q", ErrInvalidConfig, sc.ID, r.ID, j, c.Operator)
			}
		}
	}
	return nil
}
