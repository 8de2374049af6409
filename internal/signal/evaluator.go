// Package signal evaluates declarative trading rules against indicator
// snapshots and emits Signal events.
package signal

import (
	"math"

	"github.com/google/uuid"

	"signal-systemv1/internal/indicator"
	"signal-systemv1/internal/model"
)

const (
	// historyCap bounds the per-indicator value history kept for
	// crossover lookback.
	historyCap = 64

	// defaultConfidence applies when a rule configures no base confidence.
	defaultConfidence = 0.5
)

// Evaluator evaluates the rules of one strategy. It keeps a bounded,
// per-tick-aligned value history for every indicator referenced by any rule
// so crossover conditions can look back across ticks. Missing values are
// recorded as NaN; a condition whose inputs are missing simply does not
// fire — warm-up is not an error.
type Evaluator struct {
	strategyID string
	rules      []model.SignalRule
	refs       []string
	history    map[string][]float64
}

// NewEvaluator creates an evaluator for the given rules.
func NewEvaluator(strategyID string, rules []model.SignalRule) *Evaluator {
	refSet := make(map[string]bool)
	for _, r := range rules {
		for _, c := range r.Conditions {
			refSet[c.Indicator] = true
			if c.Against != "" {
				refSet[c.Against] = true
			}
		}
	}
	refs := make([]string, 0, len(refSet))
	for id := range refSet {
		refs = append(refs, id)
	}
	return &Evaluator{
		strategyID: strategyID,
		rules:      rules,
		refs:       refs,
		history:    make(map[string][]float64, len(refs)),
	}
}

// Evaluate records the snapshot and returns one Signal per rule that fires
// this tick. Deduplication of a repeating logical position is the caller's
// responsibility, not the evaluator's.
func (e *Evaluator) Evaluate(candle model.Candle, snap indicator.Snapshot) []model.Signal {
	e.record(snap)

	var signals []model.Signal
	for _, rule := range e.rules {
		if !e.ruleFires(rule) {
			continue
		}
		confidence := rule.Confidence
		if confidence == 0 {
			confidence = defaultConfidence
		}
		signals = append(signals, model.Signal{
			ID:         uuid.NewString(),
			StrategyID: e.strategyID,
			RuleID:     rule.ID,
			Side:       rule.Side,
			Type:       rule.Type,
			TS:         candle.TS,
			Price:      candle.Close,
			Confidence: confidence,
			Indicators: e.contributing(rule, snap),
		})
	}
	return signals
}

// Reset clears all value history; used on strategy stop.
func (e *Evaluator) Reset() {
	e.history = make(map[string][]float64, len(e.refs))
}

func (e *Evaluator) record(snap indicator.Snapshot) {
	for _, id := range e.refs {
		v, ok := snap[id]
		if !ok {
			v = math.NaN()
		}
		h := append(e.history[id], v)
		if len(h) > historyCap {
			h = h[len(h)-historyCap:]
		}
		e.history[id] = h
	}
}

func (e *Evaluator) ruleFires(rule model.SignalRule) bool {
	anyMode := rule.Logic == model.CombineOR
	for _, cond := range rule.Conditions {
		fired := e.condFires(cond)
		if anyMode && fired {
			return true
		}
		if !anyMode && !fired {
			return false
		}
	}
	return !anyMode
}

func (e *Evaluator) condFires(cond model.Condition) bool {
	cur, ok := e.sample(cond.Indicator, 0)
	if !ok {
		return false
	}

	switch cond.Operator {
	case model.OpCrossover, model.OpCrossunder:
		return e.crossFires(cond, cur)
	}

	target := cond.Value
	if cond.Against != "" {
		var ok bool
		if target, ok = e.sample(cond.Against, 0); !ok {
			return false
		}
	}
	switch cond.Operator {
	case model.OpGT:
		return cur > target
	case model.OpLT:
		return cur < target
	case model.OpGTE:
		return cur >= target
	case model.OpLTE:
		return cur <= target
	case model.OpEQ:
		return cur == target
	}
	return false
}

// crossFires checks a crossover/crossunder between the sample lookback ticks
// back and the current one. Fires only on the tick where the relation
// changes, not while the current sample merely satisfies the threshold.
func (e *Evaluator) crossFires(cond model.Condition, cur float64) bool {
	lookback := cond.Lookback
	if lookback <= 0 {
		lookback = 1
	}
	prev, ok := e.sample(cond.Indicator, lookback)
	if !ok {
		return false
	}

	curTarget := cond.Value
	prevTarget := cond.Value
	if cond.Against != "" {
		if curTarget, ok = e.sample(cond.Against, 0); !ok {
			return false
		}
		if prevTarget, ok = e.sample(cond.Against, lookback); !ok {
			return false
		}
	}

	switch cond.Operator {
	case model.OpCrossover:
		return prev <= prevTarget && cur > curTarget
	case model.OpCrossunder:
		return prev >= prevTarget && cur < curTarget
	}
	return false
}

// sample returns the value of an indicator n ticks back (0 = current).
// ok is false when the history is too short or the sample was missing.
func (e *Evaluator) sample(id string, back int) (float64, bool) {
	h := e.history[id]
	idx := len(h) - 1 - back
	if idx < 0 {
		return 0, false
	}
	v := h[idx]
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// contributing collects the snapshot values referenced by a fired rule.
func (e *Evaluator) contributing(rule model.SignalRule, snap indicator.Snapshot) map[string]float64 {
	out := make(map[string]float64)
	for _, c := range rule.Conditions {
		if v, ok := snap[c.Indicator]; ok {
			out[c.Indicator] = v
		}
		if c.Against != "" {
			if v, ok := snap[c.Against]; ok {
				out[c.Against] = v
			}
		}
	}
	return out
}
