package model

import "time"

// Side is the market side of a signal or rule.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// SignalType distinguishes entries from exits.
type SignalType string

const (
	SignalEntry SignalType = "entry"
	SignalExit  SignalType = "exit"
)

// Operator compares indicator values inside a rule condition.
type Operator string

const (
	OpGT         Operator = "gt"
	OpLT         Operator = "lt"
	OpGTE        Operator = "gte"
	OpLTE        Operator = "lte"
	OpEQ         Operator = "eq"
	OpCrossover  Operator = "crossover"
	OpCrossunder Operator = "crossunder"
)

// CombineLogic selects how a rule's conditions combine.
type CombineLogic string

const (
	CombineAND CombineLogic = "and"
	CombineOR  CombineLogic = "or"
)

// Condition compares one indicator against either a second indicator or a
// fixed threshold. Crossover/crossunder consult Lookback+1 historical samples
// (Lookback defaults to 1 when zero).
type Condition struct {
	Indicator string   `json:"indicator"`           // indicator id, possibly derived ("macd_signal")
	Operator  Operator `json:"operator"`
	Against   string   `json:"against,omitempty"`   // second indicator id, exclusive with Value
	Value     float64  `json:"value,omitempty"`     // threshold, used when Against is empty
	Lookback  int      `json:"lookback,omitempty"`
}

// SignalRule is one declarative entry/exit rule evaluated every tick.
type SignalRule struct {
	ID         string       `json:"id"`
	Type       SignalType   `json:"type"`
	Side       Side         `json:"side"`
	Conditions []Condition  `json:"conditions"`
	Logic      CombineLogic `json:"logic,omitempty"` // default AND
	Confidence float64      `json:"confidence,omitempty"`
}

// Signal is an emitted trading-signal event. Immutable once emitted.
type Signal struct {
	ID         string             `json:"id"`
	StrategyID string             `json:"strategy_id"`
	RuleID     string             `json:"rule_id"`
	Side       Side               `json:"side"`
	Type       SignalType         `json:"type"`
	TS         time.Time          `json:"ts"`
	Price      float64            `json:"price"`
	Confidence float64            `json:"confidence"`
	Indicators map[string]float64 `json:"indicators"` // contributing values at emission
}
