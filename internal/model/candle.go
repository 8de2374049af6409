package model

import (
	"encoding/json"
	"time"
)

// Candle represents one OHLCV bar for a single (symbol, timeframe) bucket.
// Final distinguishes a settled bar from one still forming; a candle is
// immutable once Final is true.
type Candle struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	TS        time.Time `json:"ts"` // bucket start time (UTC)
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Final     bool      `json:"final"`
}

// Key returns the subscription key for this candle: "symbol:timeframe".
func (c *Candle) Key() string {
	return c.Symbol + ":" + c.Timeframe
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// SubscriptionKey identifies one upstream stream and one candle cache.
type SubscriptionKey struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
}

func (k SubscriptionKey) String() string {
	return k.Symbol + ":" + k.Timeframe
}

// UpdateType classifies a distributed candle update.
type UpdateType string

const (
	// UpdateFull extends the series with a new bar.
	UpdateFull UpdateType = "full"
	// UpdateIncremental mutates the last bar in place (still forming).
	UpdateIncremental UpdateType = "incremental"
)

// Update is a single fan-out event delivered to Distributor subscribers.
// Full updates carry one or more bars in timestamp order; incremental
// updates carry exactly the replaced last bar.
type Update struct {
	Key     SubscriptionKey `json:"key"`
	Type    UpdateType      `json:"updateType"`
	Candles []Candle        `json:"data"`
}

// Last returns the most recent candle in this update.
func (u *Update) Last() Candle {
	return u.Candles[len(u.Candles)-1]
}
