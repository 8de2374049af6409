package gateway

import (
	"time"

	"signal-systemv1/internal/model"
)

// Wire messages exchanged with streaming clients, one JSON object per
// message, tagged by a "type" field.

// ClientMessage is the inbound union: stream subscription management and
// strategy control.
type ClientMessage struct {
	Type       string `json:"type"` // "subscribe" | "unsubscribe" | "strategy-control"
	Symbol     string `json:"symbol,omitempty"`
	Timeframe  string `json:"timeframe,omitempty"`
	Action     string `json:"action,omitempty"` // start | stop | pause | resume
	StrategyID string `json:"strategyId,omitempty"`
}

// ConnectionMessage acknowledges a new streaming connection.
type ConnectionMessage struct {
	Type    string    `json:"type"` // "connection"
	Message string    `json:"message"`
	TS      time.Time `json:"ts"`
}

// OHLCVMessage carries candle data. Data is an array of candles for full
// updates (snapshot or new bar) and a single candle for incremental ones.
type OHLCVMessage struct {
	Type       string           `json:"type"` // "ohlcv"
	Symbol     string           `json:"symbol"`
	Timeframe  string           `json:"timeframe"`
	UpdateType model.UpdateType `json:"updateType"`
	Data       interface{}      `json:"data"` // []model.Candle or model.Candle
}

// ControlResponseMessage answers a strategy-control request.
type ControlResponseMessage struct {
	Type       string `json:"type"` // "strategy-control-response"
	StrategyID string `json:"strategyId"`
	Action     string `json:"action"`
	OK         bool   `json:"ok"`
	State      string `json:"state,omitempty"`
	Error      string `json:"error,omitempty"`
}

// SignalMessage pushes an emitted trading signal.
type SignalMessage struct {
	Type   string       `json:"type"` // "signal-generated"
	Signal model.Signal `json:"signal"`
}

// ErrorMessage reports a request or stream failure explicitly instead of a
// silent disconnect.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}

func newOHLCV(key model.SubscriptionKey, t model.UpdateType, data interface{}) OHLCVMessage {
	return OHLCVMessage{
		Type:       "ohlcv",
		Symbol:     key.Symbol,
		Timeframe:  key.Timeframe,
		UpdateType: t,
		Data:       data,
	}
}
