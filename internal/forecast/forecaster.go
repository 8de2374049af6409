package forecast

import (
	"fmt"
	"log"
	"sort"

	"signal-systemv1/internal/model"
)

const (
	// DefaultLags is the AR order of the stage-1 return model.
	DefaultLags = 4

	// minCorrectionRows is the smallest usable training set for the
	// stage-2 error-correction regression.
	minCorrectionRows = 5
)

// Maybe is an optional feature value. A feature row enters the
// error-correction regression only if every referenced value is present;
// missing values are excluded explicitly, never coalesced to zero.
type Maybe struct {
	Value float64
	Valid bool
}

// Some wraps a present value.
func Some(v float64) Maybe { return Maybe{Value: v, Valid: true} }

// None is an absent value.
func None() Maybe { return Maybe{} }

// Result is the output of one forecasting run. Error-correction fields are
// nil when the run degraded to the stage-1-only forecast.
type Result struct {
	Symbol            string   `json:"symbol"`
	Timeframe         string   `json:"timeframe"`
	Lags              int      `json:"lags"`
	PredictedReturn   float64  `json:"predicted_return"`
	Forecast          float64  `json:"forecast"` // stage-1 next close
	PredictedResidual *float64 `json:"predicted_residual,omitempty"`
	Corrected         *float64 `json:"corrected,omitempty"`
	Stage1            *Model   `json:"stage1"`
	Stage2            *Model   `json:"stage2,omitempty"`
	Degraded          bool     `json:"degraded"`
	DegradedReason    string   `json:"degraded_reason,omitempty"`
}

// Forecaster fits the two-stage model. Ephemeral: every Run refits from
// scratch; nothing is persisted.
type Forecaster struct {
	lags int
}

// NewForecaster creates a forecaster with the given AR order (DefaultLags
// when lags <= 0).
func NewForecaster(lags int) *Forecaster {
	if lags <= 0 {
		lags = DefaultLags
	}
	return &Forecaster{lags: lags}
}

// Run fits the stage-1 AR model on open-to-close returns of the candle
// series, then the stage-2 error-correction regression of its residuals on
// the given feature series (aligned 1:1 with candles) plus one residual lag.
// A singular or under-populated stage 2 degrades to the stage-1-only
// forecast; a singular stage 1 is a hard error.
func (f *Forecaster) Run(candles []model.Candle, features map[string][]Maybe) (*Result, error) {
	n := len(candles)
	if n < f.lags+2 {
		return nil, fmt.Errorf("forecast: need at least %d candles, have %d", f.lags+2, n)
	}

	returns := make([]float64, n)
	for i, c := range candles {
		if c.Open <= 0 {
			return nil, fmt.Errorf("forecast: candle %d has non-positive open", i)
		}
		returns[i] = (c.Close - c.Open) / c.Open
	}

	// Stage 1: AR(lags) on returns.
	rows := make([][]float64, 0, n-f.lags)
	targets := make([]float64, 0, n-f.lags)
	for t := f.lags; t < n; t++ {
		rows = append(rows, lagRow(returns, t, f.lags))
		targets = append(targets, returns[t])
	}
	stage1, err := Fit(rows, targets)
	if err != nil {
		return nil, fmt.Errorf("forecast stage 1: %w", err)
	}

	predictedReturn := stage1.Predict(lagRow(returns, n, f.lags))
	prevClose := candles[n-1].Close
	res := &Result{
		Symbol:          candles[n-1].Symbol,
		Timeframe:       candles[n-1].Timeframe,
		Lags:            f.lags,
		PredictedReturn: predictedReturn,
		Forecast:        prevClose * (1 + predictedReturn),
		Stage1:          stage1,
	}

	f.correct(res, candles, returns, features, stage1)
	return res, nil
}

// correct fits the stage-2 error-correction regression and fills in the
// corrected forecast, or marks the result degraded.
func (f *Forecaster) correct(res *Result, candles []model.Candle, returns []float64, features map[string][]Maybe, stage1 *Model) {
	n := len(candles)

	// Historical stage-1 residual at each trainable point.
	resid := make([]float64, n) // indexed by t, valid from f.lags
	for t := f.lags; t < n; t++ {
		rhat := stage1.Predict(lagRow(returns, t, f.lags))
		forecastClose := candles[t-1].Close * (1 + rhat)
		resid[t] = candles[t].Close - forecastClose
	}

	// Deterministic feature ordering.
	names := make([]string, 0, len(features))
	for name := range features {
		names = append(names, name)
	}
	sort.Strings(names)

	// A row at t predicts resid[t] from the features at t plus one
	// residual lag. Rows with any missing feature are excluded.
	featureAt := func(t int) ([]float64, bool) {
		row := make([]float64, 0, len(names)+1)
		for _, name := range names {
			series := features[name]
			if t >= len(series) || !series[t].Valid {
				return nil, false
			}
			row = append(row, series[t].Value)
		}
		return row, true
	}

	var rows [][]float64
	var targets []float64
	for t := f.lags + 1; t < n; t++ {
		row, ok := featureAt(t)
		if !ok {
			continue
		}
		rows = append(rows, append(row, resid[t-1]))
		targets = append(targets, resid[t])
	}

	if len(rows) < minCorrectionRows {
		res.Degraded = true
		res.DegradedReason = fmt.Sprintf("error correction skipped: %d valid feature rows, need %d", len(rows), minCorrectionRows)
		log.Printf("[forecast] %s %s: %s", res.Symbol, res.Timeframe, res.DegradedReason)
		return
	}

	stage2, err := Fit(rows, targets)
	if err != nil {
		res.Degraded = true
		res.DegradedReason = err.Error()
		log.Printf("[forecast] %s %s: error correction degraded: %v", res.Symbol, res.Timeframe, err)
		return
	}

	nextRow, ok := featureAt(n - 1)
	if !ok {
		res.Degraded = true
		res.DegradedReason = "error correction skipped: current feature vector incomplete"
		log.Printf("[forecast] %s %s: %s", res.Symbol, res.Timeframe, res.DegradedReason)
		return
	}

	predictedResidual := stage2.Predict(append(nextRow, resid[n-1]))
	corrected := res.Forecast + predictedResidual
	res.Stage2 = stage2
	res.PredictedResidual = &predictedResidual
	res.Corrected = &corrected
}

// lagRow returns [series[t-1], ..., series[t-lags]].
func lagRow(series []float64, t, lags int) []float64 {
	row := make([]float64, lags)
	for i := 1; i <= lags; i++ {
		row[i-1] = series[t-i]
	}
	return row
}
