package strategy

import (
	"fmt"

	"signal-systemv1/internal/forecast"
	"signal-systemv1/internal/indicator"
	"signal-systemv1/internal/model"
	"signal-systemv1/internal/signal"
)

// RunResult is the structured output of one synchronous strategy run over a
// historical candle series.
type RunResult struct {
	StrategyID string             `json:"strategy_id"`
	Symbol     string             `json:"symbol"`
	Timeframe  string             `json:"timeframe"`
	Candles    int                `json:"candles"`
	Signals    []model.Signal     `json:"signals"`
	Snapshot   indicator.Snapshot `json:"indicators"` // final indicator values
	Forecast   *forecast.Result   `json:"forecast,omitempty"`
}

// RunOnce replays a candle series through a fresh indicator engine and rule
// evaluator, then fits the regression forecaster over the accumulated
// indicator series. Position-repeat suppression applies as in live runs.
// A forecast failure is reported inside the result, not as an error.
func RunOnce(cfg model.StrategyConfig, candles []model.Candle) (*RunResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("strategy %s: no candles to run over", cfg.ID)
	}

	engine, err := indicator.NewEngine(cfg.Indicators)
	if err != nil {
		return nil, err
	}
	eval := signal.NewEvaluator(cfg.ID, cfg.Signals)
	var position positionTracker

	res := &RunResult{
		StrategyID: cfg.ID,
		Symbol:     cfg.Symbol,
		Timeframe:  cfg.Timeframe,
		Candles:    len(candles),
	}

	// Indicator series aligned 1:1 with candles, as Maybe values: an
	// indicator still warming up contributes None, never a fake zero.
	features := make(map[string][]forecast.Maybe)
	var snap indicator.Snapshot
	for i, c := range candles {
		snap = engine.Update(c)
		for id := range snap {
			if _, ok := features[id]; !ok {
				// first appearance: backfill the warm-up gap
				features[id] = make([]forecast.Maybe, i)
			}
		}
		for id, series := range features {
			if v, ok := snap[id]; ok {
				features[id] = append(series, forecast.Some(v))
			} else {
				features[id] = append(series, forecast.None())
			}
		}
		for _, sig := range eval.Evaluate(c, snap) {
			if position.accept(sig) {
				res.Signals = append(res.Signals, sig)
			}
		}
	}
	res.Snapshot = snap

	fc, err := forecast.NewForecaster(forecast.DefaultLags).Run(candles, features)
	if err != nil {
		// Not enough data for even the stage-1 fit; signals still stand.
		res.Forecast = nil
	} else {
		res.Forecast = fc
	}
	return res, nil
}
