package forecast

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"signal-systemv1/internal/model"
)

// candlesFromReturns builds a candle chain where each bar opens at the prior
// close and realizes the given open-to-close return.
func candlesFromReturns(returns []float64) []model.Candle {
	candles := make([]model.Candle, len(returns))
	open := 100.0
	for i, r := range returns {
		close := open * (1 + r)
		candles[i] = model.Candle{
			Symbol:    "BTCUSD",
			Timeframe: "1m",
			TS:        time.UnixMilli(int64(60_000 * (i + 1))).UTC(),
			Open:      open,
			High:      math.Max(open, close),
			Low:       math.Min(open, close),
			Close:     close,
			Volume:    100,
			Final:     true,
		}
		open = close
	}
	return candles
}

func randomReturns(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = (rng.Float64() - 0.5) * 0.02
	}
	return out
}

func TestForecaster_TooFewCandles(t *testing.T) {
	f := NewForecaster(4)
	_, err := f.Run(candlesFromReturns(randomReturns(5, 1)), nil)
	if err == nil {
		t.Fatal("expected error for too few candles")
	}
}

func TestForecaster_RejectsNonPositiveOpen(t *testing.T) {
	candles := candlesFromReturns(randomReturns(12, 1))
	candles[3].Open = 0
	f := NewForecaster(2)
	if _, err := f.Run(candles, nil); err == nil {
		t.Fatal("expected error for non-positive open")
	}
}

func TestForecaster_Stage1ExactARRecovery(t *testing.T) {
	// Alternating ±1% returns follow r[t] = -r[t-1] exactly, so an AR(1)
	// fit predicts the next return with zero error.
	returns := make([]float64, 12)
	for i := range returns {
		if i%2 == 0 {
			returns[i] = 0.01
		} else {
			returns[i] = -0.01
		}
	}
	candles := candlesFromReturns(returns)

	f := NewForecaster(1)
	res, err := f.Run(candles, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// Last return is -1%, so the next is +1%.
	assertClose(t, res.PredictedReturn, 0.01, 1e-9, "predicted return")
	wantForecast := candles[len(candles)-1].Close * 1.01
	assertClose(t, res.Forecast, wantForecast, 1e-9, "stage-1 forecast")

	if res.Stage1 == nil {
		t.Fatal("expected stage-1 model")
	}
	assertClose(t, res.Stage1.Coefficients[1], -1.0, 1e-9, "AR coefficient")
	if res.Lags != 1 {
		t.Errorf("expected lags=1, got %d", res.Lags)
	}
}

func TestForecaster_DegradesWithSparseFeatures(t *testing.T) {
	candles := candlesFromReturns(randomReturns(30, 7))

	// Feature present on only three ticks: below the stage-2 minimum.
	series := make([]Maybe, 30)
	for i := range series {
		series[i] = None()
	}
	series[10] = Some(1.0)
	series[11] = Some(2.0)
	series[12] = Some(3.0)

	f := NewForecaster(4)
	res, err := f.Run(candles, map[string][]Maybe{"rsi_14": series})
	if err != nil {
		t.Fatalf("degraded run must not error: %v", err)
	}
	if !res.Degraded {
		t.Fatal("expected degraded result")
	}
	if res.DegradedReason == "" {
		t.Error("expected a degradation reason")
	}
	if res.Stage2 != nil || res.Corrected != nil || res.PredictedResidual != nil {
		t.Error("degraded result must not carry stage-2 fields")
	}
	// The stage-1 forecast is still produced.
	if res.Stage1 == nil || res.Forecast == 0 {
		t.Error("expected stage-1 forecast despite degradation")
	}
}

func TestForecaster_FullTwoStage(t *testing.T) {
	n := 40
	candles := candlesFromReturns(randomReturns(n, 11))

	rng := rand.New(rand.NewSource(13))
	feat := make([]Maybe, n)
	for i := range feat {
		feat[i] = Some(rng.Float64() * 100)
	}

	f := NewForecaster(4)
	res, err := f.Run(candles, map[string][]Maybe{"rsi_14": feat})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Degraded {
		t.Fatalf("unexpected degradation: %s", res.DegradedReason)
	}
	if res.Stage2 == nil || res.Corrected == nil || res.PredictedResidual == nil {
		t.Fatal("expected complete stage-2 output")
	}
	// Corrected forecast is stage 1 plus the predicted residual.
	assertClose(t, *res.Corrected, res.Forecast+*res.PredictedResidual, 1e-9, "corrected")
	// Features: one indicator plus the residual lag, plus intercept.
	if len(res.Stage2.Coefficients) != 3 {
		t.Errorf("expected 3 stage-2 coefficients, got %d", len(res.Stage2.Coefficients))
	}
}

func TestForecaster_ExcludesIncompleteRows(t *testing.T) {
	n := 40
	candles := candlesFromReturns(randomReturns(n, 17))

	rng := rand.New(rand.NewSource(19))
	feat := make([]Maybe, n)
	missing := 0
	for i := range feat {
		if i%5 == 0 {
			feat[i] = None()
			missing++
		} else {
			feat[i] = Some(rng.Float64() * 100)
		}
	}

	f := NewForecaster(4)
	res, err := f.Run(candles, map[string][]Maybe{"rsi_14": feat})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// Trainable ticks are lags+1..n-1; every fifth one is excluded, and
	// the row count must reflect only complete rows.
	total := 0
	for tk := 5; tk < n; tk++ {
		if tk%5 != 0 {
			total++
		}
	}
	if res.Degraded {
		t.Fatalf("unexpected degradation: %s", res.DegradedReason)
	}
	if res.Stage2.Rows != total {
		t.Errorf("expected %d stage-2 rows, got %d", total, res.Stage2.Rows)
	}
}

func TestForecaster_CurrentFeatureGapDegrades(t *testing.T) {
	n := 40
	candles := candlesFromReturns(randomReturns(n, 23))

	rng := rand.New(rand.NewSource(29))
	feat := make([]Maybe, n)
	for i := range feat {
		feat[i] = Some(rng.Float64() * 100)
	}
	feat[n-1] = None() // cannot build the prediction vector

	f := NewForecaster(4)
	res, err := f.Run(candles, map[string][]Maybe{"rsi_14": feat})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Degraded {
		t.Fatal("expected degradation when current feature vector is incomplete")
	}
	if res.Corrected != nil {
		t.Error("expected no corrected forecast")
	}
}
