package indicator

import (
	"math"
	"testing"
	"time"

	"signal-systemv1/internal/model"
)

func closeCandle(i int, close float64) model.Candle {
	return model.Candle{
		Symbol:    "BTCUSD",
		Timeframe: "1m",
		TS:        time.UnixMilli(int64(60_000 * (i + 1))).UTC(),
		Open:      close,
		High:      close + 1,
		Low:       close - 1,
		Close:     close,
		Volume:    100,
		Final:     true,
	}
}

func assertClose(t *testing.T, got, want, tol float64, label string) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: expected %.6f, got %.6f", label, want, got)
	}
}

func TestSMA_NullUntilPeriodThenExact(t *testing.T) {
	sma := NewSMA("sma_3", 3)
	closes := []float64{1, 2, 3, 4, 5}
	want := []float64{0, 0, 2, 3, 4} // first two not ready

	for i, c := range closes {
		sma.Update(closeCandle(i, c))
		v, ok := sma.Value()
		if i < 2 {
			if ok {
				t.Fatalf("candle %d: expected not ready", i)
			}
			if sma.Outputs() != nil {
				t.Fatalf("candle %d: expected nil outputs before warmup", i)
			}
			continue
		}
		if !ok {
			t.Fatalf("candle %d: expected ready", i)
		}
		assertClose(t, v, want[i], 1e-9, "sma")
	}
}

func TestEMA_SMASeededThenSmoothed(t *testing.T) {
	ema := NewEMA("ema_3", 3)
	for i, c := range []float64{1, 2, 3} {
		ema.Update(closeCandle(i, c))
	}
	v, ok := ema.Value()
	if !ok {
		t.Fatal("expected seed after period samples")
	}
	assertClose(t, v, 2.0, 1e-9, "ema seed")

	// multiplier = 2/(3+1) = 0.5
	ema.Update(closeCandle(3, 4))
	v, _ = ema.Value()
	assertClose(t, v, 3.0, 1e-9, "ema step 1") // 4*0.5 + 2*0.5

	ema.Update(closeCandle(4, 5))
	v, _ = ema.Value()
	assertClose(t, v, 4.0, 1e-9, "ema step 2") // 5*0.5 + 3*0.5
}

func TestRSI_Extremes(t *testing.T) {
	rsi := NewRSI("rsi_14", 14)
	// Strictly rising closes: no losses, RSI pegged at 100.
	for i := 0; i < 20; i++ {
		rsi.Update(closeCandle(i, float64(100+i)))
		if i < 14 {
			if _, ok := rsi.Value(); ok {
				t.Fatalf("candle %d: RSI ready before period+1 samples", i)
			}
		}
	}
	v, ok := rsi.Value()
	if !ok {
		t.Fatal("expected RSI ready")
	}
	assertClose(t, v, 100.0, 1e-9, "rsi all-gains")
}

func TestRSI_BalancedGainsAndLosses(t *testing.T) {
	rsi := NewRSI("rsi_2", 2)
	// changes: +1, -1 over period 2 -> avgGain == avgLoss -> RSI 50.
	for i, c := range []float64{10, 11, 10} {
		rsi.Update(closeCandle(i, c))
	}
	v, ok := rsi.Value()
	if !ok {
		t.Fatal("expected RSI ready")
	}
	assertClose(t, v, 50.0, 1e-9, "rsi balanced")
}

func TestMomentum_PercentChange(t *testing.T) {
	mom := NewMomentum("mom_2", 2)
	for i, c := range []float64{100, 105, 110} {
		mom.Update(closeCandle(i, c))
	}
	v, ok := mom.Value()
	if !ok {
		t.Fatal("expected momentum ready after period+1 samples")
	}
	assertClose(t, v, 10.0, 1e-9, "momentum") // (110-100)/100 * 100
}

func TestBollinger_DerivedOutputs(t *testing.T) {
	bb := NewBollinger("bb", 4, 2)
	for i, c := range []float64{2, 4, 4, 6} {
		bb.Update(closeCandle(i, c))
	}
	out := bb.Outputs()
	if out == nil {
		t.Fatal("expected bands ready")
	}
	// mean 4, population stddev sqrt(2)
	sd := math.Sqrt(2)
	assertClose(t, out["bb_middle"], 4.0, 1e-9, "middle")
	assertClose(t, out["bb_upper"], 4.0+2*sd, 1e-9, "upper")
	assertClose(t, out["bb_lower"], 4.0-2*sd, 1e-9, "lower")
	if out["bb_upper"] <= out["bb_middle"] || out["bb_middle"] <= out["bb_lower"] {
		t.Error("band ordering violated")
	}
}

func TestBollinger_ConstantSeriesCollapses(t *testing.T) {
	bb := NewBollinger("bb", 5, 2)
	for i := 0; i < 5; i++ {
		bb.Update(closeCandle(i, 50))
	}
	out := bb.Outputs()
	assertClose(t, out["bb_upper"], 50, 1e-9, "upper on flat series")
	assertClose(t, out["bb_lower"], 50, 1e-9, "lower on flat series")
}

func TestMACD_DerivedOutputs(t *testing.T) {
	macd := NewMACD("macd", 0, 0, 0) // defaults 12/26/9
	for i := 0; i < 26; i++ {
		macd.Update(closeCandle(i, float64(100+i)))
	}
	// Slow EMA just seeded: line ready, signal EMA still warming.
	out := macd.Outputs()
	if out == nil {
		t.Fatal("expected MACD line after slow period")
	}
	if _, ok := out["macd_signal"]; ok {
		t.Error("signal line ready too early")
	}

	for i := 26; i < 40; i++ {
		macd.Update(closeCandle(i, float64(100+i)))
	}
	out = macd.Outputs()
	sig, ok := out["macd_signal"]
	if !ok {
		t.Fatal("expected signal line after warmup")
	}
	line := out["macd"]
	assertClose(t, out["macd_hist"], line-sig, 1e-9, "histogram")
	// Steady uptrend: fast EMA above slow EMA.
	if line <= 0 {
		t.Errorf("expected positive MACD line in uptrend, got %.6f", line)
	}
}

func TestATR_ConstantRange(t *testing.T) {
	atr := NewATR("atr_3", 3)
	// closeCandle gives High-Low = 2 and |close step| <= 2 for a flat
	// series, so every TR is exactly 2.
	for i := 0; i < 5; i++ {
		atr.Update(closeCandle(i, 100))
		if i < 3 {
			if _, ok := atr.Value(); ok {
				t.Fatalf("candle %d: ATR ready before period+1 candles", i)
			}
		}
	}
	v, ok := atr.Value()
	if !ok {
		t.Fatal("expected ATR ready")
	}
	assertClose(t, v, 2.0, 1e-9, "atr")
}

func TestReset_ClearsWarmup(t *testing.T) {
	configs := []model.IndicatorConfig{
		{ID: "sma_3", Type: "sma", Params: map[string]int{"period": 3}},
		{ID: "rsi_2", Type: "rsi", Params: map[string]int{"period": 2}},
	}
	for _, cfg := range configs {
		ind, err := New(cfg)
		if err != nil {
			t.Fatalf("new %s: %v", cfg.Type, err)
		}
		for i := 0; i < 10; i++ {
			ind.Update(closeCandle(i, float64(100+i)))
		}
		if _, ok := ind.Value(); !ok {
			t.Fatalf("%s: expected ready before reset", cfg.Type)
		}
		ind.Reset()
		if _, ok := ind.Value(); ok {
			t.Errorf("%s: still ready after reset", cfg.Type)
		}
	}
}

func TestFactory_UnknownType(t *testing.T) {
	if _, err := New(model.IndicatorConfig{ID: "x", Type: "vwap"}); err == nil {
		t.Fatal("expected error for unknown indicator type")
	}
	if KnownType("vwap") {
		t.Error("vwap reported as known")
	}
	if !KnownType("SMA") {
		t.Error("type matching should be case-insensitive")
	}
}
