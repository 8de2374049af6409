package indicator

import (
	"testing"

	"signal-systemv1/internal/model"
)

func TestEngine_SnapshotOmitsWarmingIndicators(t *testing.T) {
	engine, err := NewEngine([]model.IndicatorConfig{
		{ID: "sma_3", Type: "sma", Params: map[string]int{"period": 3}},
		{ID: "sma_10", Type: "sma", Params: map[string]int{"period": 10}},
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	var snap Snapshot
	for i := 0; i < 5; i++ {
		snap = engine.Update(closeCandle(i, float64(10+i)))
	}
	if _, ok := snap["sma_3"]; !ok {
		t.Error("expected sma_3 in snapshot after 5 candles")
	}
	if _, ok := snap["sma_10"]; ok {
		t.Error("sma_10 present before its warmup completed")
	}
}

func TestEngine_DerivedIDsInSnapshot(t *testing.T) {
	engine, err := NewEngine([]model.IndicatorConfig{
		{ID: "bb", Type: "bollinger", Params: map[string]int{"period": 3, "stddev": 2}},
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	var snap Snapshot
	for i := 0; i < 4; i++ {
		snap = engine.Update(closeCandle(i, float64(100+i)))
	}
	for _, id := range []string{"bb_upper", "bb_middle", "bb_lower"} {
		if _, ok := snap[id]; !ok {
			t.Errorf("expected derived output %s", id)
		}
	}
}

func TestEngine_WarmupThenSnapshot(t *testing.T) {
	engine, err := NewEngine([]model.IndicatorConfig{
		{ID: "sma_3", Type: "sma", Params: map[string]int{"period": 3}},
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	hist := make([]model.Candle, 5)
	for i := range hist {
		hist[i] = closeCandle(i, float64(10+i)) // 10..14
	}
	engine.Warmup(hist)

	snap := engine.Snapshot()
	v, ok := snap["sma_3"]
	if !ok {
		t.Fatal("expected sma_3 ready after warmup")
	}
	assertClose(t, v, 13.0, 1e-9, "warmup sma") // (12+13+14)/3

	engine.Reset()
	if len(engine.Snapshot()) != 0 {
		t.Error("expected empty snapshot after reset")
	}
}

func TestEngine_DefaultsWhenUnconfigured(t *testing.T) {
	engine, err := NewEngine(nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if engine.Size() != 3 {
		t.Fatalf("expected 3 default indicators, got %d", engine.Size())
	}
}

func TestEngine_RejectsUnknownType(t *testing.T) {
	_, err := NewEngine([]model.IndicatorConfig{{ID: "x", Type: "supertrend"}})
	if err == nil {
		t.Fatal("expected error for unknown indicator type")
	}
}
