package strategy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"signal-systemv1/internal/marketdata/distributor"
	"signal-systemv1/internal/marketdata/source"
	"signal-systemv1/internal/model"
)

// fakeDist hands every subscriber the same scripted snapshot and a channel
// the test pushes updates through.
type fakeDist struct {
	mu       sync.Mutex
	snapshot []model.Candle
	updates  chan model.Update
	subs     map[string]bool
	unsubs   int
}

func newFakeDist(snapshot ...model.Candle) *fakeDist {
	return &fakeDist{
		snapshot: snapshot,
		updates:  make(chan model.Update, 64),
		subs:     make(map[string]bool),
	}
}

func (f *fakeDist) Subscribe(ctx context.Context, key model.SubscriptionKey, id string) ([]model.Candle, <-chan model.Update, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// Same contract as the real distributor: one registration per id.
	if f.subs[id] {
		return nil, nil, fmt.Errorf("subscriber already registered: %s", id)
	}
	f.subs[id] = true
	return f.snapshot, f.updates, nil
}

func (f *fakeDist) subscribed(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[id]
}

func (f *fakeDist) Unsubscribe(key model.SubscriptionKey, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, id)
	f.unsubs++
}

func (f *fakeDist) unsubscribed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unsubs
}

func finalCandle(ts int64, close float64) model.Candle {
	return model.Candle{
		Symbol:    "BTCUSD",
		Timeframe: "1m",
		TS:        time.UnixMilli(ts).UTC(),
		Open:      close,
		High:      close,
		Low:       close,
		Close:     close,
		Volume:    10,
		Final:     true,
	}
}

func fullUpdate(c model.Candle) model.Update {
	return model.Update{
		Key:     model.SubscriptionKey{Symbol: c.Symbol, Timeframe: c.Timeframe},
		Type:    model.UpdateFull,
		Candles: []model.Candle{c},
	}
}

// testConfig fires a long entry on every candle with a positive 1-period SMA.
func testConfig(id string) model.StrategyConfig {
	return model.StrategyConfig{
		ID:        id,
		Name:      "always long",
		Symbol:    "BTCUSD",
		Timeframe: "1m",
		Indicators: []model.IndicatorConfig{
			{ID: "sma_1", Type: "sma", Params: map[string]int{"period": 1}},
		},
		Signals: []model.SignalRule{{
			ID:   "enter",
			Type: model.SignalEntry,
			Side: model.SideLong,
			Conditions: []model.Condition{
				{Indicator: "sma_1", Operator: model.OpGT, Value: 0},
			},
		}},
	}
}

func waitForState(t *testing.T, in *Instance, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for in.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state never reached %s, still %s", want, in.State())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestInstance_StateMachineGuards(t *testing.T) {
	in := NewInstance(testConfig("s1"), newFakeDist(), nil)
	ctx := context.Background()

	if in.State() != StateStopped {
		t.Fatalf("expected stopped initial state, got %s", in.State())
	}

	// stopped: only start is legal.
	if err := in.Pause(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("pause on stopped: expected ErrInvalidTransition, got %v", err)
	}
	if err := in.Resume(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("resume on stopped: expected ErrInvalidTransition, got %v", err)
	}
	if err := in.Stop(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("stop on stopped: expected ErrInvalidTransition, got %v", err)
	}

	if err := in.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if in.State() != StateRunning {
		t.Fatalf("expected running, got %s", in.State())
	}

	// running: start and resume are illegal.
	if err := in.Start(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("double start: expected ErrAlreadyRunning, got %v", err)
	}
	if err := in.Resume(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("resume on running: expected ErrInvalidTransition, got %v", err)
	}

	if err := in.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	// paused: start and pause are illegal, resume and stop are legal.
	if err := in.Start(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("start on paused: expected ErrAlreadyRunning, got %v", err)
	}
	if err := in.Pause(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("double pause: expected ErrInvalidTransition, got %v", err)
	}
	if err := in.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if in.State() != StateRunning {
		t.Fatalf("expected running after resume, got %s", in.State())
	}

	if err := in.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if in.State() != StateStopped {
		t.Fatalf("expected stopped, got %s", in.State())
	}
}

func TestInstance_EmitsAndDeduplicatesSignals(t *testing.T) {
	dist := newFakeDist()
	emitted := make(chan model.Signal, 16)
	in := NewInstance(testConfig("s1"), dist, func(s model.Signal) { emitted <- s })

	if err := in.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer in.Stop()

	// Three settled bars, all satisfying the entry rule: the first opens
	// the logical long position, the repeats are suppressed.
	for i := 0; i < 3; i++ {
		dist.updates <- fullUpdate(finalCandle(int64(1000+i*1000), 100))
	}

	select {
	case sig := <-emitted:
		if sig.Side != model.SideLong || sig.Type != model.SignalEntry {
			t.Errorf("unexpected signal: %+v", sig)
		}
		if sig.StrategyID != "s1" {
			t.Errorf("expected strategy id s1, got %s", sig.StrategyID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no signal emitted")
	}

	select {
	case sig := <-emitted:
		t.Fatalf("repeated position signal re-published: %+v", sig)
	case <-time.After(200 * time.Millisecond):
	}

	if got := len(in.Signals()); got != 1 {
		t.Errorf("expected 1 signal in history, got %d", got)
	}
}

func TestInstance_IgnoresFormingBars(t *testing.T) {
	dist := newFakeDist()
	emitted := make(chan model.Signal, 16)
	in := NewInstance(testConfig("s1"), dist, func(s model.Signal) { emitted <- s })

	if err := in.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer in.Stop()

	forming := finalCandle(1000, 100)
	forming.Final = false
	dist.updates <- fullUpdate(forming)

	select {
	case sig := <-emitted:
		t.Fatalf("signal from a forming bar: %+v", sig)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestInstance_PauseStopsProcessing(t *testing.T) {
	dist := newFakeDist()
	emitted := make(chan model.Signal, 16)
	in := NewInstance(testConfig("s1"), dist, func(s model.Signal) { emitted <- s })

	if err := in.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer in.Stop()
	if err := in.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}

	dist.updates <- fullUpdate(finalCandle(1000, 100))
	select {
	case sig := <-emitted:
		t.Fatalf("paused instance processed a candle: %+v", sig)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestInstance_FaultMovesToErrorState(t *testing.T) {
	dist := newFakeDist()
	in := NewInstance(testConfig("s1"), dist, nil)

	if err := in.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	// An empty update is malformed and panics inside processing; the
	// panic must be contained as an instance fault.
	dist.updates <- model.Update{Key: in.Config().Key(), Type: model.UpdateFull}

	waitForState(t, in, StateError)
	if in.LastError() == nil {
		t.Error("expected recorded fault")
	}
	if dist.subscribed("strategy:s1") {
		t.Error("fault left the subscription registered")
	}

	// A faulted instance can be restarted.
	if err := in.Start(context.Background()); err != nil {
		t.Fatalf("restart after fault: %v", err)
	}
	if in.State() != StateRunning {
		t.Fatalf("expected running after restart, got %s", in.State())
	}
	if in.LastError() != nil {
		t.Error("expected fault cleared on restart")
	}
	in.Stop()
}

// idleSource serves a fixed history and then idles until cancelled, so a
// test can drive an instance through a live distributor without a feed.
type idleSource struct {
	hist []model.Candle
}

func (s *idleSource) Run(ctx context.Context, sink chan<- model.Candle) error {
	<-ctx.Done()
	return ctx.Err()
}

func (s *idleSource) History(ctx context.Context, limit int) ([]model.Candle, error) {
	return s.hist, nil
}

func (s *idleSource) Close() error { return nil }

func TestInstance_RestartAfterFaultAgainstDistributor(t *testing.T) {
	hist := []model.Candle{finalCandle(1000, 100), finalCandle(2000, 101)}
	dist := distributor.New(distributor.Config{
		Factory:    func(key model.SubscriptionKey) (source.Source, error) { return &idleSource{hist: hist}, nil },
		RetryDelay: 10 * time.Millisecond,
		GraceDelay: 50 * time.Millisecond,
	})
	defer dist.Shutdown()

	cfg := testConfig("p1")
	in := NewInstance(cfg, dist, nil)
	if err := in.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if n := dist.SubscriberCount(cfg.Key()); n != 1 {
		t.Fatalf("expected 1 subscriber after start, got %d", n)
	}

	// Same malformed-update fault as above, injected at the processing
	// boundary since the distributor never produces one itself.
	in.handle(model.Update{Key: cfg.Key(), Type: model.UpdateFull})

	waitForState(t, in, StateError)
	if n := dist.SubscriberCount(cfg.Key()); n != 0 {
		t.Fatalf("expected subscription released after fault, got %d", n)
	}

	// The restart must register the same subscriber id again.
	if err := in.Start(context.Background()); err != nil {
		t.Fatalf("restart after fault against distributor: %v", err)
	}
	if in.State() != StateRunning {
		t.Fatalf("expected running after restart, got %s", in.State())
	}
	if n := dist.SubscriberCount(cfg.Key()); n != 1 {
		t.Fatalf("expected 1 subscriber after restart, got %d", n)
	}
	in.Stop()
}

func TestInstance_WarmupFromSnapshot(t *testing.T) {
	// 5-period SMA warmed entirely from the cached snapshot: the very
	// first live candle can already fire.
	cfg := testConfig("s1")
	cfg.Indicators = []model.IndicatorConfig{
		{ID: "sma_5", Type: "sma", Params: map[string]int{"period": 5}},
	}
	cfg.Signals[0].Conditions[0].Indicator = "sma_5"

	hist := make([]model.Candle, 5)
	for i := range hist {
		hist[i] = finalCandle(int64(1000+i*1000), 100)
	}
	dist := newFakeDist(hist...)
	emitted := make(chan model.Signal, 16)
	in := NewInstance(cfg, dist, func(s model.Signal) { emitted <- s })

	if err := in.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer in.Stop()

	dist.updates <- fullUpdate(finalCandle(9000, 101))
	select {
	case <-emitted:
	case <-time.After(2 * time.Second):
		t.Fatal("expected signal on first live candle after warmup")
	}
}

func TestInstance_StopUnsubscribes(t *testing.T) {
	dist := newFakeDist()
	in := NewInstance(testConfig("s1"), dist, nil)

	if err := in.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := in.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if dist.unsubscribed() != 1 {
		t.Errorf("expected 1 unsubscribe, got %d", dist.unsubscribed())
	}
}

func TestPositionTracker(t *testing.T) {
	var p positionTracker

	entryLong := model.Signal{Type: model.SignalEntry, Side: model.SideLong}
	entryShort := model.Signal{Type: model.SignalEntry, Side: model.SideShort}
	exitLong := model.Signal{Type: model.SignalExit, Side: model.SideLong}
	exitShort := model.Signal{Type: model.SignalExit, Side: model.SideShort}

	// Exit while flat never publishes.
	if p.accept(exitLong) {
		t.Error("exit accepted while flat")
	}
	if !p.accept(entryLong) {
		t.Error("first long entry rejected")
	}
	if p.accept(entryLong) {
		t.Error("repeated long entry accepted")
	}
	// Opposite-side exit does not close a long.
	if p.accept(exitShort) {
		t.Error("short exit accepted against a long position")
	}
	// Reversal entry is a position change, not a repeat.
	if !p.accept(entryShort) {
		t.Error("reversal entry rejected")
	}
	if !p.accept(exitShort) {
		t.Error("matching exit rejected")
	}
	// Flat again: the same entry is acceptable anew.
	if !p.accept(entryLong) {
		t.Error("re-entry after exit rejected")
	}

	p.reset()
	if p.accept(exitLong) {
		t.Error("exit accepted after reset")
	}
}
