// Package strategy runs configured strategies: each Instance is a lifecycle
// state machine owning its indicator engine, rule evaluator and recent
// signal history, consuming candles from the shared distributor.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"signal-systemv1/internal/indicator"
	"signal-systemv1/internal/model"
	"signal-systemv1/internal/signal"
)

// State is a strategy instance lifecycle state.
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
	StatePaused  State = "paused"
	StateError   State = "error"
)

var (
	// ErrAlreadyRunning rejects start() on a running instance.
	ErrAlreadyRunning = errors.New("strategy already running")
	// ErrInvalidTransition rejects a control action not permitted from the
	// current state.
	ErrInvalidTransition = errors.New("invalid state transition")
)

const (
	// warmupCandles is how many cached candles are replayed through the
	// indicator engine on start, before live ticks.
	warmupCandles = 100

	signalHistoryCap = 100
)

// Distributor is the market-data dependency of an instance.
type Distributor interface {
	Subscribe(ctx context.Context, key model.SubscriptionKey, subscriberID string) ([]model.Candle, <-chan model.Update, error)
	Unsubscribe(key model.SubscriptionKey, subscriberID string)
}

// Instance is one running strategy. All control methods are safe for
// concurrent use; candle processing happens on the instance's own goroutine.
type Instance struct {
	cfg  model.StrategyConfig
	dist Distributor

	// onSignal receives every re-published signal (position-deduplicated).
	onSignal func(model.Signal)

	mu       sync.Mutex
	state    State
	lastErr  error
	engine   *indicator.Engine
	eval     *signal.Evaluator
	position positionTracker
	signals  *signalRing
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewInstance creates a stopped instance for a validated config.
func NewInstance(cfg model.StrategyConfig, dist Distributor, onSignal func(model.Signal)) *Instance {
	return &Instance{
		cfg:      cfg,
		dist:     dist,
		onSignal: onSignal,
		state:    StateStopped,
		signals:  newSignalRing(signalHistoryCap),
	}
}

// ID returns the strategy id.
func (in *Instance) ID() string { return in.cfg.ID }

// Config returns the instance's configuration.
func (in *Instance) Config() model.StrategyConfig { return in.cfg }

// State returns the current lifecycle state.
func (in *Instance) State() State {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.state
}

// LastError returns the fault that moved the instance to the error state.
func (in *Instance) LastError() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.lastErr
}

// Signals returns the recent signal history, oldest first.
func (in *Instance) Signals() []model.Signal { return in.signals.snapshot() }

// Start moves stopped (or faulted) → running: builds fresh indicator and
// evaluator state, subscribes to the distributor, warms indicators up on the
// cached tail, and begins consuming live updates.
func (in *Instance) Start(ctx context.Context) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	switch in.state {
	case StateRunning, StatePaused:
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, in.cfg.ID)
	case StateStopped, StateError:
	default:
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, in.state)
	}

	engine, err := indicator.NewEngine(in.cfg.Indicators)
	if err != nil {
		return err
	}

	snapshot, updates, err := in.dist.Subscribe(ctx, in.cfg.Key(), in.subscriberID())
	if err != nil {
		return fmt.Errorf("strategy %s: subscribe: %w", in.cfg.ID, err)
	}

	// Warm up on the cached tail so indicators aren't blank at the first
	// live tick.
	if n := len(snapshot); n > warmupCandles {
		snapshot = snapshot[n-warmupCandles:]
	}
	engine.Warmup(snapshot)

	in.engine = engine
	in.eval = signal.NewEvaluator(in.cfg.ID, in.cfg.Signals)
	in.position.reset()
	in.lastErr = nil
	in.state = StateRunning

	runCtx, cancel := context.WithCancel(context.Background())
	in.cancel = cancel
	done := make(chan struct{})
	in.done = done
	go in.run(runCtx, updates, done)

	log.Printf("[strategy] %s started (%d indicators, %d rules, warmup=%d)",
		in.cfg.ID, engine.Size(), len(in.cfg.Signals), len(snapshot))
	return nil
}

// Pause moves running → paused. Candles keep arriving but are ignored.
func (in *Instance) Pause() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.state != StateRunning {
		return fmt.Errorf("%w: pause from %s", ErrInvalidTransition, in.state)
	}
	in.state = StatePaused
	return nil
}

// Resume moves paused → running.
func (in *Instance) Resume() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.state != StatePaused {
		return fmt.Errorf("%w: resume from %s", ErrInvalidTransition, in.state)
	}
	in.state = StateRunning
	return nil
}

// Stop moves any non-stopped state → stopped, unsubscribes and discards all
// indicator and evaluator state.
func (in *Instance) Stop() error {
	in.mu.Lock()
	if in.state == StateStopped {
		in.mu.Unlock()
		return fmt.Errorf("%w: stop from stopped", ErrInvalidTransition)
	}
	cancel := in.cancel
	done := in.done
	in.cancel = nil
	in.done = nil
	in.state = StateStopped
	in.mu.Unlock()

	in.dist.Unsubscribe(in.cfg.Key(), in.subscriberID())
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done // processing goroutine drained before state is discarded
	}

	in.mu.Lock()
	if in.engine != nil {
		in.engine.Reset()
	}
	if in.eval != nil {
		in.eval.Reset()
	}
	in.mu.Unlock()

	log.Printf("[strategy] %s stopped", in.cfg.ID)
	return nil
}

func (in *Instance) subscriberID() string { return "strategy:" + in.cfg.ID }

// run consumes distributor updates until cancelled or faulted.
func (in *Instance) run(ctx context.Context, updates <-chan model.Update, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			if !in.handle(upd) {
				return // faulted; consumption halts until an explicit Start
			}
		}
	}
}

// handle processes one update, isolating any panic to this instance as an
// InstanceFault. Returns false when the instance entered the error state.
func (in *Instance) handle(upd model.Update) (alive bool) {
	defer func() {
		if r := recover(); r != nil {
			in.mu.Lock()
			cancel := in.cancel
			in.cancel = nil
			in.mu.Unlock()
			// Release the subscription before exposing the error state so
			// a restart never races a still-registered subscriber id. The
			// stale channel would otherwise keep the adapter alive with no
			// live consumer.
			in.dist.Unsubscribe(in.cfg.Key(), in.subscriberID())
			if cancel != nil {
				cancel()
			}
			in.mu.Lock()
			in.state = StateError
			in.lastErr = fmt.Errorf("instance fault: %v", r)
			in.mu.Unlock()
			log.Printf("[strategy] %s: fault while processing candle: %v", in.cfg.ID, r)
			alive = false
		}
	}()

	// Indicators consume settled bars only; forming mutations of the same
	// bar would double-count inside the rolling windows.
	last := upd.Last()
	if !last.Final {
		return true
	}
	in.processCandle(last)
	return true
}

// processCandle is a no-op unless running. Otherwise it advances every
// indicator, evaluates the rules, and re-publishes surviving signals.
func (in *Instance) processCandle(c model.Candle) {
	in.mu.Lock()
	if in.state != StateRunning {
		in.mu.Unlock()
		return
	}
	engine, eval := in.engine, in.eval
	in.mu.Unlock()

	snap := engine.Update(c)
	fired := eval.Evaluate(c, snap)
	for _, sig := range fired {
		in.mu.Lock()
		ok := in.position.accept(sig)
		in.mu.Unlock()
		if !ok {
			continue // repeats the current logical position
		}
		in.signals.push(sig)
		if in.onSignal != nil {
			in.onSignal(sig)
		}
	}
}
