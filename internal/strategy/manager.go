package strategy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"signal-systemv1/internal/model"
)

// ErrUnknownStrategy rejects control actions on strategies that were never
// loaded.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Status is a summary of one managed instance.
type Status struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	State     State  `json:"state"`
	Signals   int    `json:"signals"`
	LastError string `json:"last_error,omitempty"`
}

// Manager owns a keyed collection of strategy instances with explicit
// lifecycle. Constructed once per process and passed by reference; there is
// no ambient global registry. Instances fail independently: one instance's
// error state never affects another or the distributor.
type Manager struct {
	dist     Distributor
	onSignal func(model.Signal)

	mu        sync.RWMutex
	instances map[string]*Instance
}

// NewManager creates an empty manager. onSignal (optional) receives every
// re-published signal from every instance.
func NewManager(dist Distributor, onSignal func(model.Signal)) *Manager {
	return &Manager{
		dist:      dist,
		onSignal:  onSignal,
		instances: make(map[string]*Instance),
	}
}

// Load validates a configuration and registers a stopped instance for it.
// Malformed configuration is rejected outright; a duplicate id replaces the
// previous instance only if that instance is stopped.
func (m *Manager) Load(cfg model.StrategyConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.instances[cfg.ID]; ok {
		if st := prev.State(); st != StateStopped && st != StateError {
			return fmt.Errorf("strategy %s: cannot replace while %s", cfg.ID, st)
		}
	}
	m.instances[cfg.ID] = NewInstance(cfg, m.dist, m.onSignal)
	log.Printf("[manager] loaded strategy %s (%s %s %s)", cfg.ID, cfg.Name, cfg.Symbol, cfg.Timeframe)
	return nil
}

// Get returns the instance for an id.
func (m *Manager) Get(id string) (*Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	in, ok := m.instances[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, id)
	}
	return in, nil
}

// Start starts the identified strategy.
func (m *Manager) Start(ctx context.Context, id string) error {
	in, err := m.Get(id)
	if err != nil {
		return err
	}
	return in.Start(ctx)
}

// Stop stops the identified strategy.
func (m *Manager) Stop(id string) error {
	in, err := m.Get(id)
	if err != nil {
		return err
	}
	return in.Stop()
}

// Pause pauses the identified strategy.
func (m *Manager) Pause(id string) error {
	in, err := m.Get(id)
	if err != nil {
		return err
	}
	return in.Pause()
}

// Resume resumes the identified strategy.
func (m *Manager) Resume(id string) error {
	in, err := m.Get(id)
	if err != nil {
		return err
	}
	return in.Resume()
}

// List returns status summaries for all loaded strategies, ordered by id.
func (m *Manager) List() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Status, 0, len(m.instances))
	for _, in := range m.instances {
		cfg := in.Config()
		s := Status{
			ID:        cfg.ID,
			Name:      cfg.Name,
			Symbol:    cfg.Symbol,
			Timeframe: cfg.Timeframe,
			State:     in.State(),
			Signals:   in.signals.len(),
		}
		if err := in.LastError(); err != nil {
			s.LastError = err.Error()
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Shutdown stops every non-stopped instance.
func (m *Manager) Shutdown() {
	m.mu.RLock()
	instances := make([]*Instance, 0, len(m.instances))
	for _, in := range m.instances {
		instances = append(instances, in)
	}
	m.mu.RUnlock()

	for _, in := range instances {
		if in.State() != StateStopped {
			if err := in.Stop(); err != nil {
				log.Printf("[manager] shutdown: stop %s: %v", in.ID(), err)
			}
		}
	}
}
