package indicator

import "signal-systemv1/internal/model"

// Momentum reports the rate of change of close over the trailing period,
// as a percentage: 100 * (close - close[n]) / close[n].
type Momentum struct {
	id     string
	period int
	win    window
}

// NewMomentum creates a momentum (ROC) indicator with the given period.
func NewMomentum(id string, period int) *Momentum {
	// period+1 samples so the oldest is exactly period bars back
	return &Momentum{id: id, period: period, win: newWindow(period + 1)}
}

func (m *Momentum) ID() string { return m.id }

func (m *Momentum) Update(candle model.Candle) {
	m.win.push(candle.Close)
}

func (m *Momentum) Value() (float64, bool) {
	if !m.win.full() {
		return 0, false
	}
	vals := m.win.values()
	oldest := vals[0]
	if oldest == 0 {
		return 0, false
	}
	return 100 * (vals[len(vals)-1] - oldest) / oldest, true
}

func (m *Momentum) Outputs() map[string]float64 {
	v, ok := m.Value()
	if !ok {
		return nil
	}
	return map[string]float64{m.id: v}
}

func (m *Momentum) Reset() { m.win.reset() }
