package indicator

import "signal-systemv1/internal/model"

// SMA calculates the Simple Moving Average of closes over a rolling window.
// The average is recomputed over the full window on every update so the
// value is always exact for the trailing period.
type SMA struct {
	id     string
	period int
	win    window
}

// NewSMA creates an SMA indicator with the given period.
func NewSMA(id string, period int) *SMA {
	return &SMA{id: id, period: period, win: newWindow(period)}
}

func (s *SMA) ID() string { return s.id }

func (s *SMA) Update(candle model.Candle) {
	s.win.push(candle.Close)
}

func (s *SMA) Value() (float64, bool) {
	if !s.win.full() {
		return 0, false
	}
	sum := 0.0
	for _, v := range s.win.values() {
		sum += v
	}
	return sum / float64(s.period), true
}

func (s *SMA) Outputs() map[string]float64 {
	v, ok := s.Value()
	if !ok {
		return nil
	}
	return map[string]float64{s.id: v}
}

func (s *SMA) Reset() { s.win.reset() }
