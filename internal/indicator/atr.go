package indicator

import (
	"math"

	"signal-systemv1/internal/model"
)

// ATR computes the Average True Range over a trailing window of true-range
// samples. The first candle seeds prevClose, so ATR needs period+1 candles.
type ATR struct {
	id        string
	period    int
	win       window
	prevClose float64
	seeded    bool
}

// NewATR creates an ATR indicator with the given period (typically 14).
func NewATR(id string, period int) *ATR {
	return &ATR{id: id, period: period, win: newWindow(period)}
}

func (a *ATR) ID() string { return a.id }

func (a *ATR) Update(candle model.Candle) {
	if !a.seeded {
		a.prevClose = candle.Close
		a.seeded = true
		return
	}
	tr := candle.High - candle.Low
	tr = math.Max(tr, math.Abs(candle.High-a.prevClose))
	tr = math.Max(tr, math.Abs(candle.Low-a.prevClose))
	a.win.push(tr)
	a.prevClose = candle.Close
}

func (a *ATR) Value() (float64, bool) {
	if !a.win.full() {
		return 0, false
	}
	sum := 0.0
	for _, v := range a.win.values() {
		sum += v
	}
	return sum / float64(a.period), true
}

func (a *ATR) Outputs() map[string]float64 {
	v, ok := a.Value()
	if !ok {
		return nil
	}
	return map[string]float64{a.id: v}
}

func (a *ATR) Reset() {
	a.win.reset()
	a.prevClose = 0
	a.seeded = false
}
