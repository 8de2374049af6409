package indicator

import (
	"math"

	"signal-systemv1/internal/model"
)

// Bollinger computes Bollinger Bands: an SMA middle band with upper/lower
// bands k standard deviations away, recomputed over the trailing window.
// Outputs are addressed as id_upper / id_middle / id_lower; Value() returns
// the middle band.
type Bollinger struct {
	id     string
	period int
	k      float64
	win    window
}

// NewBollinger creates Bollinger Bands with the given period and multiplier
// (k <= 0 defaults to 2).
func NewBollinger(id string, period int, k float64) *Bollinger {
	if k <= 0 {
		k = 2
	}
	return &Bollinger{id: id, period: period, k: k, win: newWindow(period)}
}

func (b *Bollinger) ID() string { return b.id }

func (b *Bollinger) Update(candle model.Candle) {
	b.win.push(candle.Close)
}

func (b *Bollinger) bands() (upper, middle, lower float64, ok bool) {
	if !b.win.full() {
		return 0, 0, 0, false
	}
	vals := b.win.values()
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(b.period)

	variance := 0.0
	for _, v := range vals {
		d := v - mean
		variance += d * d
	}
	sd := math.Sqrt(variance / float64(b.period))
	return mean + b.k*sd, mean, mean - b.k*sd, true
}

func (b *Bollinger) Value() (float64, bool) {
	_, mid, _, ok := b.bands()
	return mid, ok
}

func (b *Bollinger) Outputs() map[string]float64 {
	up, mid, lo, ok := b.bands()
	if !ok {
		return nil
	}
	return map[string]float64{
		b.id + "_upper":  up,
		b.id + "_middle": mid,
		b.id + "_lower":  lo,
	}
}

func (b *Bollinger) Reset() { b.win.reset() }
