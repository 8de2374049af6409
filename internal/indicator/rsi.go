package indicator

import "signal-systemv1/internal/model"

// RSI calculates the Relative Strength Index using Wilder's smoothing.
type RSI struct {
	id        string
	period    int
	count     int
	prevClose float64
	avgGain   float64
	avgLoss   float64
}

// NewRSI creates an RSI indicator with the given period (typically 14).
func NewRSI(id string, period int) *RSI {
	return &RSI{id: id, period: period}
}

func (r *RSI) ID() string { return r.id }

func (r *RSI) Update(candle model.Candle) {
	price := candle.Close
	r.count++
	if r.count == 1 {
		r.prevClose = price
		return
	}

	change := price - r.prevClose
	r.prevClose = price

	// First period changes build the seed averages; afterwards Wilder's
	// smoothing carries them forward.
	if r.count <= r.period+1 {
		if change > 0 {
			r.avgGain += change
		} else {
			r.avgLoss -= change
		}
		if r.count == r.period+1 {
			r.avgGain /= float64(r.period)
			r.avgLoss /= float64(r.period)
		}
		return
	}

	n := float64(r.period)
	if change > 0 {
		r.avgGain = (r.avgGain*(n-1) + change) / n
		r.avgLoss = (r.avgLoss * (n - 1)) / n
	} else {
		r.avgGain = (r.avgGain * (n - 1)) / n
		r.avgLoss = (r.avgLoss*(n-1) - change) / n
	}
}

func (r *RSI) Value() (float64, bool) {
	if r.count < r.period+1 {
		return 0, false
	}
	if r.avgLoss == 0 {
		return 100, true
	}
	rs := r.avgGain / r.avgLoss
	return 100 - (100 / (1 + rs)), true
}

func (r *RSI) Outputs() map[string]float64 {
	v, ok := r.Value()
	if !ok {
		return nil
	}
	return map[string]float64{r.id: v}
}

func (r *RSI) Reset() {
	r.count = 0
	r.prevClose = 0
	r.avgGain = 0
	r.avgLoss = 0
}
