package indicator

import "signal-systemv1/internal/model"

// EMA calculates the Exponential Moving Average, seeded with an SMA over the
// first period samples. State is O(1) regardless of period.
type EMA struct {
	id         string
	period     int
	multiplier float64
	current    float64
	count      int
	sum        float64
}

// NewEMA creates an EMA indicator with the given period.
func NewEMA(id string, period int) *EMA {
	return &EMA{id: id, period: period, multiplier: 2.0 / float64(period+1)}
}

func (e *EMA) ID() string { return e.id }

func (e *EMA) Update(candle model.Candle) {
	e.update(candle.Close)
}

// update feeds a raw value; shared with MACD which chains EMAs.
func (e *EMA) update(price float64) {
	e.count++
	if e.count <= e.period {
		e.sum += price
		if e.count == e.period {
			e.current = e.sum / float64(e.period)
		}
		return
	}
	e.current = (price * e.multiplier) + (e.current * (1 - e.multiplier))
}

func (e *EMA) Value() (float64, bool) {
	if e.count < e.period {
		return 0, false
	}
	return e.current, true
}

func (e *EMA) Outputs() map[string]float64 {
	v, ok := e.Value()
	if !ok {
		return nil
	}
	return map[string]float64{e.id: v}
}

func (e *EMA) Reset() {
	e.current = 0
	e.count = 0
	e.sum = 0
}
