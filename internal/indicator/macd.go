package indicator

import "signal-systemv1/internal/model"

// MACD computes Moving Average Convergence Divergence: the fast/slow EMA
// difference, an EMA signal line over it, and their histogram. Outputs are
// addressed as id / id_signal / id_hist; Value() returns the MACD line.
type MACD struct {
	id     string
	fast   *EMA
	slow   *EMA
	signal *EMA
}

// NewMACD creates a MACD indicator. Zero periods default to 12/26/9.
func NewMACD(id string, fastP, slowP, signalP int) *MACD {
	if fastP <= 0 {
		fastP = 12
	}
	if slowP <= 0 {
		slowP = 26
	}
	if signalP <= 0 {
		signalP = 9
	}
	return &MACD{
		id:     id,
		fast:   NewEMA(id+"_fast", fastP),
		slow:   NewEMA(id+"_slow", slowP),
		signal: NewEMA(id+"_sigema", signalP),
	}
}

func (m *MACD) ID() string { return m.id }

func (m *MACD) Update(candle model.Candle) {
	m.fast.Update(candle)
	m.slow.Update(candle)
	fv, fok := m.fast.Value()
	sv, sok := m.slow.Value()
	if fok && sok {
		m.signal.update(fv - sv)
	}
}

func (m *MACD) Value() (float64, bool) {
	fv, fok := m.fast.Value()
	sv, sok := m.slow.Value()
	if !fok || !sok {
		return 0, false
	}
	return fv - sv, true
}

func (m *MACD) Outputs() map[string]float64 {
	line, ok := m.Value()
	if !ok {
		return nil
	}
	sig, sok := m.signal.Value()
	if !sok {
		// MACD line ready but signal EMA still warming up
		return map[string]float64{m.id: line}
	}
	return map[string]float64{
		m.id:             line,
		m.id + "_signal": sig,
		m.id + "_hist":   line - sig,
	}
}

func (m *MACD) Reset() {
	m.fast.Reset()
	m.slow.Reset()
	m.signal.Reset()
}
