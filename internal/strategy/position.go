package strategy

import "signal-systemv1/internal/model"

// positionTracker keeps the strategy's logical position and suppresses
// signals that would repeat it (a second long entry while already long, an
// exit while flat). This suppression lives here, not in the rule evaluator.
type positionTracker struct {
	side model.Side // "" when flat
}

// accept applies the signal to the tracked position. Returns false when the
// signal repeats the current logical position and must not be re-published.
func (p *positionTracker) accept(s model.Signal) bool {
	switch s.Type {
	case model.SignalEntry:
		if p.side == s.Side {
			return false
		}
		p.side = s.Side
		return true
	case model.SignalExit:
		if p.side == "" || p.side != s.Side {
			return false
		}
		p.side = ""
		return true
	}
	return false
}

func (p *positionTracker) reset() { p.side = "" }
