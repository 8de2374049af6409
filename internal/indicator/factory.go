package indicator

import (
	"fmt"
	"strings"

	"signal-systemv1/internal/model"
)

// Constructor builds an indicator instance from its config.
type Constructor func(cfg model.IndicatorConfig) Indicator

// constructors maps an indicator type tag to its constructor. Populated at
// compile time; no directory scanning or reflection.
var constructors = map[string]Constructor{
	"sma": func(cfg model.IndicatorConfig) Indicator {
		return NewSMA(cfg.ID, cfg.Period(20))
	},
	"ema": func(cfg model.IndicatorConfig) Indicator {
		return NewEMA(cfg.ID, cfg.Period(20))
	},
	"rsi": func(cfg model.IndicatorConfig) Indicator {
		return NewRSI(cfg.ID, cfg.Period(14))
	},
	"momentum": func(cfg model.IndicatorConfig) Indicator {
		return NewMomentum(cfg.ID, cfg.Period(10))
	},
	"atr": func(cfg model.IndicatorConfig) Indicator {
		return NewATR(cfg.ID, cfg.Period(14))
	},
	"macd": func(cfg model.IndicatorConfig) Indicator {
		return NewMACD(cfg.ID, cfg.Params["fast"], cfg.Params["slow"], cfg.Params["signal"])
	},
	"bollinger": func(cfg model.IndicatorConfig) Indicator {
		return NewBollinger(cfg.ID, cfg.Period(20), float64(cfg.Params["stddev"]))
	},
}

// New creates an indicator from config. Unknown types are an error so a
// misconfigured strategy fails at load, not silently at runtime.
func New(cfg model.IndicatorConfig) (Indicator, error) {
	ctor, ok := constructors[strings.ToLower(cfg.Type)]
	if !ok {
		return nil, fmt.Errorf("unknown indicator type %q", cfg.Type)
	}
	return ctor(cfg), nil
}

// KnownType reports whether the type tag has a registered constructor.
func KnownType(typ string) bool {
	_, ok := constructors[strings.ToLower(typ)]
	return ok
}
