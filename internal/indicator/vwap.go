package indicator

import (
	"github.com/moznion/go-optional"
	"github.com/trade-manager/trade-engine/internal/types"
)

// VWAP implements a cumulative session volume-weighted average price. The
// accumulation resets whenever a bar from a new calendar day arrives.
type VWAP struct {
	cumPV      float64
	cumVol     float64
	lastPV     float64
	lastVol    float64
	sessionDay string
}

// NewVWAP creates a new VWAP indicator.
func NewVWAP() Indicator {
	return &VWAP{}
}

// Name returns the name of the indicator.
func (v *VWAP) Name() IndicatorType {
	return IndicatorTypeVWAP
}

// Config configures the VWAP indicator. VWAP takes no parameters.
func (v *VWAP) Config(params ...any) error {
	return nil
}

// Append implements Indicator.
func (v *VWAP) Append(bar types.Bar) optional.Option[float64] {
	day := bar.Period.Start.Format("2006-01-02")
	if day != v.sessionDay {
		v.cumPV = 0
		v.cumVol = 0
		v.sessionDay = day
	}

	v.lastPV = typicalPrice(bar) * bar.Volume
	v.lastVol = bar.Volume
	v.cumPV += v.lastPV
	v.cumVol += v.lastVol

	return v.value()
}

// Update implements Indicator.
func (v *VWAP) Update(bar types.Bar) optional.Option[float64] {
	// Back out the contribution of the bar being replaced.
	v.cumPV -= v.lastPV
	v.cumVol -= v.lastVol

	v.lastPV = typicalPrice(bar) * bar.Volume
	v.lastVol = bar.Volume
	v.cumPV += v.lastPV
	v.cumVol += v.lastVol

	return v.value()
}

func (v *VWAP) value() optional.Option[float64] {
	if v.cumVol <= 0 {
		return optional.None[float64]()
	}

	return optional.Some(v.cumPV / v.cumVol)
}

func typicalPrice(bar types.Bar) float64 {
	return (bar.High + bar.Low + bar.Close) / 3.0
}
