package indicator

import (
	"math"

	"github.com/moznion/go-optional"
	"github.com/trade-manager/trade-engine/internal/types"
)

// ATR implements the Average True Range over a rolling window.
type ATR struct {
	period int
	trs    []float64
	// prevClose is the close of the last appended bar; beforeClose the one
	// before it, needed to rebuild the latest true range on Update.
	prevClose   optional.Option[float64]
	beforeClose optional.Option[float64]
}

// NewATR creates a new ATR indicator with default configuration.
func NewATR() Indicator {
	return &ATR{
		period:      14, // Default period
		trs:         nil,
		prevClose:   optional.None[float64](),
		beforeClose: optional.None[float64](),
	}
}

// Name returns the name of the indicator.
func (a *ATR) Name() IndicatorType {
	return IndicatorTypeATR
}

// Config configures the ATR indicator. Expected parameters: period (int).
func (a *ATR) Config(params ...any) error {
	period, err := singleIntParam(params)
	if err != nil {
		return err
	}

	a.period = period

	return nil
}

// Append implements Indicator.
func (a *ATR) Append(bar types.Bar) optional.Option[float64] {
	a.trs = append(a.trs, trueRange(bar, a.prevClose))
	if len(a.trs) > a.period {
		a.trs = a.trs[1:]
	}

	a.beforeClose = a.prevClose
	a.prevClose = optional.Some(bar.Close)

	return a.value()
}

// Update implements Indicator.
func (a *ATR) Update(bar types.Bar) optional.Option[float64] {
	if len(a.trs) == 0 {
		return a.Append(bar)
	}

	a.trs[len(a.trs)-1] = trueRange(bar, a.beforeClose)
	a.prevClose = optional.Some(bar.Close)

	return a.value()
}

func (a *ATR) value() optional.Option[float64] {
	if len(a.trs) < a.period {
		return optional.None[float64]()
	}

	return optional.Some(mean(a.trs))
}

func trueRange(bar types.Bar, prevClose optional.Option[float64]) float64 {
	tr := bar.High - bar.Low
	if prevClose.IsSome() {
		tr = math.Max(tr, math.Abs(bar.High-prevClose.Unwrap()))
		tr = math.Max(tr, math.Abs(bar.Low-prevClose.Unwrap()))
	}

	return tr
}
