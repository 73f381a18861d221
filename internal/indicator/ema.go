package indicator

import (
	"github.com/moznion/go-optional"
	"github.com/trade-manager/trade-engine/internal/types"
)

// EMA implements an exponential moving average over closing prices. The
// first value is seeded with an SMA of the warm-up window.
type EMA struct {
	period int
	seed   []float64
	// prev is the EMA before the most recent Append, kept so Update can
	// recompute the latest value when a late tick changes the close.
	prev    optional.Option[float64]
	current optional.Option[float64]
}

// NewEMA creates a new EMA indicator with default configuration.
func NewEMA() Indicator {
	return &EMA{
		period:  20, // Default period
		seed:    nil,
		prev:    optional.None[float64](),
		current: optional.None[float64](),
	}
}

// Name returns the name of the indicator.
func (e *EMA) Name() IndicatorType {
	return IndicatorTypeEMA
}

// Config configures the EMA indicator. Expected parameters: period (int).
func (e *EMA) Config(params ...any) error {
	period, err := singleIntParam(params)
	if err != nil {
		return err
	}

	e.period = period

	return nil
}

// Append implements Indicator.
func (e *EMA) Append(bar types.Bar) optional.Option[float64] {
	e.prev = e.current

	if e.current.IsNone() {
		e.seed = append(e.seed, bar.Close)
		if len(e.seed) < e.period {
			return optional.None[float64]()
		}

		e.current = optional.Some(mean(e.seed))

		return e.current
	}

	alpha := 2.0 / (float64(e.period) + 1.0)
	e.current = optional.Some(bar.Close*alpha + e.current.Unwrap()*(1.0-alpha))

	return e.current
}

// Update implements Indicator.
func (e *EMA) Update(bar types.Bar) optional.Option[float64] {
	if e.prev.IsNone() {
		// Still inside or just past the seed window: replace the last seed
		// close and recompute.
		if len(e.seed) > 0 {
			e.seed[len(e.seed)-1] = bar.Close
		}

		if len(e.seed) < e.period {
			return optional.None[float64]()
		}

		e.current = optional.Some(mean(e.seed))

		return e.current
	}

	alpha := 2.0 / (float64(e.period) + 1.0)
	e.current = optional.Some(bar.Close*alpha + e.prev.Unwrap()*(1.0-alpha))

	return e.current
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}
