package indicator

import (
	"github.com/moznion/go-optional"
	"github.com/trade-manager/trade-engine/internal/types"
	"github.com/trade-manager/trade-engine/pkg/errors"
)

// SMA implements a simple moving average over closing prices.
type SMA struct {
	period int
	closes []float64
}

// NewSMA creates a new SMA indicator with default configuration.
func NewSMA() Indicator {
	return &SMA{
		period: 20, // Default period
		closes: nil,
	}
}

// Name returns the name of the indicator.
func (s *SMA) Name() IndicatorType {
	return IndicatorTypeSMA
}

// Config configures the SMA indicator. Expected parameters: period (int).
func (s *SMA) Config(params ...any) error {
	period, err := singleIntParam(params)
	if err != nil {
		return err
	}

	s.period = period

	return nil
}

// Append implements Indicator.
func (s *SMA) Append(bar types.Bar) optional.Option[float64] {
	s.closes = append(s.closes, bar.Close)
	if len(s.closes) > s.period {
		s.closes = s.closes[1:]
	}

	return s.value()
}

// Update implements Indicator.
func (s *SMA) Update(bar types.Bar) optional.Option[float64] {
	if len(s.closes) == 0 {
		return s.Append(bar)
	}

	s.closes[len(s.closes)-1] = bar.Close

	return s.value()
}

func (s *SMA) value() optional.Option[float64] {
	if len(s.closes) < s.period {
		return optional.None[float64]()
	}

	sum := 0.0
	for _, c := range s.closes {
		sum += c
	}

	return optional.Some(sum / float64(len(s.closes)))
}

func singleIntParam(params []any) (int, error) {
	if len(params) != 1 {
		return 0, errors.New(errors.ErrCodeMissingParameter, "Config expects 1 parameter: period (int)")
	}

	period, ok := params[0].(int)
	if !ok {
		return 0, errors.New(errors.ErrCodeInvalidParameter, "invalid type for period parameter, expected int")
	}

	if period <= 0 {
		return 0, errors.Newf(errors.ErrCodeInvalidParameter, "period must be a positive integer, got %d", period)
	}

	return period, nil
}
