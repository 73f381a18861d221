// Package indicator provides incremental technical indicators that feed the
// derived series of a strategy dataset. Each indicator consumes bars one at
// a time and yields a value once enough history has accumulated.
package indicator

import (
	"github.com/moznion/go-optional"
	"github.com/trade-manager/trade-engine/internal/types"
)

// IndicatorType identifies an indicator implementation.
type IndicatorType string

const (
	IndicatorTypeSMA  IndicatorType = "SMA"
	IndicatorTypeEMA  IndicatorType = "EMA"
	IndicatorTypeATR  IndicatorType = "ATR"
	IndicatorTypeVWAP IndicatorType = "VWAP"
)

// Indicator is an incremental calculation over a bar stream. Append consumes
// a bar for a new period; Update replaces the most recent bar when a late
// tick merges into an existing period. Both return None until the indicator
// has warmed up.
type Indicator interface {
	// Name returns the name of the indicator.
	Name() IndicatorType
	// Config configures the indicator before any bar is consumed.
	Config(params ...any) error
	// Append consumes the bar of a brand-new period.
	Append(bar types.Bar) optional.Option[float64]
	// Update replaces the bar most recently passed to Append.
	Update(bar types.Bar) optional.Option[float64]
}

// Value is one computed indicator data point, keyed by bar period.
type Value struct {
	Period types.Period
	Value  float64
}
