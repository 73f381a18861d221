package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/trade-manager/trade-engine/pkg/errors"
)

// RiskConfig bounds position sizing for one account. It may be replaced
// between trades but is snapshot-read at sizing time, never mutated
// mid-calculation.
type RiskConfig struct {
	// FixedRisk is the dollar amount risked per trade.
	FixedRisk float64 `yaml:"fixed_risk" json:"fixed_risk" validate:"required,gt=0"`
	// MaxMarginPct caps quantity so that quantity*entry <= margin*MaxMarginPct.
	// Zero disables the cap.
	MaxMarginPct float64 `yaml:"max_margin_pct" json:"max_margin_pct" validate:"gte=0,lte=1"`
	// LotSize is the rounding unit for order quantities, e.g. 100.
	LotSize float64 `yaml:"lot_size" json:"lot_size" validate:"required,gt=0"`
}

// Validate validates the RiskConfig struct.
func (r *RiskConfig) Validate() error {
	validate := validator.New()
	if err := validate.Struct(r); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid risk config", err)
	}

	return nil
}

// Tradestrategy binds one instrument, one trading day and one strategy
// configuration. It is the unit a strategy engine instance manages.
type Tradestrategy struct {
	ID     string `yaml:"id" json:"id" validate:"required"`
	Symbol string `yaml:"symbol" json:"symbol" validate:"required"`
	// TradingDay is the calendar day this strategy is assigned to. Bars from
	// other days are ignored by the engine. It is a date label, not an
	// instant: only the year, month and day are meaningful, read in the
	// value's own location, so midnight parsed from "2006-01-02" in any
	// timezone names the same day.
	TradingDay time.Time `yaml:"trading_day" json:"trading_day" validate:"required"`
	// CutoffTime is a time of day on the trading day after which the engine
	// self-cancels. Zero means no cutoff.
	CutoffTime time.Duration `yaml:"cutoff_time" json:"cutoff_time"`
	// RuleName selects the registered strategy rule implementation.
	RuleName string `yaml:"rule_name" json:"rule_name" validate:"required"`
	// RuleVersion constrains the rule artifact version, semver.
	RuleVersion string     `yaml:"rule_version" json:"rule_version"`
	Risk        RiskConfig `yaml:"risk" json:"risk"`
	// BarDuration is the period width of the bars this strategy observes.
	BarDuration time.Duration `yaml:"bar_duration" json:"bar_duration" validate:"required"`
}

// Validate validates the Tradestrategy struct.
func (t *Tradestrategy) Validate() error {
	validate := validator.New()
	if err := validate.Struct(t); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid tradestrategy", err)
	}

	return t.Risk.Validate()
}
