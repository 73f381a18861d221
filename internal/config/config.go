// Package config loads the engine's YAML configuration. Configuration is
// read once at startup and treated as immutable afterwards; components
// receive the structs they need by value.
package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/trade-manager/trade-engine/internal/clock"
	"github.com/trade-manager/trade-engine/internal/types"
	"github.com/trade-manager/trade-engine/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Duration decodes YAML strings like "5m" or "1h30m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return errors.Wrap(errors.ErrCodeStaleConfig, "duration must be a string", err)
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeStaleConfig, err, "invalid duration %q", raw)
	}

	*d = Duration(parsed)

	return nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// DataConfig points at the historical market data file.
type DataConfig struct {
	// Path is a Parquet or CSV file with time/symbol/OHLCV columns.
	Path string `yaml:"path" validate:"required"`
	// BarDuration is the period width of the rows in the file.
	BarDuration Duration `yaml:"bar_duration" validate:"required"`
}

// StoreConfig points at the order/bar persistence database.
type StoreConfig struct {
	// Path is the DuckDB database file; ":memory:" keeps state in-process.
	Path string `yaml:"path" validate:"required"`
}

// TradestrategyConfig declares one strategy to run.
type TradestrategyConfig struct {
	ID          string           `yaml:"id" validate:"required"`
	Symbol      string           `yaml:"symbol" validate:"required"`
	TradingDay  string           `yaml:"trading_day" validate:"required"`
	CutoffTime  string           `yaml:"cutoff_time"`
	RuleName    string           `yaml:"rule_name" validate:"required"`
	RuleVersion string           `yaml:"rule_version"`
	Risk        types.RiskConfig `yaml:"risk" validate:"required"`
	BarDuration Duration         `yaml:"bar_duration" validate:"required"`
}

// Config is the full engine configuration.
type Config struct {
	Calendar        clock.CalendarConfig  `yaml:"calendar" validate:"required"`
	Data            DataConfig            `yaml:"data" validate:"required"`
	Store           StoreConfig           `yaml:"store" validate:"required"`
	Tradestrategies []TradestrategyConfig `yaml:"tradestrategies" validate:"required,min=1,dive"`
	// Rules maps rule names to their JSON parameter documents.
	Rules map[string]string `yaml:"rules"`
	// MaxBars bounds each strategy's in-memory bar series; 0 is unbounded.
	MaxBars int `yaml:"max_bars"`
}

// Load reads and validates the configuration file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeStaleConfig, err, "cannot read config file %s", path)
	}

	return Parse(raw)
}

// Parse decodes and validates a YAML configuration document.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStaleConfig, "cannot parse config", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStaleConfig, "invalid config", err)
	}

	for _, ts := range cfg.Tradestrategies {
		if _, err := ts.Tradestrategy(); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

// Tradestrategy converts the YAML declaration into the domain type.
func (t TradestrategyConfig) Tradestrategy() (types.Tradestrategy, error) {
	tradingDay, err := time.Parse("2006-01-02", t.TradingDay)
	if err != nil {
		return types.Tradestrategy{}, errors.Wrapf(errors.ErrCodeStaleConfig, err,
			"tradestrategy %s has invalid trading day %q", t.ID, t.TradingDay)
	}

	var cutoff time.Duration

	if t.CutoffTime != "" {
		parsed, err := time.Parse("15:04", t.CutoffTime)
		if err != nil {
			return types.Tradestrategy{}, errors.Wrapf(errors.ErrCodeStaleConfig, err,
				"tradestrategy %s has invalid cutoff time %q", t.ID, t.CutoffTime)
		}

		cutoff = time.Duration(parsed.Hour())*time.Hour + time.Duration(parsed.Minute())*time.Minute
	}

	tradestrategy := types.Tradestrategy{
		ID:          t.ID,
		Symbol:      t.Symbol,
		TradingDay:  tradingDay,
		CutoffTime:  cutoff,
		RuleName:    t.RuleName,
		RuleVersion: t.RuleVersion,
		Risk:        t.Risk,
		BarDuration: t.BarDuration.Std(),
	}

	if err := tradestrategy.Validate(); err != nil {
		return types.Tradestrategy{}, err
	}

	return tradestrategy, nil
}
