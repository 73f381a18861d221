package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/trade-manager/trade-engine/internal/types"
	"github.com/trade-manager/trade-engine/pkg/errors"
)

type ConfigTestSuite struct {
	suite.Suite
}

func TestConfigTestSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

const validConfig = `
calendar:
  timezone: America/New_York
  open: "09:30"
  close: "16:00"
  non_trading_weekdays: [Saturday, Sunday]
  holidays: ["2024-01-01", "2024-07-04"]
data:
  path: /data/bars.parquet
  bar_duration: 5m
store:
  path: ":memory:"
tradestrategies:
  - id: ts-1
    symbol: AAPL
    trading_day: "2024-01-03"
    cutoff_time: "10:30"
    rule_name: bracket-entry
    rule_version: "^1.0.0"
    risk:
      fixed_risk: 200
      max_margin_pct: 0.5
      lot_size: 100
    bar_duration: 5m
rules:
  bracket-entry: '{"stopOffset": 0.2, "targetRatios": [1, 3], "accountMargin": 100000}'
max_bars: 500
`

func (s *ConfigTestSuite) TestParseValidConfig() {
	cfg, err := Parse([]byte(validConfig))
	s.Require().NoError(err)

	s.Equal("America/New_York", cfg.Calendar.Timezone)
	s.Equal(5*time.Minute, cfg.Data.BarDuration.Std())
	s.Equal(500, cfg.MaxBars)
	s.Require().Len(cfg.Tradestrategies, 1)

	ts, err := cfg.Tradestrategies[0].Tradestrategy()
	s.Require().NoError(err)
	s.Equal("ts-1", ts.ID)
	s.Equal(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), ts.TradingDay)
	s.Equal(10*time.Hour+30*time.Minute, ts.CutoffTime)
	s.InDelta(200, ts.Risk.FixedRisk, 1e-9)
}

func (s *ConfigTestSuite) TestLoadFromFile() {
	path := filepath.Join(s.T().TempDir(), "config.yaml")
	s.Require().NoError(os.WriteFile(path, []byte(validConfig), 0o644))

	cfg, err := Load(path)
	s.Require().NoError(err)
	s.Equal("/data/bars.parquet", cfg.Data.Path)
}

func (s *ConfigTestSuite) TestLoadMissingFile() {
	_, err := Load("/does/not/exist.yaml")
	s.Require().Error(err)
	s.Equal(errors.ErrCodeStaleConfig, errors.GetCode(err))
}

func (s *ConfigTestSuite) TestParseRejectsMissingStrategies() {
	broken := `
calendar:
  timezone: America/New_York
  open: "09:30"
  close: "16:00"
data:
  path: /data/bars.parquet
  bar_duration: 5m
store:
  path: ":memory:"
tradestrategies: []
`
	_, err := Parse([]byte(broken))
	s.Require().Error(err)
	s.Equal(errors.ErrCodeStaleConfig, errors.GetCode(err))
}

func (s *ConfigTestSuite) TestParseRejectsBadTradingDay() {
	cfg := TradestrategyConfig{
		ID:          "ts-x",
		Symbol:      "AAPL",
		TradingDay:  "Jan 3rd",
		RuleName:    "bracket-entry",
		Risk:        validRisk(),
		BarDuration: Duration(5 * time.Minute),
	}

	_, err := cfg.Tradestrategy()
	s.Require().Error(err)
	s.Equal(errors.ErrCodeStaleConfig, errors.GetCode(err))
}

func (s *ConfigTestSuite) TestParseRejectsBadCutoff() {
	cfg := TradestrategyConfig{
		ID:          "ts-x",
		Symbol:      "AAPL",
		TradingDay:  "2024-01-03",
		CutoffTime:  "25:99",
		RuleName:    "bracket-entry",
		Risk:        validRisk(),
		BarDuration: Duration(5 * time.Minute),
	}

	_, err := cfg.Tradestrategy()
	s.Require().Error(err)
}

func validRisk() types.RiskConfig {
	return types.RiskConfig{
		FixedRisk:    200,
		MaxMarginPct: 0.5,
		LotSize:      100,
	}
}
