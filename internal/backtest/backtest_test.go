package backtest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/trade-manager/trade-engine/internal/clock"
	"github.com/trade-manager/trade-engine/internal/datasource"
	"github.com/trade-manager/trade-engine/internal/engine"
	"github.com/trade-manager/trade-engine/internal/logger"
	"github.com/trade-manager/trade-engine/internal/persistence"
	"github.com/trade-manager/trade-engine/internal/strategy"
	"github.com/trade-manager/trade-engine/internal/types"
	"github.com/trade-manager/trade-engine/pkg/errors"
)

type HarnessTestSuite struct {
	suite.Suite
	clock    *clock.PeriodClock
	source   *datasource.DuckDBDataSource
	store    *persistence.Store
	registry *engine.Registry
}

func TestHarnessTestSuite(t *testing.T) {
	suite.Run(t, new(HarnessTestSuite))
}

func (s *HarnessTestSuite) SetupTest() {
	var err error

	s.clock, err = clock.NewPeriodClock(clock.CalendarConfig{
		Timezone:           "America/New_York",
		Open:               "09:30",
		Close:              "16:00",
		NonTradingWeekdays: []string{"Saturday", "Sunday"},
	})
	s.Require().NoError(err)

	s.source, err = datasource.NewDuckDBDataSource(5*time.Minute, logger.NewNopLogger())
	s.Require().NoError(err)

	path := filepath.Join(s.T().TempDir(), "bars.csv")
	s.writeSessionCSV(path)
	s.Require().NoError(s.source.Initialize(path))

	s.store, err = persistence.NewStore(":memory:", logger.NewNopLogger())
	s.Require().NoError(err)
	s.Require().NoError(s.store.Initialize())

	s.registry = engine.NewRegistry()
	s.Require().NoError(strategy.RegisterBuiltins(s.registry, map[string]string{
		strategy.RuleBracketEntry: `{"stopOffset": 0.2, "targetRatios": [1, 3], "accountMargin": 100000}`,
	}))
}

func (s *HarnessTestSuite) TearDownTest() {
	s.Require().NoError(s.source.Close())
	s.Require().NoError(s.store.Close())
}

// writeSessionCSV produces a short AAPL session on 2024-01-03: an entry
// bar, a fill bar, and two quiet bars that trigger neither stop nor target.
func (s *HarnessTestSuite) writeSessionCSV(path string) {
	base := time.Date(2024, 1, 3, 14, 30, 0, 0, time.UTC)
	rows := "time,symbol,open,high,low,close,volume\n"
	bars := [][4]float64{
		{37.90, 38.00, 37.85, 37.95},
		{37.95, 38.00, 37.90, 37.98},
		{37.98, 38.05, 37.90, 38.00},
		{38.00, 38.05, 37.92, 38.02},
	}

	for i, b := range bars {
		ts := base.Add(time.Duration(i) * 5 * time.Minute).Format("2006-01-02 15:04:05")
		rows += fmt.Sprintf("%s,AAPL,%.2f,%.2f,%.2f,%.2f,10000\n", ts, b[0], b[1], b[2], b[3])
	}

	s.Require().NoError(os.WriteFile(path, []byte(rows), 0o644))
}

func (s *HarnessTestSuite) tradestrategy(id string) types.Tradestrategy {
	return types.Tradestrategy{
		ID:         id,
		Symbol:     "AAPL",
		TradingDay: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		RuleName:   strategy.RuleBracketEntry,
		Risk: types.RiskConfig{
			FixedRisk:    200,
			MaxMarginPct: 0.5,
			LotSize:      100,
		},
		BarDuration: 5 * time.Minute,
	}
}

func (s *HarnessTestSuite) TestRunSingleStrategy() {
	harness := NewHarness(s.source, s.clock, s.registry, s.store, 0, logger.NewNopLogger())
	harness.SetProgress(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := harness.Run(ctx, []types.Tradestrategy{s.tradestrategy("ts-1")})
	s.Require().NoError(err)

	s.Equal(4, result.BarsProcessed)
	s.GreaterOrEqual(result.RulePasses, int64(3))
	s.Require().Len(result.Strategies, 1)

	run := result.Strategies[0]
	s.Equal(engine.StateCancelled, run.FinalState)
	s.Equal(types.PositionSideLong, run.Position.Side)
	s.InDelta(1000, run.Position.OpenQuantity, 1e-9)
	s.InDelta(37.95, run.Position.AvgEntryPrice, 1e-9)

	// Entry plus four protective legs, all persisted.
	s.Len(run.Orders, 5)

	open, err := s.store.FindOpenOrders("ts-1")
	s.Require().NoError(err)
	s.Len(open, 4)
}

func (s *HarnessTestSuite) TestRunMultipleStrategiesShareVenue() {
	harness := NewHarness(s.source, s.clock, s.registry, nil, 0, logger.NewNopLogger())
	harness.SetProgress(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := harness.Run(ctx, []types.Tradestrategy{
		s.tradestrategy("ts-a"),
		s.tradestrategy("ts-b"),
	})
	s.Require().NoError(err)
	s.Require().Len(result.Strategies, 2)

	for _, run := range result.Strategies {
		s.Equal(engine.StateCancelled, run.FinalState)
		s.InDelta(1000, run.Position.OpenQuantity, 1e-9)
	}
}

func (s *HarnessTestSuite) TestRunRequiresStrategies() {
	harness := NewHarness(s.source, s.clock, s.registry, nil, 0, logger.NewNopLogger())
	harness.SetProgress(false)

	_, err := harness.Run(context.Background(), nil)
	s.Require().Error(err)
	s.Equal(errors.ErrCodeBacktestNoStrategy, errors.GetCode(err))
}

func (s *HarnessTestSuite) TestRunRejectsUnknownRule() {
	harness := NewHarness(s.source, s.clock, s.registry, nil, 0, logger.NewNopLogger())
	harness.SetProgress(false)

	ts := s.tradestrategy("ts-x")
	ts.RuleName = "does-not-exist"

	_, err := harness.Run(context.Background(), []types.Tradestrategy{ts})
	s.Require().Error(err)
	s.Equal(errors.ErrCodeRuleNotRegistered, errors.GetCode(err))
}
