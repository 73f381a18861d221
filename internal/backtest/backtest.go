// Package backtest replays historical market data through strategy engines
// against a simulated execution venue. One harness run drives any number of
// concurrently-running strategies over one data file and blocks until every
// strategy has quiesced.
package backtest

import (
	"context"
	"time"

	"github.com/moznion/go-optional"
	"github.com/schollz/progressbar/v3"
	"github.com/trade-manager/trade-engine/internal/broker"
	"github.com/trade-manager/trade-engine/internal/clock"
	"github.com/trade-manager/trade-engine/internal/datasource"
	"github.com/trade-manager/trade-engine/internal/engine"
	"github.com/trade-manager/trade-engine/internal/logger"
	"github.com/trade-manager/trade-engine/internal/orders"
	"github.com/trade-manager/trade-engine/internal/persistence"
	"github.com/trade-manager/trade-engine/internal/series"
	"github.com/trade-manager/trade-engine/internal/types"
	"github.com/trade-manager/trade-engine/internal/venue"
	"github.com/trade-manager/trade-engine/pkg/errors"
	"go.uber.org/zap"
)

// StrategyResult summarizes one strategy after the run.
type StrategyResult struct {
	Tradestrategy types.Tradestrategy
	FinalState    engine.State
	Position      types.Position
	Orders        []types.Order
}

// Result summarizes one harness run.
type Result struct {
	BarsProcessed int
	RulePasses    int64
	Strategies    []StrategyResult
}

// Harness wires strategies, data and the simulated venue for one run.
type Harness struct {
	source   datasource.DataSource
	clock    *clock.PeriodClock
	registry *engine.Registry
	store    *persistence.Store
	log      *logger.Logger
	maxBars  int
	progress bool
}

// NewHarness creates a backtest harness. The store is optional; pass nil to
// skip persistence. Set maxBars to bound each strategy's in-memory series.
func NewHarness(
	source datasource.DataSource,
	periodClock *clock.PeriodClock,
	registry *engine.Registry,
	store *persistence.Store,
	maxBars int,
	log *logger.Logger,
) *Harness {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Harness{
		source:   source,
		clock:    periodClock,
		registry: registry,
		store:    store,
		log:      log,
		maxBars:  maxBars,
		progress: true,
	}
}

// SetProgress toggles the terminal progress bar. Tests turn it off.
func (h *Harness) SetProgress(enabled bool) {
	h.progress = enabled
}

type strategyRun struct {
	tradestrategy types.Tradestrategy
	manager       *orders.OrderManager
	engine        *engine.StrategyEngine
}

// Run replays the data source through the given strategies and blocks until
// all of them complete or the context is cancelled.
func (h *Harness) Run(ctx context.Context, tradestrategies []types.Tradestrategy) (*Result, error) {
	if len(tradestrategies) == 0 {
		return nil, errors.New(errors.ErrCodeBacktestNoStrategy, "no tradestrategies to run")
	}

	count, err := h.source.Count(optional.None[time.Time](), optional.None[time.Time]())
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeBacktestInitFailed, "failed to count market data", err)
	}

	if count == 0 {
		return nil, errors.New(errors.ErrCodeBacktestNoData, "data source has no rows")
	}

	simVenue := venue.NewSimVenue(h.log)
	brokerSync := broker.NewBrokerSync(h.log)
	bySymbol := make(map[string]*series.BarSeries)
	runs := make([]*strategyRun, 0, len(tradestrategies))

	for _, tradestrategy := range tradestrategies {
		run, err := h.startStrategy(tradestrategy, simVenue, brokerSync, bySymbol)
		if err != nil {
			for _, started := range runs {
				started.engine.Cancel()
			}

			return nil, err
		}

		runs = append(runs, run)
	}

	processed, err := h.feed(ctx, simVenue, bySymbol, count)
	if err != nil {
		return nil, err
	}

	// Data exhausted: strategies that never reached a terminal condition
	// are cancelled so the await below cannot hang on them.
	for _, run := range runs {
		run.engine.Cancel()
	}

	if err := brokerSync.AwaitAllComplete(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(errors.ErrCodeBacktestStalled, "strategies did not quiesce", err)
		}

		// Strategy errors cancelled their own engines; the run itself still
		// completed.
		h.log.Warn("run finished with strategy errors", zap.Error(err))
	}

	result := &Result{
		BarsProcessed: processed,
		RulePasses:    brokerSync.RuleCompleteCount(),
		Strategies:    make([]StrategyResult, 0, len(runs)),
	}

	for _, run := range runs {
		orderSnapshots := run.manager.Orders()

		if h.store != nil {
			for _, order := range orderSnapshots {
				if err := h.store.SaveOrder(order); err != nil {
					h.log.Error("failed to persist order", zap.String("order_id", order.ID), zap.Error(err))
				}
			}
		}

		result.Strategies = append(result.Strategies, StrategyResult{
			Tradestrategy: run.tradestrategy,
			FinalState:    run.engine.State(),
			Position:      run.manager.Position(),
			Orders:        orderSnapshots,
		})
	}

	return result, nil
}

func (h *Harness) startStrategy(
	tradestrategy types.Tradestrategy,
	simVenue *venue.SimVenue,
	brokerSync *broker.BrokerSync,
	bySymbol map[string]*series.BarSeries,
) (*strategyRun, error) {
	if err := tradestrategy.Validate(); err != nil {
		return nil, err
	}

	rule, err := h.registry.Resolve(tradestrategy.RuleName, tradestrategy.RuleVersion)
	if err != nil {
		return nil, err
	}

	base, ok := bySymbol[tradestrategy.Symbol]
	if !ok {
		base = series.NewBarSeries(tradestrategy.Symbol, tradestrategy.BarDuration, h.maxBars)
		bySymbol[tradestrategy.Symbol] = base
	}

	dataset := series.NewStrategyDataset(base)
	manager := orders.NewOrderManager(tradestrategy, simVenue, h.log)
	strategyEngine := engine.NewStrategyEngine(tradestrategy, dataset, manager, h.clock, rule, brokerSync, h.log)

	if err := strategyEngine.Start(); err != nil {
		return nil, err
	}

	return &strategyRun{
		tradestrategy: tradestrategy,
		manager:       manager,
		engine:        strategyEngine,
	}, nil
}

// feed streams every bar through the venue first, then into the symbol's
// series. Fill events for a bar therefore precede the rule pass that
// observes that bar, matching live event order.
func (h *Harness) feed(
	ctx context.Context,
	simVenue *venue.SimVenue,
	bySymbol map[string]*series.BarSeries,
	count int,
) (int, error) {
	var bar *progressbar.ProgressBar
	if h.progress {
		bar = progressbar.Default(int64(count))
		bar.Describe("Replaying market data")
	}

	processed := 0

	for data, err := range h.source.ReadAll(optional.None[time.Time](), optional.None[time.Time]()) {
		if err != nil {
			return processed, errors.Wrap(errors.ErrCodeBacktestInitFailed, "failed to read market data", err)
		}

		if ctx.Err() != nil {
			return processed, ctx.Err()
		}

		simVenue.OnBar(data)

		if s, ok := bySymbol[data.Symbol]; ok {
			if err := s.Append(data); err != nil {
				h.log.Warn("dropping bad bar",
					zap.String("symbol", data.Symbol),
					zap.Time("start", data.Period.Start),
					zap.Error(err),
				)
			}
		}

		if h.store != nil {
			if err := h.store.SaveBar(data); err != nil {
				h.log.Error("failed to persist bar", zap.Error(err))
			}
		}

		processed++

		if bar != nil {
			_ = bar.Add(1)
		}
	}

	if bar != nil {
		_ = bar.Finish()
	}

	return processed, nil
}
