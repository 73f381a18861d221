// Package engine runs one trading strategy per StrategyEngine: a small
// state machine driven by bar events from a StrategyDataset, evaluating a
// registered Rule and managing orders through an OrderManager. Engines run
// on their own goroutine and report lifecycle transitions to a BrokerSync.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trade-manager/trade-engine/internal/broker"
	"github.com/trade-manager/trade-engine/internal/clock"
	"github.com/trade-manager/trade-engine/internal/logger"
	"github.com/trade-manager/trade-engine/internal/orders"
	"github.com/trade-manager/trade-engine/internal/series"
	"github.com/trade-manager/trade-engine/internal/types"
	"github.com/trade-manager/trade-engine/pkg/errors"
	"go.uber.org/zap"
)

// State is the lifecycle state of a StrategyEngine.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateWaiting
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateRunning:
		return "RUNNING"
	case StateWaiting:
		return "WAITING"
	case StateCancelled:
		return "CANCELLED"
	}

	return fmt.Sprintf("State(%d)", int32(s))
}

// StrategyEngine evaluates one rule against one tradestrategy's dataset.
// The zero value is not usable; construct with NewStrategyEngine.
type StrategyEngine struct {
	tradestrategy types.Tradestrategy
	dataset       *series.StrategyDataset
	orders        *orders.OrderManager
	clock         *clock.PeriodClock
	rule          Rule
	sync          *broker.BrokerSync
	log           *logger.Logger

	state     atomic.Int32
	bars      chan types.Bar
	done      chan struct{}
	stopped   chan struct{}
	startOnce sync.Once
}

// NewStrategyEngine wires an engine for one tradestrategy. The rule is
// typically resolved from a Registry with the tradestrategy's rule name and
// version constraint. The engine is CREATED until Start.
func NewStrategyEngine(
	tradestrategy types.Tradestrategy,
	dataset *series.StrategyDataset,
	orderManager *orders.OrderManager,
	periodClock *clock.PeriodClock,
	rule Rule,
	brokerSync *broker.BrokerSync,
	log *logger.Logger,
) *StrategyEngine {
	if log == nil {
		log = logger.NewNopLogger()
	}

	e := &StrategyEngine{
		tradestrategy: tradestrategy,
		dataset:       dataset,
		orders:        orderManager,
		clock:         periodClock,
		rule:          rule,
		sync:          brokerSync,
		log: log.With(
			zap.String("tradestrategy_id", tradestrategy.ID),
			zap.String("symbol", tradestrategy.Symbol),
		),
		bars:    make(chan types.Bar),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	e.state.Store(int32(StateCreated))

	return e
}

// State returns the current lifecycle state.
func (e *StrategyEngine) State() State {
	return State(e.state.Load())
}

// Start subscribes the engine to its dataset and launches the bar loop.
// Starting twice is a no-op.
func (e *StrategyEngine) Start() error {
	var initErr error

	e.startOnce.Do(func() {
		if e.State() == StateCancelled {
			initErr = errors.Newf(errors.ErrCodeEngineCancelled,
				"tradestrategy %s was cancelled before start", e.tradestrategy.ID)

			return
		}

		ruleCtx := e.ruleContext()

		if err := e.rule.OnInit(ruleCtx); err != nil {
			initErr = errors.Wrapf(errors.ErrCodeStrategyRule, err,
				"rule init failed for tradestrategy %s", e.tradestrategy.ID)

			e.state.Store(int32(StateCancelled))
			close(e.stopped)

			return
		}

		e.sync.StrategyStarted(e.tradestrategy.ID)
		e.state.Store(int32(StateWaiting))
		e.dataset.AddListener(e)

		go e.loop()

		e.log.Info("strategy engine started",
			zap.String("rule", e.tradestrategy.RuleName),
		)
	})

	return initErr
}

// Cancel transitions the engine to CANCELLED, unsubscribes from the
// dataset, cancels outstanding orders and signals completion. It is
// idempotent and safe from any goroutine; bars already in flight when
// cancellation begins are discarded.
func (e *StrategyEngine) Cancel() {
	e.cancel(nil)
}

// Done returns a channel closed once the engine has fully stopped.
func (e *StrategyEngine) Done() <-chan struct{} {
	return e.stopped
}

// OnDatasetChanged implements series.DatasetListener. It blocks the data
// feed until the engine's loop accepts the bar, keeping per-engine bar
// order identical to append order. A cancelled engine discards the event.
func (e *StrategyEngine) OnDatasetChanged(_ series.DatasetEvent, bar types.Bar) {
	select {
	case e.bars <- bar:
	case <-e.done:
	}
}

func (e *StrategyEngine) loop() {
	for {
		select {
		case bar := <-e.bars:
			if e.State() == StateCancelled {
				return
			}

			e.handleBar(bar)
		case <-e.done:
			return
		}
	}
}

func (e *StrategyEngine) handleBar(bar types.Bar) {
	if !e.acceptBar(bar) {
		return
	}

	if e.pastCutoff(bar) {
		e.log.Info("cutoff reached, cancelling strategy",
			zap.Time("bar_start", bar.Period.Start),
			zap.Duration("cutoff", e.tradestrategy.CutoffTime),
		)
		e.cancel(nil)

		return
	}

	if !e.state.CompareAndSwap(int32(StateWaiting), int32(StateRunning)) {
		return
	}

	ruleCtx := e.ruleContext()
	err := e.evaluate(ruleCtx, bar)

	e.sync.RuleComplete(e.tradestrategy.ID)

	// Only leave RUNNING back to WAITING; a concurrent Cancel wins.
	e.state.CompareAndSwap(int32(StateRunning), int32(StateWaiting))

	switch {
	case err != nil:
		e.cancel(err)
	case ruleCtx.Completed():
		e.log.Info("rule reported completion, cancelling strategy")
		e.cancel(nil)
	}
}

// evaluate runs one rule pass with panic containment. A panicking rule is
// reported as a strategy-rule error and cancels the engine; it never takes
// down the process or stalls other engines.
func (e *StrategyEngine) evaluate(ruleCtx *RuleContext, bar types.Bar) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewStrategyRuleError(e.tradestrategy.ID, e.tradestrategy.RuleName,
				errors.Newf(errors.ErrCodeStrategyRule, "rule panicked: %v", r))
		}
	}()

	if ruleErr := e.rule.OnBar(ruleCtx, bar); ruleErr != nil {
		return errors.NewStrategyRuleError(e.tradestrategy.ID, e.tradestrategy.RuleName, ruleErr)
	}

	return nil
}

// acceptBar filters bar events: wrong-symbol bars, bars outside market
// hours and bars off the strategy's assigned trading day are ignored.
func (e *StrategyEngine) acceptBar(bar types.Bar) bool {
	if bar.Symbol != e.tradestrategy.Symbol {
		return false
	}

	if !e.clock.IsMarketHours(bar.Period.Start) {
		e.log.Debug("ignoring bar outside market hours", zap.Time("bar_start", bar.Period.Start))

		return false
	}

	if !e.clock.OnTradingDay(bar.Period.Start, e.tradestrategy.TradingDay) {
		e.log.Debug("ignoring bar off the assigned trading day", zap.Time("bar_start", bar.Period.Start))

		return false
	}

	return true
}

// pastCutoff reports whether the bar starts at or after the strategy's
// cutoff time-of-day on its trading day.
func (e *StrategyEngine) pastCutoff(bar types.Bar) bool {
	if e.tradestrategy.CutoffTime <= 0 {
		return false
	}

	// CutoffTime is measured from local midnight of the trading day.
	local := bar.Period.Start.In(e.clock.Location())
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, e.clock.Location())

	return !local.Before(midnight.Add(e.tradestrategy.CutoffTime))
}

func (e *StrategyEngine) cancel(cause error) {
	prev := State(e.state.Swap(int32(StateCancelled)))
	if prev == StateCancelled {
		return
	}

	e.dataset.RemoveListener(e)
	close(e.done)

	if cause != nil {
		e.sync.StrategyError(e.tradestrategy.ID, cause)
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				e.log.Error("rule panicked during cancel", zap.Any("panic", r))
			}
		}()

		e.rule.OnCancel(e.ruleContext())
	}()

	// A flat strategy leaves no working orders behind. An open position
	// keeps its protective orders: completion must never strip a stop off
	// a live position.
	if e.orders.Position().IsFlat() {
		if err := e.orders.CancelAll(context.Background()); err != nil {
			e.log.Error("failed to cancel outstanding orders", zap.Error(err))
		}
	}

	// The Swap guard above makes this path run at most once, so the
	// completion signal fires exactly once per started engine.
	if prev != StateCreated {
		e.sync.StrategyComplete(e.tradestrategy.ID)
	}

	close(e.stopped)
	e.log.Info("strategy engine stopped", zap.String("previous_state", prev.String()))
}

func (e *StrategyEngine) ruleContext() *RuleContext {
	return &RuleContext{
		Tradestrategy: e.tradestrategy,
		Dataset:       e.dataset,
		Orders:        e.orders,
		Clock:         e.clock,
		Log:           e.log,
	}
}
