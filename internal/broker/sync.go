// Package broker coordinates the lifecycle of concurrently running strategy
// engines. BrokerSync is the only mutable state shared across engines; it
// carries atomic counters and a broadcast signal so a driving harness can
// block until every started strategy has quiesced.
package broker

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/trade-manager/trade-engine/internal/logger"
	"go.uber.org/zap"
)

// BrokerSync tracks running strategy engines. Engines call StrategyStarted
// when they begin processing bars, RuleComplete after each rule pass, and
// StrategyComplete exactly once when they reach a terminal state.
type BrokerSync struct {
	running       atomic.Int64
	ruleCompleted atomic.Int64
	errCount      atomic.Int64
	log           *logger.Logger
	firstErr      error
	errMu         sync.Mutex
	done          chan struct{}
	doneMu        sync.Mutex
}

// NewBrokerSync creates an idle coordinator.
func NewBrokerSync(log *logger.Logger) *BrokerSync {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &BrokerSync{
		log:  log,
		done: make(chan struct{}),
	}
}

// StrategyStarted registers one more running engine.
func (b *BrokerSync) StrategyStarted(tradestrategyID string) {
	b.running.Add(1)
	b.log.Debug("strategy started", zap.String("tradestrategy_id", tradestrategyID))
}

// StrategyComplete registers that an engine reached a terminal state. When
// the last running engine completes, every waiter in AwaitAllComplete is
// released.
func (b *BrokerSync) StrategyComplete(tradestrategyID string) {
	remaining := b.running.Add(-1)
	b.log.Debug("strategy complete",
		zap.String("tradestrategy_id", tradestrategyID),
		zap.Int64("remaining", remaining),
	)

	if remaining <= 0 {
		b.broadcast()
	}
}

// RuleComplete records one finished rule pass. The counter only advances;
// harnesses watch it to detect stalled engines.
func (b *BrokerSync) RuleComplete(tradestrategyID string) {
	b.ruleCompleted.Add(1)
}

// StrategyError records an error raised by an engine. The engine still owes
// its StrategyComplete signal; errors never suppress completion.
func (b *BrokerSync) StrategyError(tradestrategyID string, err error) {
	b.errCount.Add(1)
	b.log.Error("strategy error",
		zap.String("tradestrategy_id", tradestrategyID),
		zap.Error(err),
	)

	b.errMu.Lock()
	if b.firstErr == nil {
		b.firstErr = err
	}
	b.errMu.Unlock()
}

// AwaitAllComplete blocks until the running counter reaches zero or the
// context is cancelled. It returns the first strategy error recorded, if
// any.
func (b *BrokerSync) AwaitAllComplete(ctx context.Context) error {
	for {
		b.doneMu.Lock()
		done := b.done
		b.doneMu.Unlock()

		// The counter is checked after capturing the channel so a broadcast
		// racing with this load cannot leave the waiter on a re-armed channel.
		if b.running.Load() <= 0 {
			return b.FirstError()
		}

		select {
		case <-done:
			// Re-check: a new strategy may have started after the broadcast.
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Running returns the number of engines that started and have not yet
// completed.
func (b *BrokerSync) Running() int64 {
	return b.running.Load()
}

// RuleCompleteCount returns the total number of rule passes completed by
// all engines since creation.
func (b *BrokerSync) RuleCompleteCount() int64 {
	return b.ruleCompleted.Load()
}

// ErrorCount returns the number of strategy errors recorded.
func (b *BrokerSync) ErrorCount() int64 {
	return b.errCount.Load()
}

// FirstError returns the first error any engine reported, or nil.
func (b *BrokerSync) FirstError() error {
	b.errMu.Lock()
	defer b.errMu.Unlock()

	return b.firstErr
}

// broadcast wakes all current waiters and re-arms the signal for the next
// round of strategies.
func (b *BrokerSync) broadcast() {
	b.doneMu.Lock()
	close(b.done)
	b.done = make(chan struct{})
	b.doneMu.Unlock()
}
