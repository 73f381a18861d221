package engine

import (
	"github.com/trade-manager/trade-engine/internal/clock"
	"github.com/trade-manager/trade-engine/internal/logger"
	"github.com/trade-manager/trade-engine/internal/orders"
	"github.com/trade-manager/trade-engine/internal/series"
	"github.com/trade-manager/trade-engine/internal/types"
)

// Rule is the strategy-plugin boundary. A rule implementation is registered
// with a Registry under a name and version; the engine resolves and drives
// it through this fixed interface. Rule bodies must be non-blocking: venue
// and persistence results come back as later events, not return values.
type Rule interface {
	// OnInit runs once before the first bar, after the engine subscribed to
	// its dataset.
	OnInit(ctx *RuleContext) error
	// OnBar runs for every accepted bar event. Returning an error cancels
	// the strategy.
	OnBar(ctx *RuleContext, bar types.Bar) error
	// OnCancel runs once when the engine cancels, whatever the cause.
	OnCancel(ctx *RuleContext)
}

// RuleContext is the rule's window into its strategy. Everything here is
// owned by one engine; rules never share state with other strategies.
type RuleContext struct {
	Tradestrategy types.Tradestrategy
	Dataset       *series.StrategyDataset
	Orders        *orders.OrderManager
	Clock         *clock.PeriodClock
	Log           *logger.Logger

	complete bool
}

// Complete marks the strategy's objective as satisfied. The engine cancels
// itself after the current rule pass returns; no further bars are
// delivered.
func (c *RuleContext) Complete() {
	c.complete = true
}

// Completed reports whether the rule asked for self-cancellation.
func (c *RuleContext) Completed() bool {
	return c.complete
}
