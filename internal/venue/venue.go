// Package venue defines the execution-venue boundary the engine trades
// against, and a simulated venue used by backtests and tests. The core
// treats the venue purely as an event source/sink and assumes no transport.
package venue

import (
	"context"
	"time"

	"github.com/trade-manager/trade-engine/internal/types"
)

// ExecutionListener receives asynchronous order events from the venue.
// Fills are delivered as new stimuli, never as return values of the submit
// call.
type ExecutionListener interface {
	OnFill(orderID string, fillQty, fillPrice float64, at time.Time)
	OnOrderStatus(orderID string, status types.OrderStatus, reason string, at time.Time)
}

// HistoricalListener receives historical bar replays.
type HistoricalListener interface {
	OnHistoricalBar(reqID string, bar types.Bar)
	OnHistoricalComplete(reqID string)
}

// ExecutionVenue is the order entry side of the venue.
type ExecutionVenue interface {
	// SubmitOrder hands the order to the venue and returns the venue order
	// id. Acceptance and fills arrive later through the ExecutionListener.
	SubmitOrder(ctx context.Context, order types.Order) (string, error)
	// CancelOrder requests cancellation. Cancelling an order the venue no
	// longer works is a no-op.
	CancelOrder(ctx context.Context, orderID string) error
	// ModifyOrder replaces the working order carrying the same id.
	ModifyOrder(ctx context.Context, order types.Order) error
	// RegisterExecutionListener adds an event sink. Venues dispatch to all
	// registered listeners synchronously, in registration order; listeners
	// ignore order ids they do not own.
	RegisterExecutionListener(l ExecutionListener)
}

// HistoricalDataVenue is the market-data replay side of the venue.
type HistoricalDataVenue interface {
	RequestHistoricalData(ctx context.Context, reqID, symbol string, start, end time.Time) error
	SetHistoricalListener(l HistoricalListener)
}
