package venue

import (
	"context"
	"sync"
	"time"

	"github.com/trade-manager/trade-engine/internal/logger"
	"github.com/trade-manager/trade-engine/internal/types"
	"github.com/trade-manager/trade-engine/pkg/errors"
	"go.uber.org/zap"
)

// SimVenue is an in-process execution venue that fills working orders
// against incoming bars. Backtests and tests use it in place of a brokerage
// connection; fill rules follow the usual conservative conventions (limits
// fill only when the bar trades through the limit, stops trigger on the bar
// range and fill at the trigger or worse).
type SimVenue struct {
	log          *logger.Logger
	listeners    []ExecutionListener
	histListener HistoricalListener
	pending      map[string]types.Order
	history      []types.Bar
	mu           sync.Mutex
}

// NewSimVenue creates an empty simulated venue.
func NewSimVenue(log *logger.Logger) *SimVenue {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &SimVenue{
		log:          log,
		listeners:    nil,
		histListener: nil,
		pending:      make(map[string]types.Order),
		history:      nil,
		mu:           sync.Mutex{},
	}
}

// RegisterExecutionListener implements ExecutionVenue.
func (s *SimVenue) RegisterExecutionListener(l ExecutionListener) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listeners = append(s.listeners, l)
}

// SetHistoricalListener implements HistoricalDataVenue.
func (s *SimVenue) SetHistoricalListener(l HistoricalListener) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.histListener = l
}

// LoadHistory seeds the bars served by RequestHistoricalData.
func (s *SimVenue) LoadHistory(bars []types.Bar) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, bars...)
}

// SubmitOrder implements ExecutionVenue. The order is accepted immediately;
// the SUBMITTED status event fires before SubmitOrder returns.
func (s *SimVenue) SubmitOrder(_ context.Context, order types.Order) (string, error) {
	if err := order.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	order.Status = types.OrderStatusSubmitted
	s.pending[order.ID] = order
	listeners := append([]ExecutionListener(nil), s.listeners...)
	s.mu.Unlock()

	s.log.Debug("sim venue accepted order",
		zap.String("order_id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.String("side", string(order.Side)),
		zap.Float64("quantity", order.Quantity),
	)

	for _, l := range listeners {
		l.OnOrderStatus(order.ID, types.OrderStatusSubmitted, "accepted", order.CreatedAt)
	}

	return order.ID, nil
}

// CancelOrder implements ExecutionVenue. Cancelling an unknown or already
// completed order is a no-op.
func (s *SimVenue) CancelOrder(_ context.Context, orderID string) error {
	s.mu.Lock()

	order, ok := s.pending[orderID]
	if !ok {
		s.mu.Unlock()

		return nil
	}

	delete(s.pending, orderID)
	listeners := append([]ExecutionListener(nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l.OnOrderStatus(orderID, types.OrderStatusCancelled, "cancelled", order.UpdatedAt)
	}

	return nil
}

// ModifyOrder implements ExecutionVenue.
func (s *SimVenue) ModifyOrder(_ context.Context, order types.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[order.ID]; !ok {
		return errors.Newf(errors.ErrCodeOrderNotFound, "order %s is not working at the venue", order.ID)
	}

	order.Status = types.OrderStatusSubmitted
	s.pending[order.ID] = order

	return nil
}

// WorkingOrders returns a snapshot of the orders the venue is working.
func (s *SimVenue) WorkingOrders() []types.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.Order, 0, len(s.pending))
	for _, o := range s.pending {
		out = append(out, o)
	}

	return out
}

// OnBar marks the passage of one bar of market data: every working order is
// checked against the bar's range and filled when it crosses.
func (s *SimVenue) OnBar(bar types.Bar) {
	s.mu.Lock()

	type fill struct {
		orderID string
		qty     float64
		price   float64
	}

	fills := make([]fill, 0)

	for id, order := range s.pending {
		if order.Symbol != bar.Symbol {
			continue
		}

		price, crossed := fillPrice(order, bar)
		if !crossed {
			continue
		}

		fills = append(fills, fill{orderID: id, qty: order.RemainingQuantity(), price: price})
		delete(s.pending, id)
	}

	listeners := append([]ExecutionListener(nil), s.listeners...)
	s.mu.Unlock()

	for _, f := range fills {
		for _, l := range listeners {
			l.OnFill(f.orderID, f.qty, f.price, bar.Period.End)
		}
	}
}

// RequestHistoricalData implements HistoricalDataVenue by replaying the
// loaded history for the symbol inside [start, end).
func (s *SimVenue) RequestHistoricalData(_ context.Context, reqID, symbol string, start, end time.Time) error {
	s.mu.Lock()
	listener := s.histListener
	bars := append([]types.Bar(nil), s.history...)
	s.mu.Unlock()

	if listener == nil {
		return errors.New(errors.ErrCodeMissingParameter, "no historical listener registered")
	}

	for _, bar := range bars {
		if bar.Symbol != symbol {
			continue
		}

		if bar.Period.Start.Before(start) || !bar.Period.Start.Before(end) {
			continue
		}

		listener.OnHistoricalBar(reqID, bar)
	}

	listener.OnHistoricalComplete(reqID)

	return nil
}

// fillPrice decides whether the order crosses within the bar and at what
// price. Market orders take the bar open; limits fill at the better of the
// limit and the open; stops fill at the trigger or worse.
func fillPrice(order types.Order, bar types.Bar) (float64, bool) {
	switch order.Type {
	case types.OrderTypeMarket:
		return bar.Open, true

	case types.OrderTypeLimit:
		limit := order.LimitPrice.Unwrap()
		if order.Side == types.SideBuy && bar.Low <= limit {
			return min(limit, bar.Open), true
		}

		if order.Side == types.SideSell && bar.High >= limit {
			return max(limit, bar.Open), true
		}

	case types.OrderTypeStop, types.OrderTypeTrailing:
		stop := order.StopPrice.Unwrap()
		if order.Side == types.SideBuy && bar.High >= stop {
			return max(stop, bar.Open), true
		}

		if order.Side == types.SideSell && bar.Low <= stop {
			return min(stop, bar.Open), true
		}

	case types.OrderTypeStopLimit:
		stop := order.StopPrice.Unwrap()
		limit := order.LimitPrice.Unwrap()

		if order.Side == types.SideBuy && bar.High >= stop && bar.Low <= limit {
			return limit, true
		}

		if order.Side == types.SideSell && bar.Low <= stop && bar.High >= limit {
			return limit, true
		}
	}

	return 0, false
}
