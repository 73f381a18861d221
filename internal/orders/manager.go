// Package orders provides the OrderManager: per-strategy order building and
// tracking, one-cancels-all bracket groups, cancellation and position
// coverage queries. An OrderManager's state is owned by its strategy engine;
// the only external writes are venue events arriving through the
// ExecutionListener interface.
package orders

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/trade-manager/trade-engine/internal/logger"
	"github.com/trade-manager/trade-engine/internal/risk"
	"github.com/trade-manager/trade-engine/internal/types"
	"github.com/trade-manager/trade-engine/internal/venue"
	"github.com/trade-manager/trade-engine/pkg/errors"
	"go.uber.org/zap"
)

// FillListener is notified after a fill has been applied to a tracked
// order. The order value is a snapshot taken after the fill.
type FillListener func(order types.Order, fillQty, fillPrice float64, at time.Time)

// OrderManager builds and tracks orders for one tradestrategy.
type OrderManager struct {
	tradestrategy types.Tradestrategy
	venue         venue.ExecutionVenue
	log           *logger.Logger
	orders        map[string]*types.Order
	ocaGroups     map[string][]string
	fillListener  FillListener
	now           func() time.Time
	mu            sync.Mutex
}

// NewOrderManager creates a manager for one tradestrategy and registers it
// for venue events.
func NewOrderManager(tradestrategy types.Tradestrategy, executionVenue venue.ExecutionVenue, log *logger.Logger) *OrderManager {
	if log == nil {
		log = logger.NewNopLogger()
	}

	m := &OrderManager{
		tradestrategy: tradestrategy,
		venue:         executionVenue,
		log:           log,
		orders:        make(map[string]*types.Order),
		ocaGroups:     make(map[string][]string),
		fillListener:  nil,
		now:           time.Now,
		mu:            sync.Mutex{},
	}

	executionVenue.RegisterExecutionListener(m)

	return m
}

// SetFillListener registers the fill callback. There is one consumer, the
// strategy engine.
func (m *OrderManager) SetFillListener(l FillListener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fillListener = l
}

// CreateEntry builds, tracks and submits an entry order.
func (m *OrderManager) CreateEntry(ctx context.Context, side types.Side, orderType types.OrderType, quantity float64, limitPrice, stopPrice optional.Option[float64], reason types.Reason) (types.Order, error) {
	order := types.Order{
		ID:              uuid.New().String(),
		TradestrategyID: m.tradestrategy.ID,
		Symbol:          m.tradestrategy.Symbol,
		Side:            side,
		Type:            orderType,
		Quantity:        quantity,
		TimeInForce:     types.TimeInForceDay,
		LimitPrice:      limitPrice,
		StopPrice:       stopPrice,
		OCAGroupID:      optional.None[string](),
		Status:          types.OrderStatusPending,
		Reason:          reason,
		CreatedAt:       m.now(),
		UpdatedAt:       m.now(),
	}

	if err := order.Validate(); err != nil {
		return types.Order{}, err
	}

	m.track(&order)

	if err := m.submit(ctx, order.ID); err != nil {
		return types.Order{}, err
	}

	return m.snapshot(order.ID), nil
}

// CreateBracket creates one stop/target pair as an OCA group protecting
// quantity units of the open position. Partial-quantity brackets are
// supported; across all active groups the protective quantity must not
// exceed the open position at creation time. Both prices go through the
// boundary rounding rule for the closing side.
func (m *OrderManager) CreateBracket(ctx context.Context, stopPrice, targetPrice, quantity float64) (string, error) {
	position := m.Position()
	if position.IsFlat() {
		return "", errors.New(errors.ErrCodeBracketMismatch, "cannot bracket a flat position")
	}

	closingSide := types.SideSell
	if position.Side == types.PositionSideShort {
		closingSide = types.SideBuy
	}

	openQty := math.Abs(position.OpenQuantity)
	if m.protectiveQuantity()+quantity > openQty {
		return "", errors.Newf(errors.ErrCodeBracketMismatch,
			"bracket quantity %f exceeds uncovered position quantity %f", quantity, openQty-m.protectiveQuantity())
	}

	roundedStop, err := risk.AddPennyAndRoundStop(stopPrice, closingSide)
	if err != nil {
		return "", err
	}

	roundedTarget, err := risk.AddPennyAndRoundStop(targetPrice, closingSide)
	if err != nil {
		return "", err
	}

	groupID := uuid.New().String()
	now := m.now()

	stop := types.Order{
		ID:              uuid.New().String(),
		TradestrategyID: m.tradestrategy.ID,
		Symbol:          m.tradestrategy.Symbol,
		Side:            closingSide,
		Type:            types.OrderTypeStop,
		Quantity:        quantity,
		TimeInForce:     types.TimeInForceGTC,
		LimitPrice:      optional.None[float64](),
		StopPrice:       optional.Some(roundedStop),
		OCAGroupID:      optional.Some(groupID),
		Status:          types.OrderStatusPending,
		Reason:          types.Reason{Reason: types.OrderReasonStopLoss, Message: "bracket stop"},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	target := types.Order{
		ID:              uuid.New().String(),
		TradestrategyID: m.tradestrategy.ID,
		Symbol:          m.tradestrategy.Symbol,
		Side:            closingSide,
		Type:            types.OrderTypeLimit,
		Quantity:        quantity,
		TimeInForce:     types.TimeInForceGTC,
		LimitPrice:      optional.Some(roundedTarget),
		StopPrice:       optional.None[float64](),
		OCAGroupID:      optional.Some(groupID),
		Status:          types.OrderStatusPending,
		Reason:          types.Reason{Reason: types.OrderReasonTakeProfit, Message: "bracket target"},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := stop.Validate(); err != nil {
		return "", err
	}

	if err := target.Validate(); err != nil {
		return "", err
	}

	m.track(&stop)
	m.track(&target)

	m.mu.Lock()
	m.ocaGroups[groupID] = []string{stop.ID, target.ID}
	m.mu.Unlock()

	if err := m.submit(ctx, stop.ID); err != nil {
		return "", err
	}

	if err := m.submit(ctx, target.ID); err != nil {
		// Leave no naked half-bracket behind.
		_ = m.Cancel(ctx, stop.ID)

		return "", err
	}

	m.log.Info("bracket created",
		zap.String("tradestrategy_id", m.tradestrategy.ID),
		zap.String("oca_group", groupID),
		zap.Float64("quantity", quantity),
		zap.Float64("stop", roundedStop),
		zap.Float64("target", roundedTarget),
	)

	return groupID, nil
}

// Cancel cancels the order and, when it belongs to an OCA group, its paired
// legs. Cancelling an order already in a terminal state is a no-op.
func (m *OrderManager) Cancel(ctx context.Context, orderID string) error {
	m.mu.Lock()

	order, ok := m.orders[orderID]
	if !ok {
		m.mu.Unlock()

		return errors.Newf(errors.ErrCodeOrderNotFound, "order %s is not tracked by this strategy", orderID)
	}

	ids := []string{orderID}
	if order.OCAGroupID.IsSome() {
		ids = append([]string(nil), m.ocaGroups[order.OCAGroupID.Unwrap()]...)
	}

	m.mu.Unlock()

	for _, id := range ids {
		snap := m.snapshot(id)
		if snap.IsTerminal() {
			continue
		}

		if err := m.venue.CancelOrder(ctx, id); err != nil {
			return err
		}

		// The requested order is a plain cancel; only its paired legs go
		// out with the OCA label.
		reason := types.OrderReasonCancelled
		if id != orderID {
			reason = types.OrderReasonOCA
		}

		m.markCancelled(id, reason)
	}

	return nil
}

// CancelGroup cancels every leg of the OCA group.
func (m *OrderManager) CancelGroup(ctx context.Context, groupID string) error {
	m.mu.Lock()
	ids := append([]string(nil), m.ocaGroups[groupID]...)
	m.mu.Unlock()

	if len(ids) == 0 {
		return errors.Newf(errors.ErrCodeOrderNotFound, "unknown OCA group %s", groupID)
	}

	return m.Cancel(ctx, ids[0])
}

// CancelAll cancels every active order of the strategy.
func (m *OrderManager) CancelAll(ctx context.Context) error {
	for _, order := range m.ActiveOrders() {
		if err := m.Cancel(ctx, order.ID); err != nil {
			return err
		}
	}

	return nil
}

// MoveStop changes the stop price of the active stop leg of an open OCA
// group. The new price goes through the boundary rounding rule.
func (m *OrderManager) MoveStop(ctx context.Context, groupID string, newStopPrice float64) error {
	m.mu.Lock()

	ids, ok := m.ocaGroups[groupID]
	if !ok {
		m.mu.Unlock()

		return errors.Newf(errors.ErrCodeOrderNotFound, "unknown OCA group %s", groupID)
	}

	var stop *types.Order

	for _, id := range ids {
		order := m.orders[id]
		if order.Type == types.OrderTypeStop && order.IsActive() {
			stop = order

			break
		}
	}

	if stop == nil {
		m.mu.Unlock()

		return errors.Newf(errors.ErrCodeOrderState, "OCA group %s has no active stop to move", groupID)
	}

	rounded, err := risk.AddPennyAndRoundStop(newStopPrice, stop.Side)
	if err != nil {
		m.mu.Unlock()

		return err
	}

	stop.StopPrice = optional.Some(rounded)
	stop.UpdatedAt = m.now()
	updated := *stop
	m.mu.Unlock()

	return m.venue.ModifyOrder(ctx, updated)
}

// Position derives the current position from the filled orders.
func (m *OrderManager) Position() types.Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	orders := make([]types.Order, 0, len(m.orders))
	for _, o := range m.orders {
		orders = append(orders, *o)
	}

	return types.ComputePosition(m.tradestrategy.Symbol, orders)
}

// IsPositionCovered reports whether every unit of open quantity has an
// active protective stop outstanding. A flat position is vacuously covered.
func (m *OrderManager) IsPositionCovered() bool {
	position := m.Position()
	if position.IsFlat() {
		return true
	}

	return m.protectiveQuantity() >= math.Abs(position.OpenQuantity)
}

// HasActiveOrders reports whether any tracked order is still working.
func (m *OrderManager) HasActiveOrders() bool {
	return len(m.ActiveOrders()) > 0
}

// ActiveOrders returns snapshots of all working orders.
func (m *OrderManager) ActiveOrders() []types.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]types.Order, 0)

	for _, o := range m.orders {
		if o.IsActive() {
			out = append(out, *o)
		}
	}

	return out
}

// Orders returns snapshots of every tracked order, active or terminal.
func (m *OrderManager) Orders() []types.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]types.Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, *o)
	}

	return out
}

// OnFill implements venue.ExecutionListener. Fills for orders of other
// strategies are ignored. A fill that completes an OCA leg cancels the
// paired legs.
func (m *OrderManager) OnFill(orderID string, fillQty, fillPrice float64, at time.Time) {
	m.mu.Lock()

	order, ok := m.orders[orderID]
	if !ok {
		m.mu.Unlock()

		return
	}

	if err := order.ApplyFill(fillQty, fillPrice, at); err != nil {
		m.mu.Unlock()
		m.log.Warn("fill could not be applied",
			zap.String("order_id", orderID),
			zap.Error(err),
		)

		return
	}

	snapshot := *order
	listener := m.fillListener

	var siblings []string
	if order.Status == types.OrderStatusFilled && order.OCAGroupID.IsSome() {
		for _, id := range m.ocaGroups[order.OCAGroupID.Unwrap()] {
			if id != orderID {
				siblings = append(siblings, id)
			}
		}
	}

	m.mu.Unlock()

	// One leg of the OCA group filled: the venue may not know the group, so
	// the manager cancels the paired legs itself.
	for _, id := range siblings {
		snap := m.snapshot(id)
		if snap.IsTerminal() {
			continue
		}

		if err := m.venue.CancelOrder(context.Background(), id); err != nil {
			m.log.Error("failed to cancel OCA sibling",
				zap.String("order_id", id),
				zap.Error(err),
			)

			continue
		}

		m.markCancelled(id, types.OrderReasonOCA)
	}

	if listener != nil {
		listener(snapshot, fillQty, fillPrice, at)
	}
}

// OnOrderStatus implements venue.ExecutionListener.
func (m *OrderManager) OnOrderStatus(orderID string, status types.OrderStatus, reason string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[orderID]
	if !ok {
		return
	}

	if err := order.Transition(status, at); err != nil {
		// Late or duplicate venue status for an order that already reached a
		// terminal state; keep the local state.
		m.log.Debug("ignoring stale order status",
			zap.String("order_id", orderID),
			zap.String("status", string(status)),
			zap.String("reason", reason),
		)
	}
}

func (m *OrderManager) track(order *types.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.orders[order.ID] = order
}

func (m *OrderManager) submit(ctx context.Context, orderID string) error {
	if _, err := m.venue.SubmitOrder(ctx, m.snapshot(orderID)); err != nil {
		m.mu.Lock()
		if order, ok := m.orders[orderID]; ok {
			_ = order.Transition(types.OrderStatusRejected, m.now())
		}
		m.mu.Unlock()

		return errors.Wrapf(errors.ErrCodeVenueRejected, err, "venue rejected order %s", orderID)
	}

	return nil
}

func (m *OrderManager) snapshot(orderID string) types.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	if order, ok := m.orders[orderID]; ok {
		return *order
	}

	return types.Order{}
}

func (m *OrderManager) markCancelled(orderID, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if order, ok := m.orders[orderID]; ok && !order.IsTerminal() {
		_ = order.Transition(types.OrderStatusCancelled, m.now())
		order.Reason.Message = reason
	}
}

// protectiveQuantity sums the remaining quantity of active stop orders.
func (m *OrderManager) protectiveQuantity() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0.0

	for _, o := range m.orders {
		if o.IsActive() && (o.Type == types.OrderTypeStop || o.Type == types.OrderTypeStopLimit || o.Type == types.OrderTypeTrailing) {
			total += o.RemainingQuantity()
		}
	}

	return total
}
