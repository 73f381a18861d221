package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/trade-manager/trade-engine/pkg/errors"
)

type Side string

type OrderType string

type OrderStatus string

type TimeInForce string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

const (
	OrderTypeMarket    OrderType = "MARKET"
	OrderTypeLimit     OrderType = "LIMIT"
	OrderTypeStop      OrderType = "STOP"
	OrderTypeStopLimit OrderType = "STOP_LIMIT"
	OrderTypeTrailing  OrderType = "TRAILING"
)

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusSubmitted OrderStatus = "SUBMITTED"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRejected  OrderStatus = "REJECTED"
)

const (
	TimeInForceDay TimeInForce = "DAY"
	TimeInForceGTC TimeInForce = "GTC"
)

const (
	OrderReasonEntry      string = "entry"
	OrderReasonStopLoss   string = "stop_loss"
	OrderReasonTakeProfit string = "take_profit"
	OrderReasonCutoff     string = "cutoff"
	OrderReasonCancelled  string = "cancelled"
	OrderReasonOCA        string = "oca_cancelled"
	OrderReasonError      string = "strategy_error"
)

// Reason records why an order was created or cancelled.
type Reason struct {
	Reason  string `yaml:"reason" json:"reason" csv:"reason" validate:"required"`
	Message string `yaml:"message" json:"message" csv:"message"`
}

// Order is a single instruction to the execution venue. An order belongs to
// exactly one tradestrategy and references exactly one instrument symbol.
type Order struct {
	ID              string      `yaml:"id" json:"id" csv:"id"`
	TradestrategyID string      `yaml:"tradestrategy_id" json:"tradestrategy_id" csv:"tradestrategy_id" validate:"required"`
	Symbol          string      `yaml:"symbol" json:"symbol" csv:"symbol" validate:"required"`
	Side            Side        `yaml:"side" json:"side" csv:"side" validate:"required,oneof=BUY SELL"`
	Type            OrderType   `yaml:"type" json:"type" csv:"type" validate:"required,oneof=MARKET LIMIT STOP STOP_LIMIT TRAILING"`
	Quantity        float64     `yaml:"quantity" json:"quantity" csv:"quantity" validate:"required,gt=0"`
	TimeInForce     TimeInForce `yaml:"time_in_force" json:"time_in_force" csv:"time_in_force" validate:"required,oneof=DAY GTC"`
	// LimitPrice is required for LIMIT and STOP_LIMIT orders. None otherwise.
	LimitPrice optional.Option[float64] `yaml:"limit_price" json:"limit_price" csv:"limit_price"`
	// StopPrice is the trigger price for STOP, STOP_LIMIT and TRAILING orders.
	StopPrice optional.Option[float64] `yaml:"stop_price" json:"stop_price" csv:"stop_price"`
	// OCAGroupID links this order to a one-cancels-all group. None for
	// standalone orders.
	OCAGroupID optional.Option[string] `yaml:"oca_group_id" json:"oca_group_id" csv:"oca_group_id"`
	Status     OrderStatus             `yaml:"status" json:"status" csv:"status"`
	// FilledQuantity accumulates partial fills while the order is SUBMITTED.
	FilledQuantity float64   `yaml:"filled_quantity" json:"filled_quantity" csv:"filled_quantity"`
	AvgFillPrice   float64   `yaml:"avg_fill_price" json:"avg_fill_price" csv:"avg_fill_price"`
	Reason         Reason    `yaml:"reason" json:"reason" csv:"reason" validate:"required"`
	CreatedAt      time.Time `yaml:"created_at" json:"created_at" csv:"created_at"`
	UpdatedAt      time.Time `yaml:"updated_at" json:"updated_at" csv:"updated_at"`
	// Version is assigned and bumped by the persistence layer.
	Version int `yaml:"version" json:"version" csv:"version"`
}

// Validate validates the Order struct.
func (o *Order) Validate() error {
	validate := validator.New()
	if err := validate.Struct(o); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidOrder, "invalid order", err)
	}

	switch o.Type {
	case OrderTypeLimit, OrderTypeStopLimit:
		if o.LimitPrice.IsNone() {
			return errors.Newf(errors.ErrCodeInvalidOrder, "%s order requires a limit price", o.Type)
		}
	case OrderTypeStop, OrderTypeTrailing:
		if o.StopPrice.IsNone() {
			return errors.Newf(errors.ErrCodeInvalidOrder, "%s order requires a stop price", o.Type)
		}
	case OrderTypeMarket:
	}

	if o.Type == OrderTypeStopLimit && o.StopPrice.IsNone() {
		return errors.New(errors.ErrCodeInvalidOrder, "STOP_LIMIT order requires a stop price")
	}

	return nil
}

// IsTerminal reports whether the order reached a final state.
func (o *Order) IsTerminal() bool {
	switch o.Status {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return true
	case OrderStatusPending, OrderStatusSubmitted:
		return false
	}

	return false
}

// IsActive reports whether the order is still working at the venue.
func (o *Order) IsActive() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusSubmitted
}

// IsPartiallyFilled reports whether the order is SUBMITTED with some
// accumulated fill quantity.
func (o *Order) IsPartiallyFilled() bool {
	return o.Status == OrderStatusSubmitted && o.FilledQuantity > 0 && o.FilledQuantity < o.Quantity
}

// RemainingQuantity returns the unfilled portion of the order.
func (o *Order) RemainingQuantity() float64 {
	return o.Quantity - o.FilledQuantity
}

// SignedQuantity returns the filled quantity signed by side: positive for
// buys, negative for sells.
func (o *Order) SignedQuantity() float64 {
	if o.Side == SideSell {
		return -o.FilledQuantity
	}

	return o.FilledQuantity
}

// Transition moves the order to the next status, enforcing the order state
// machine PENDING -> SUBMITTED -> {FILLED | CANCELLED | REJECTED}.
func (o *Order) Transition(next OrderStatus, at time.Time) error {
	if o.Status == next {
		return nil
	}

	valid := false

	switch o.Status {
	case OrderStatusPending:
		valid = next == OrderStatusSubmitted || next == OrderStatusCancelled || next == OrderStatusRejected
	case OrderStatusSubmitted:
		valid = next == OrderStatusFilled || next == OrderStatusCancelled || next == OrderStatusRejected
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		valid = false
	}

	if !valid {
		return errors.Newf(errors.ErrCodeOrderState, "order %s cannot transition from %s to %s", o.ID, o.Status, next)
	}

	o.Status = next
	o.UpdatedAt = at

	return nil
}

// ApplyFill accumulates a (possibly partial) fill and promotes the order to
// FILLED once the full quantity is executed. The average fill price is a
// quantity-weighted blend of all fills.
func (o *Order) ApplyFill(quantity, price float64, at time.Time) error {
	if !o.IsActive() {
		return errors.Newf(errors.ErrCodeOrderState, "order %s is %s, cannot apply fill", o.ID, o.Status)
	}

	if quantity <= 0 || quantity > o.RemainingQuantity() {
		return errors.Newf(errors.ErrCodeInvalidParameter, "fill quantity %f out of range for order %s", quantity, o.ID)
	}

	total := o.FilledQuantity + quantity
	o.AvgFillPrice = (o.AvgFillPrice*o.FilledQuantity + price*quantity) / total
	o.FilledQuantity = total
	o.UpdatedAt = at

	if o.FilledQuantity >= o.Quantity {
		o.Status = OrderStatusFilled
	} else if o.Status == OrderStatusPending {
		// A fill implies the venue accepted the order.
		o.Status = OrderStatusSubmitted
	}

	return nil
}
