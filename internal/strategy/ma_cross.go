package strategy

import (
	"context"
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/trade-manager/trade-engine/internal/engine"
	"github.com/trade-manager/trade-engine/internal/indicator"
	"github.com/trade-manager/trade-engine/internal/risk"
	"github.com/trade-manager/trade-engine/internal/types"
	"github.com/trade-manager/trade-engine/pkg/errors"
	"go.uber.org/zap"
)

// MACrossConfig parameterizes the moving-average cross rule.
type MACrossConfig struct {
	FastPeriod    int     `json:"fastPeriod" jsonschema:"title=Fast Period,description=Lookback of the fast EMA in bars,minimum=1" validate:"required,gt=0"`
	SlowPeriod    int     `json:"slowPeriod" jsonschema:"title=Slow Period,description=Lookback of the slow SMA in bars,minimum=2" validate:"required,gt=0"`
	StopOffset    float64 `json:"stopOffset" jsonschema:"title=Stop Offset,description=Distance between entry and protective stop in price units,minimum=0" validate:"required,gt=0"`
	AccountMargin float64 `json:"accountMargin" jsonschema:"title=Account Margin,description=Account buying power in USD,minimum=0" validate:"required,gt=0"`
}

// Validate validates the MACrossConfig struct.
func (c *MACrossConfig) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeRuleConfigError, "invalid ma cross config", err)
	}

	if c.FastPeriod >= c.SlowPeriod {
		return errors.Newf(errors.ErrCodeRuleConfigError,
			"fast period %d must be shorter than slow period %d", c.FastPeriod, c.SlowPeriod)
	}

	return nil
}

// ParseMACrossConfig parses a JSON configuration string.
func ParseMACrossConfig(jsonConfig string) (*MACrossConfig, error) {
	var config MACrossConfig
	if err := json.Unmarshal([]byte(jsonConfig), &config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeRuleConfigError, "failed to parse ma cross config", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// MACrossRule enters long when a fast EMA crosses above a slow SMA, brackets
// the filled position, and completes once covered. One entry per strategy.
type MACrossRule struct {
	config   MACrossConfig
	wasBelow bool
	entered  bool
}

// NewMACrossRule builds the rule with the given parameters.
func NewMACrossRule(config MACrossConfig) *MACrossRule {
	return &MACrossRule{config: config}
}

// OnInit implements engine.Rule. It attaches the two moving averages to the
// strategy's dataset; existing bars are replayed into them on attach.
func (r *MACrossRule) OnInit(ctx *engine.RuleContext) error {
	if err := r.config.Validate(); err != nil {
		return err
	}

	fast := indicator.NewEMA()
	if err := fast.Config(r.config.FastPeriod); err != nil {
		return err
	}

	slow := indicator.NewSMA()
	if err := slow.Config(r.config.SlowPeriod); err != nil {
		return err
	}

	if err := ctx.Dataset.AddIndicator(fast); err != nil {
		return err
	}

	return ctx.Dataset.AddIndicator(slow)
}

// OnBar implements engine.Rule.
func (r *MACrossRule) OnBar(ctx *engine.RuleContext, bar types.Bar) error {
	position := ctx.Orders.Position()

	if !position.IsFlat() {
		if ctx.Orders.IsPositionCovered() {
			ctx.Complete()

			return nil
		}

		return r.protect(ctx, position)
	}

	if r.entered {
		if !ctx.Orders.HasActiveOrders() {
			ctx.Complete()
		}

		return nil
	}

	fast := ctx.Dataset.LastIndicatorValue(indicator.IndicatorTypeEMA)
	slow := ctx.Dataset.LastIndicatorValue(indicator.IndicatorTypeSMA)

	if fast.IsNone() || slow.IsNone() {
		return nil
	}

	above := fast.Unwrap() > slow.Unwrap()

	defer func() { r.wasBelow = !above }()

	if !above || !r.wasBelow {
		return nil
	}

	ctx.Log.Info("fast average crossed above slow, entering long",
		zap.Float64("fast", fast.Unwrap()),
		zap.Float64("slow", slow.Unwrap()),
	)

	return r.enter(ctx, bar)
}

// OnCancel implements engine.Rule.
func (r *MACrossRule) OnCancel(_ *engine.RuleContext) {}

func (r *MACrossRule) enter(ctx *engine.RuleContext, bar types.Bar) error {
	entryPrice, err := risk.AddPennyAndRoundStop(bar.Close, types.SideBuy)
	if err != nil {
		return err
	}

	quantity, err := risk.Size(entryPrice, entryPrice-r.config.StopOffset, ctx.Tradestrategy.Risk, r.config.AccountMargin)
	if err != nil {
		return err
	}

	if quantity <= 0 {
		ctx.Complete()

		return nil
	}

	_, err = ctx.Orders.CreateEntry(context.Background(), types.SideBuy, types.OrderTypeMarket, quantity,
		optional.None[float64](), optional.None[float64](),
		types.Reason{Reason: types.OrderReasonEntry, Message: "ma cross entry"})
	if err != nil {
		return err
	}

	r.entered = true

	return nil
}

func (r *MACrossRule) protect(ctx *engine.RuleContext, position types.Position) error {
	stopPrice := position.AvgEntryPrice - r.config.StopOffset
	targetPrice := position.AvgEntryPrice + 2*r.config.StopOffset

	_, err := ctx.Orders.CreateBracket(context.Background(), stopPrice, targetPrice, position.OpenQuantity)

	return err
}
