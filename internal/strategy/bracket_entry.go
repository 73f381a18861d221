// Package strategy holds the built-in trading rules shipped with the
// engine. Each rule has a JSON-configurable parameter struct with a
// generated schema, and registers into an engine.Registry under a
// versioned name.
package strategy

import (
	"context"
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/trade-manager/trade-engine/internal/engine"
	"github.com/trade-manager/trade-engine/internal/risk"
	"github.com/trade-manager/trade-engine/internal/types"
	"github.com/trade-manager/trade-engine/pkg/errors"
	"go.uber.org/zap"
)

// BracketEntryConfig parameterizes the single-entry bracket rule.
type BracketEntryConfig struct {
	// StopOffset is the risk per share: the stop is placed this far below a
	// long entry.
	StopOffset float64 `json:"stopOffset" jsonschema:"title=Stop Offset,description=Distance between entry and protective stop in price units,minimum=0" validate:"required,gt=0"`
	// TargetRatios are reward multiples of the stop offset; one bracket leg
	// pair is created per ratio with an equal share of the position.
	TargetRatios []float64 `json:"targetRatios" jsonschema:"title=Target Ratios,description=Reward multiples of the stop offset for each bracket split" validate:"required,min=1,dive,gt=0"`
	// AccountMargin is the buying power used for the margin cap in sizing.
	AccountMargin float64 `json:"accountMargin" jsonschema:"title=Account Margin,description=Account buying power in USD,minimum=0" validate:"required,gt=0"`
}

// Validate validates the BracketEntryConfig struct.
func (c *BracketEntryConfig) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeRuleConfigError, "invalid bracket entry config", err)
	}

	return nil
}

// ParseBracketEntryConfig parses a JSON configuration string.
func ParseBracketEntryConfig(jsonConfig string) (*BracketEntryConfig, error) {
	var config BracketEntryConfig
	if err := json.Unmarshal([]byte(jsonConfig), &config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeRuleConfigError, "failed to parse bracket entry config", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// BracketEntryRule makes one long entry sized by the tradestrategy's risk
// configuration, protects the filled position with split bracket orders,
// and completes once the position is fully covered. It never re-enters.
type BracketEntryRule struct {
	config  BracketEntryConfig
	entered bool
}

// NewBracketEntryRule builds the rule with the given parameters.
func NewBracketEntryRule(config BracketEntryConfig) *BracketEntryRule {
	return &BracketEntryRule{config: config}
}

// OnInit implements engine.Rule.
func (r *BracketEntryRule) OnInit(ctx *engine.RuleContext) error {
	return r.config.Validate()
}

// OnBar implements engine.Rule.
func (r *BracketEntryRule) OnBar(ctx *engine.RuleContext, bar types.Bar) error {
	position := ctx.Orders.Position()

	if position.IsFlat() {
		if r.entered {
			// The single entry attempt ran its course without a position
			// remaining; nothing further to do.
			ctx.Complete()

			return nil
		}

		return r.enter(ctx, bar)
	}

	if ctx.Orders.IsPositionCovered() {
		ctx.Complete()

		return nil
	}

	return r.protect(ctx, position)
}

// OnCancel implements engine.Rule.
func (r *BracketEntryRule) OnCancel(_ *engine.RuleContext) {}

func (r *BracketEntryRule) enter(ctx *engine.RuleContext, bar types.Bar) error {
	entryPrice, err := risk.AddPennyAndRoundStop(bar.Close, types.SideBuy)
	if err != nil {
		return err
	}

	stopPrice := entryPrice - r.config.StopOffset

	quantity, err := risk.Size(entryPrice, stopPrice, ctx.Tradestrategy.Risk, r.config.AccountMargin)
	if err != nil {
		return err
	}

	if quantity <= 0 {
		ctx.Log.Info("risk budget too small for one lot, completing without entry",
			zap.Float64("entry", entryPrice),
			zap.Float64("stop", stopPrice),
		)
		ctx.Complete()

		return nil
	}

	_, err = ctx.Orders.CreateEntry(context.Background(), types.SideBuy, types.OrderTypeLimit, quantity,
		optional.Some(entryPrice), optional.None[float64](),
		types.Reason{Reason: types.OrderReasonEntry, Message: "bracket entry"})
	if err != nil {
		return err
	}

	r.entered = true

	return nil
}

// protect covers the open position with one bracket pair per target ratio.
// The quantity is split evenly with the remainder on the last pair.
func (r *BracketEntryRule) protect(ctx *engine.RuleContext, position types.Position) error {
	stopPrice := position.AvgEntryPrice - r.config.StopOffset
	splits := len(r.config.TargetRatios)
	share := float64(int(position.OpenQuantity) / splits)

	for i, ratio := range r.config.TargetRatios {
		quantity := share
		if i == splits-1 {
			quantity = position.OpenQuantity - share*float64(splits-1)
		}

		targetPrice := position.AvgEntryPrice + ratio*r.config.StopOffset

		if _, err := ctx.Orders.CreateBracket(context.Background(), stopPrice, targetPrice, quantity); err != nil {
			return err
		}
	}

	return nil
}
