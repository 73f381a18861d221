// Package risk provides pure position-sizing math: quantity under a fixed
// dollar risk budget with a margin cap, and the price rounding applied to
// entry, stop and target prices.
package risk

import (
	"github.com/shopspring/decimal"
	"github.com/trade-manager/trade-engine/internal/types"
	"github.com/trade-manager/trade-engine/pkg/errors"
)

// Size computes the order quantity for an entry at entryPrice protected by a
// stop at stopPrice. The quantity risks at most cfg.FixedRisk dollars; when
// cfg.MaxMarginPct is set the notional is additionally capped at
// accountMargin*MaxMarginPct. The result is rounded down to cfg.LotSize.
// Fails when the stop equals the entry, since the risk per share degenerates
// to zero. Arithmetic is decimal so that cent-denominated stops divide the
// risk budget exactly.
func Size(entryPrice, stopPrice float64, cfg types.RiskConfig, accountMargin float64) (float64, error) {
	entry := decimal.NewFromFloat(entryPrice)
	stop := decimal.NewFromFloat(stopPrice)

	riskPerShare := entry.Sub(stop).Abs()
	if riskPerShare.IsZero() {
		return 0, errors.Newf(errors.ErrCodeInvalidRiskInput, "stop price %f equals entry price %f", stopPrice, entryPrice)
	}

	if !entry.IsPositive() {
		return 0, errors.Newf(errors.ErrCodeInvalidRiskInput, "entry price must be positive, got %f", entryPrice)
	}

	quantity := decimal.NewFromFloat(cfg.FixedRisk).Div(riskPerShare).Floor()

	if cfg.MaxMarginPct > 0 {
		maxNotional := decimal.NewFromFloat(accountMargin).Mul(decimal.NewFromFloat(cfg.MaxMarginPct))

		byMargin := maxNotional.Div(entry).Floor()
		if byMargin.LessThan(quantity) {
			quantity = byMargin
		}
	}

	if cfg.LotSize > 1 {
		lot := decimal.NewFromFloat(cfg.LotSize)
		quantity = quantity.Div(lot).Floor().Mul(lot)
	}

	if quantity.IsNegative() {
		return 0, nil
	}

	out, _ := quantity.Float64()

	return out, nil
}
