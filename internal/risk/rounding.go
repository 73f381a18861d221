package risk

import (
	"github.com/shopspring/decimal"
	"github.com/trade-manager/trade-engine/internal/types"
	"github.com/trade-manager/trade-engine/pkg/errors"
)

var (
	tick     = decimal.NewFromFloat(0.01)
	halfStep = decimal.NewFromFloat(0.5)
)

// AddPennyAndRoundStop rounds an order price away from the crowded
// half-dollar boundaries. Prices sitting within one tick of a half-dollar
// (x.00 or x.50) are pushed one tick past the boundary in the direction that
// is conservative for the order's purpose: up for a BUY (entry on a long, or
// a buy-to-close on a short), down for a SELL (entry on a short, or a
// sell-to-close on a long). Inputs that are not cent-aligned are first
// rounded to the nearest cent in the same directional sense, without a
// forced nudge.
//
// The boundary rule is deliberately literal:
//
//	AddPennyAndRoundStop(19.99, BUY)  = 20.01
//	AddPennyAndRoundStop(21.01, SELL) = 20.99
//	AddPennyAndRoundStop(19.01, SELL) = 18.99
//	AddPennyAndRoundStop(19.19, BUY)  = 19.19
func AddPennyAndRoundStop(price float64, side types.Side) (float64, error) {
	if price <= 0 {
		return 0, errors.Newf(errors.ErrCodeInvalidRiskInput, "price must be positive, got %f", price)
	}

	if side != types.SideBuy && side != types.SideSell {
		return 0, errors.Newf(errors.ErrCodeInvalidParameter, "unknown side %q", side)
	}

	p := decimal.NewFromFloat(price)

	// Directional cent alignment for off-grid inputs.
	cents := p.Div(tick)
	if !cents.Equal(cents.Truncate(0)) {
		if side == types.SideBuy {
			p = cents.Ceil().Mul(tick)
		} else {
			p = cents.Floor().Mul(tick)
		}
	}

	// Nearest half-dollar boundary.
	boundary := p.Div(halfStep).Round(0).Mul(halfStep)

	if p.Sub(boundary).Abs().Cmp(tick) <= 0 {
		if side == types.SideBuy {
			p = boundary.Add(tick)
		} else {
			p = boundary.Sub(tick)
		}
	}

	out, _ := p.Float64()

	return out, nil
}
