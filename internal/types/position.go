package types

// PositionSide classifies the direction of an open position.
type PositionSide string

const (
	PositionSideLong  PositionSide = "LONG"
	PositionSideShort PositionSide = "SHORT"
	PositionSideFlat  PositionSide = "FLAT"
)

// Position is derived from the net of filled orders for one tradestrategy.
// It is never stored independently.
type Position struct {
	Symbol        string       `yaml:"symbol" json:"symbol" csv:"symbol"`
	OpenQuantity  float64      `yaml:"open_quantity" json:"open_quantity" csv:"open_quantity"`
	AvgEntryPrice float64      `yaml:"avg_entry_price" json:"avg_entry_price" csv:"avg_entry_price"`
	Side          PositionSide `yaml:"side" json:"side" csv:"side"`
}

// IsFlat reports whether the position has no open quantity.
func (p Position) IsFlat() bool {
	return p.OpenQuantity == 0
}

// ComputePosition derives the current position from the filled quantities of
// the given orders. Open quantity is the signed sum of buy/sell fills; the
// average entry price is the quantity-weighted price of the opening side.
func ComputePosition(symbol string, orders []Order) Position {
	var net, openAmount, openQty float64

	for _, o := range orders {
		if o.FilledQuantity == 0 {
			continue
		}

		net += o.SignedQuantity()
	}

	side := PositionSideFlat

	switch {
	case net > 0:
		side = PositionSideLong
	case net < 0:
		side = PositionSideShort
	}

	// Average entry is taken over the opening side only.
	for _, o := range orders {
		if o.FilledQuantity == 0 {
			continue
		}

		opening := (side == PositionSideLong && o.Side == SideBuy) ||
			(side == PositionSideShort && o.Side == SideSell)
		if opening {
			openAmount += o.AvgFillPrice * o.FilledQuantity
			openQty += o.FilledQuantity
		}
	}

	avgEntry := 0.0
	if openQty > 0 {
		avgEntry = openAmount / openQty
	}

	return Position{
		Symbol:        symbol,
		OpenQuantity:  net,
		AvgEntryPrice: avgEntry,
		Side:          side,
	}
}
