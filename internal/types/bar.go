package types

import (
	"time"

	"github.com/trade-manager/trade-engine/pkg/errors"
)

// Bar is an OHLCV summary of trades within one fixed time period.
type Bar struct {
	Symbol      string    `yaml:"symbol" json:"symbol" csv:"symbol" validate:"required"`
	Period      Period    `yaml:"period" json:"period" csv:"period"`
	Open        float64   `yaml:"open" json:"open" csv:"open" validate:"gt=0"`
	High        float64   `yaml:"high" json:"high" csv:"high" validate:"gt=0"`
	Low         float64   `yaml:"low" json:"low" csv:"low" validate:"gt=0"`
	Close       float64   `yaml:"close" json:"close" csv:"close" validate:"gt=0"`
	Volume      float64   `yaml:"volume" json:"volume" csv:"volume" validate:"gte=0"`
	VWAP        float64   `yaml:"vwap" json:"vwap" csv:"vwap" validate:"gte=0"`
	TradeCount  int64     `yaml:"trade_count" json:"trade_count" csv:"trade_count" validate:"gte=0"`
	LastUpdated time.Time `yaml:"last_updated" json:"last_updated" csv:"last_updated"`
}

// Validate checks the bar invariants: low <= open,close <= high and a valid period.
func (b *Bar) Validate() error {
	if err := b.Period.Validate(); err != nil {
		return err
	}

	if b.Low > b.Open || b.Low > b.Close || b.High < b.Open || b.High < b.Close || b.Low > b.High {
		return errors.Newf(errors.ErrCodeInvalidBar, "bar OHLC out of range: o=%f h=%f l=%f c=%f", b.Open, b.High, b.Low, b.Close)
	}

	if b.Volume < 0 {
		return errors.Newf(errors.ErrCodeInvalidBar, "bar volume is negative: %f", b.Volume)
	}

	return nil
}

// Merge folds a late update for the same period into the bar: open is kept,
// high/low extend, close takes the latest value, volume and trade count sum,
// and the vwap becomes a volume-weighted blend of both bars.
func (b *Bar) Merge(incoming Bar) {
	if incoming.High > b.High {
		b.High = incoming.High
	}

	if incoming.Low < b.Low {
		b.Low = incoming.Low
	}

	b.Close = incoming.Close

	totalVolume := b.Volume + incoming.Volume
	if totalVolume > 0 {
		b.VWAP = (b.VWAP*b.Volume + incoming.VWAP*incoming.Volume) / totalVolume
	}

	b.Volume = totalVolume
	b.TradeCount += incoming.TradeCount

	if incoming.LastUpdated.After(b.LastUpdated) {
		b.LastUpdated = incoming.LastUpdated
	}
}
