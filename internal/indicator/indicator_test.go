package indicator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/trade-manager/trade-engine/internal/types"
)

type IndicatorTestSuite struct {
	suite.Suite
}

func TestIndicatorSuite(t *testing.T) {
	suite.Run(t, new(IndicatorTestSuite))
}

func barAt(i int, close float64) types.Bar {
	start := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC).Add(time.Duration(i) * 5 * time.Minute)

	return types.Bar{
		Symbol: "AAPL",
		Period: types.NewPeriod(start, 5*time.Minute),
		Open:   close, High: close + 1, Low: close - 1, Close: close,
		Volume: 1000, VWAP: close, TradeCount: 10,
	}
}

func (suite *IndicatorTestSuite) TestSMAWarmupAndValue() {
	sma := NewSMA()
	suite.NoError(sma.Config(3))

	suite.True(sma.Append(barAt(0, 10)).IsNone())
	suite.True(sma.Append(barAt(1, 11)).IsNone())

	v := sma.Append(barAt(2, 12))
	suite.True(v.IsSome())
	suite.InDelta(11.0, v.Unwrap(), 1e-9)

	// Window slides
	v = sma.Append(barAt(3, 15))
	suite.InDelta(38.0/3.0, v.Unwrap(), 1e-9)
}

func (suite *IndicatorTestSuite) TestSMAUpdateReplacesLast() {
	sma := NewSMA()
	suite.NoError(sma.Config(2))

	sma.Append(barAt(0, 10))
	sma.Append(barAt(1, 12))

	v := sma.Update(barAt(1, 14))
	suite.InDelta(12.0, v.Unwrap(), 1e-9)
}

func (suite *IndicatorTestSuite) TestSMAConfigRejectsBadParams() {
	sma := NewSMA()
	suite.Error(sma.Config())
	suite.Error(sma.Config("three"))
	suite.Error(sma.Config(0))
}

func (suite *IndicatorTestSuite) TestEMASeedAndDecay() {
	ema := NewEMA()
	suite.NoError(ema.Config(3))

	suite.True(ema.Append(barAt(0, 10)).IsNone())
	suite.True(ema.Append(barAt(1, 11)).IsNone())

	seeded := ema.Append(barAt(2, 12))
	suite.InDelta(11.0, seeded.Unwrap(), 1e-9)

	// alpha = 0.5 for period 3: 14*0.5 + 11*0.5
	next := ema.Append(barAt(3, 14))
	suite.InDelta(12.5, next.Unwrap(), 1e-9)
}

func (suite *IndicatorTestSuite) TestEMAUpdateRecomputesFromPrev() {
	ema := NewEMA()
	suite.NoError(ema.Config(3))

	ema.Append(barAt(0, 10))
	ema.Append(barAt(1, 11))
	ema.Append(barAt(2, 12)) // seeded at 11
	ema.Append(barAt(3, 14)) // 12.5

	v := ema.Update(barAt(3, 16))
	// alpha = 0.5: 16*0.5 + 11*0.5
	suite.InDelta(13.5, v.Unwrap(), 1e-9)
}

func (suite *IndicatorTestSuite) TestATRValue() {
	atr := NewATR()
	suite.NoError(atr.Config(2))

	// Each bar has high-low = 2 and closes equal to opens, so gaps between
	// closes dominate when larger.
	suite.True(atr.Append(barAt(0, 10)).IsNone())

	v := atr.Append(barAt(1, 20))
	suite.True(v.IsSome())
	// TR1 = 2, TR2 = max(2, |21-10|, |19-10|) = 11
	suite.InDelta(6.5, v.Unwrap(), 1e-9)
}

func (suite *IndicatorTestSuite) TestATRUpdateReplacesLastRange() {
	atr := NewATR()
	suite.NoError(atr.Config(2))

	atr.Append(barAt(0, 10))
	atr.Append(barAt(1, 20))

	v := atr.Update(barAt(1, 12))
	// TR2 rebuilt against close 10: max(2, |13-10|, |11-10|) = 3
	suite.InDelta(2.5, v.Unwrap(), 1e-9)
}

func (suite *IndicatorTestSuite) TestVWAPCumulative() {
	vwap := NewVWAP()
	suite.NoError(vwap.Config())

	v := vwap.Append(barAt(0, 10))
	suite.True(v.IsSome())
	suite.InDelta(10.0, v.Unwrap(), 1e-9)

	// typical prices 10 and 20, equal volumes
	v = vwap.Append(barAt(1, 20))
	suite.InDelta(15.0, v.Unwrap(), 1e-9)

	// Update replaces the second bar's contribution
	v = vwap.Update(barAt(1, 30))
	suite.InDelta(20.0, v.Unwrap(), 1e-9)
}

func (suite *IndicatorTestSuite) TestVWAPResetsAcrossSessions() {
	vwap := NewVWAP()

	vwap.Append(barAt(0, 10))

	nextDay := barAt(0, 50)
	nextDay.Period = types.NewPeriod(nextDay.Period.Start.AddDate(0, 0, 1), nextDay.Period.Duration)

	v := vwap.Append(nextDay)
	suite.InDelta(50.0, v.Unwrap(), 1e-9)
}

func (suite *IndicatorTestSuite) TestRegistry() {
	registry := NewRegistry()

	suite.Len(registry.List(), 4)

	sma, err := registry.New(IndicatorTypeSMA)
	suite.NoError(err)
	suite.Equal(IndicatorTypeSMA, sma.Name())

	// Instances are independent
	other, err := registry.New(IndicatorTypeSMA)
	suite.NoError(err)
	suite.NotSame(sma, other)

	_, err = registry.New("UNKNOWN")
	suite.Error(err)

	err = registry.Register(IndicatorTypeSMA, NewSMA)
	suite.Error(err, "duplicate registration is rejected")
}
