package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type BarTestSuite struct {
	suite.Suite
}

func TestBarSuite(t *testing.T) {
	suite.Run(t, new(BarTestSuite))
}

func (suite *BarTestSuite) testPeriod() Period {
	return NewPeriod(time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC), 5*time.Minute)
}

func (suite *BarTestSuite) TestValidate() {
	tests := []struct {
		name        string
		bar         Bar
		expectError bool
	}{
		{
			name: "valid bar",
			bar: Bar{
				Symbol: "AAPL",
				Period: suite.testPeriod(),
				Open:   100, High: 101, Low: 99, Close: 100.5,
				Volume: 1000, VWAP: 100.2, TradeCount: 10,
			},
			expectError: false,
		},
		{
			name: "high below close",
			bar: Bar{
				Symbol: "AAPL",
				Period: suite.testPeriod(),
				Open:   100, High: 100, Low: 99, Close: 101,
				Volume: 1000,
			},
			expectError: true,
		},
		{
			name: "low above open",
			bar: Bar{
				Symbol: "AAPL",
				Period: suite.testPeriod(),
				Open:   100, High: 102, Low: 101, Close: 101.5,
				Volume: 1000,
			},
			expectError: true,
		},
		{
			name: "inverted period",
			bar: Bar{
				Symbol: "AAPL",
				Period: Period{Start: time.Now(), End: time.Now().Add(-time.Minute), Duration: time.Minute},
				Open:   100, High: 101, Low: 99, Close: 100,
				Volume: 1000,
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			err := tt.bar.Validate()
			if tt.expectError {
				suite.Error(err)
			} else {
				suite.NoError(err)
			}
		})
	}
}

func (suite *BarTestSuite) TestMerge() {
	base := Bar{
		Symbol: "AAPL",
		Period: suite.testPeriod(),
		Open:   100, High: 101, Low: 99, Close: 100.5,
		Volume: 1000, VWAP: 100.0, TradeCount: 10,
		LastUpdated: time.Date(2024, 1, 2, 9, 31, 0, 0, time.UTC),
	}
	late := Bar{
		Symbol: "AAPL",
		Period: suite.testPeriod(),
		Open:   100.5, High: 102, Low: 98.5, Close: 101,
		Volume: 500, VWAP: 101.0, TradeCount: 5,
		LastUpdated: time.Date(2024, 1, 2, 9, 34, 0, 0, time.UTC),
	}

	base.Merge(late)

	suite.Equal(100.0, base.Open, "open is kept from the first bar")
	suite.Equal(102.0, base.High)
	suite.Equal(98.5, base.Low)
	suite.Equal(101.0, base.Close, "close takes the latest value")
	suite.Equal(1500.0, base.Volume)
	suite.Equal(int64(15), base.TradeCount)
	// Volume-weighted blend: (100*1000 + 101*500) / 1500
	suite.InDelta(100.333333, base.VWAP, 1e-6)
	suite.Equal(late.LastUpdated, base.LastUpdated)
}

func (suite *BarTestSuite) TestMergeZeroVolumeKeepsVWAP() {
	base := Bar{
		Symbol: "AAPL",
		Period: suite.testPeriod(),
		Open:   100, High: 101, Low: 99, Close: 100.5,
		Volume: 0, VWAP: 0,
	}
	late := Bar{
		Symbol: "AAPL",
		Period: suite.testPeriod(),
		Open:   100, High: 101, Low: 99, Close: 100.5,
		Volume: 0, VWAP: 0,
	}

	base.Merge(late)
	suite.Equal(0.0, base.VWAP)
	suite.Equal(0.0, base.Volume)
}
