// Package mocks provides synthetic market data for tests and benchmarks.
package mocks

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/trade-manager/trade-engine/internal/types"
)

// DataGenerator produces realistic bar series for testing and benchmarking.
type DataGenerator struct {
	rng *rand.Rand
}

// NewDataGenerator creates a generator seeded for reproducible output.
func NewDataGenerator(seed int64) *DataGenerator {
	return &DataGenerator{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// GeneratorConfig configures how bars are generated.
type GeneratorConfig struct {
	// Symbol is the instrument symbol (e.g. "AAPL").
	Symbol string
	// StartTime is the period start of the first bar.
	StartTime time.Time
	// Interval is the bar duration.
	Interval time.Duration
	// Count is the number of bars to generate.
	Count int
	// InitialPrice is the open of the first bar.
	InitialPrice float64
	// Volatility controls per-bar price movement (0.002 = 0.2% per bar).
	Volatility float64
	// Trend is the total drift across the whole series, -0.01 to 0.01.
	Trend float64
	// VolumeBase is the average volume per bar.
	VolumeBase float64
	// VolumeVariance is the relative variance in volume, 0.0 to 1.0.
	VolumeVariance float64
}

// DefaultConfig returns a neutral intraday series configuration.
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		Symbol:         "TEST",
		StartTime:      time.Date(2024, 1, 3, 14, 30, 0, 0, time.UTC),
		Interval:       5 * time.Minute,
		Count:          1000,
		InitialPrice:   100.0,
		Volatility:     0.002,
		Trend:          0.0,
		VolumeBase:     10000,
		VolumeVariance: 0.3,
	}
}

// Generate creates a bar series following geometric Brownian motion.
// Bars are contiguous and already carry their period and vwap.
func (g *DataGenerator) Generate(config GeneratorConfig) []types.Bar {
	bars := make([]types.Bar, config.Count)
	currentPrice := config.InitialPrice
	currentTime := config.StartTime

	for i := 0; i < config.Count; i++ {
		open := currentPrice

		// Box-Muller transform for a normally distributed return.
		u1 := g.rng.Float64()
		u2 := g.rng.Float64()
		z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)

		drift := config.Trend / float64(config.Count)

		closePrice := open * (1 + config.Volatility*z + drift)
		if closePrice <= 0 {
			closePrice = open * 0.99
		}

		highExtension := math.Abs(g.rng.Float64() * config.Volatility * open * 0.5)
		lowExtension := math.Abs(g.rng.Float64() * config.Volatility * open * 0.5)

		high := math.Max(open, closePrice) + highExtension

		low := math.Min(open, closePrice) - lowExtension
		if low <= 0 {
			low = math.Min(open, closePrice) * 0.99
		}

		volume := config.VolumeBase * (1.0 + (g.rng.Float64()*2-1)*config.VolumeVariance)
		if volume < 0 {
			volume = config.VolumeBase * 0.1
		}

		period := types.NewPeriod(currentTime, config.Interval)

		bars[i] = types.Bar{
			Symbol:      config.Symbol,
			Period:      period,
			Open:        roundToCents(open),
			High:        roundToCents(high),
			Low:         roundToCents(low),
			Close:       roundToCents(closePrice),
			Volume:      math.Round(volume),
			VWAP:        roundToCents((high + low + closePrice) / 3),
			TradeCount:  1 + g.rng.Int63n(200),
			LastUpdated: period.End,
		}

		currentPrice = closePrice
		currentTime = currentTime.Add(config.Interval)
	}

	return bars
}

// GenerateMultiSymbol generates one series per symbol, varying the initial
// price and volatility so the symbols do not move in lockstep.
func (g *DataGenerator) GenerateMultiSymbol(symbols []string, baseConfig GeneratorConfig) []types.Bar {
	var all []types.Bar

	for _, symbol := range symbols {
		config := baseConfig
		config.Symbol = symbol
		config.InitialPrice = baseConfig.InitialPrice * (0.8 + g.rng.Float64()*0.4)
		config.Volatility = baseConfig.Volatility * (0.8 + g.rng.Float64()*0.4)

		all = append(all, g.Generate(config)...)
	}

	return all
}

// WriteCSV writes bars to a CSV file the historical data source can read.
func WriteCSV(path string, bars []types.Bar) error {
	var sb strings.Builder

	sb.WriteString("time,symbol,open,high,low,close,volume,vwap,trade_count\n")

	for _, bar := range bars {
		fmt.Fprintf(&sb, "%s,%s,%.2f,%.2f,%.2f,%.2f,%.0f,%.2f,%d\n",
			bar.Period.Start.UTC().Format("2006-01-02 15:04:05"),
			bar.Symbol, bar.Open, bar.High, bar.Low, bar.Close,
			bar.Volume, bar.VWAP, bar.TradeCount)
	}

	return os.WriteFile(path, []byte(sb.String()), 0o644)
}

func roundToCents(val float64) float64 {
	return math.Round(val*100) / 100
}
