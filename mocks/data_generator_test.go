package mocks

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type DataGeneratorTestSuite struct {
	suite.Suite
}

func TestDataGeneratorTestSuite(t *testing.T) {
	suite.Run(t, new(DataGeneratorTestSuite))
}

func (s *DataGeneratorTestSuite) TestGenerateProducesValidContiguousBars() {
	gen := NewDataGenerator(42)
	config := DefaultConfig()
	config.Count = 500

	bars := gen.Generate(config)
	s.Require().Len(bars, 500)

	for i, bar := range bars {
		s.Require().NoError(bar.Validate(), "bar %d", i)
		s.Equal(config.Symbol, bar.Symbol)
		s.Equal(config.Interval, bar.Period.Duration)

		if i > 0 {
			s.Equal(bars[i-1].Period.End, bar.Period.Start, "bars must be contiguous")
			s.Equal(bars[i-1].Close, bar.Open, "open must continue from prior close")
		}
	}
}

func (s *DataGeneratorTestSuite) TestGenerateIsReproducible() {
	config := DefaultConfig()
	config.Count = 50

	first := NewDataGenerator(7).Generate(config)
	second := NewDataGenerator(7).Generate(config)
	s.Equal(first, second)
}

func (s *DataGeneratorTestSuite) TestGenerateMultiSymbol() {
	gen := NewDataGenerator(42)
	config := DefaultConfig()
	config.Count = 10

	bars := gen.GenerateMultiSymbol([]string{"AAPL", "MSFT"}, config)
	s.Require().Len(bars, 20)

	symbols := map[string]int{}
	for _, bar := range bars {
		symbols[bar.Symbol]++
	}

	s.Equal(map[string]int{"AAPL": 10, "MSFT": 10}, symbols)
}

func (s *DataGeneratorTestSuite) TestWriteCSV() {
	gen := NewDataGenerator(42)
	config := DefaultConfig()
	config.Symbol = "AAPL"
	config.StartTime = time.Date(2024, 1, 3, 14, 30, 0, 0, time.UTC)
	config.Count = 3

	path := filepath.Join(s.T().TempDir(), "bars.csv")
	s.Require().NoError(WriteCSV(path, gen.Generate(config)))

	raw, err := os.ReadFile(path)
	s.Require().NoError(err)

	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	s.Require().Len(lines, 4)
	s.Equal("time,symbol,open,high,low,close,volume,vwap,trade_count", lines[0])
	s.True(strings.HasPrefix(lines[1], "2024-01-03 14:30:00,AAPL,"))
}
