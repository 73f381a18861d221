// Package datasource loads historical market data into bar streams. The
// DuckDB implementation reads Parquet and CSV files directly through a
// database view, so large datasets never need to fit in process memory at
// once.
package datasource

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/trade-manager/trade-engine/internal/types"
)

// DataSource streams historical bars for backtests and series warm-up.
type DataSource interface {
	// Initialize points the source at a data file. Parquet and CSV are
	// detected by file extension.
	Initialize(path string) error
	// ReadAll yields every bar in time order, optionally bounded by
	// [start, end) on the bar's period start.
	ReadAll(start, end optional.Option[time.Time]) func(yield func(types.Bar, error) bool)
	// ReadRange returns the bars with period start inside [start, end).
	ReadRange(start, end time.Time, symbol optional.Option[string]) ([]types.Bar, error)
	// Count returns the number of rows, optionally bounded by [start, end).
	Count(start, end optional.Option[time.Time]) (int, error)
	// Symbols returns the distinct symbols present in the data.
	Symbols() ([]string, error)
	// Close releases the underlying resources.
	Close() error
}
