package datasource

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"github.com/trade-manager/trade-engine/internal/logger"
	"github.com/trade-manager/trade-engine/internal/types"
	"github.com/trade-manager/trade-engine/pkg/errors"
	"go.uber.org/zap"
)

// DuckDBDataSource serves bars out of a DuckDB view over a Parquet or CSV
// file. The expected columns are time, symbol, open, high, low, close and
// volume; vwap and trade_count are read when present in the file.
type DuckDBDataSource struct {
	db          *sql.DB
	log         *logger.Logger
	sq          squirrel.StatementBuilderType
	barDuration time.Duration
	hasExtras   bool
}

// NewDuckDBDataSource opens an in-memory DuckDB instance whose bars carry
// the given period duration.
func NewDuckDBDataSource(barDuration time.Duration, log *logger.Logger) (*DuckDBDataSource, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	if barDuration <= 0 {
		return nil, errors.New(errors.ErrCodeInvalidParameter, "bar duration must be positive")
	}

	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataSourceGone, "failed to open database", err)
	}

	return &DuckDBDataSource{
		db:          db,
		log:         log,
		sq:          squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		barDuration: barDuration,
	}, nil
}

// Initialize implements DataSource. The file's extension picks the reader
// function; CREATE VIEW requires raw SQL.
func (d *DuckDBDataSource) Initialize(path string) error {
	d.log.Debug("initializing data source", zap.String("path", path))

	if _, err := d.db.Exec(`DROP VIEW IF EXISTS market_data`); err != nil {
		return errors.Wrap(errors.ErrCodeDataSourceGone, "failed to drop existing view", err)
	}

	var reader string

	switch {
	case strings.HasSuffix(path, ".parquet"):
		reader = fmt.Sprintf("read_parquet('%s')", path)
	case strings.HasSuffix(path, ".csv"), strings.HasSuffix(path, ".csv.gz"):
		reader = fmt.Sprintf("read_csv_auto('%s')", path)
	default:
		return errors.Newf(errors.ErrCodeInvalidParameter, "unsupported data file %s, want .parquet or .csv", path)
	}

	query := fmt.Sprintf(`CREATE VIEW market_data AS SELECT * FROM %s`, reader)
	if _, err := d.db.Exec(query); err != nil {
		return errors.Wrapf(errors.ErrCodeDataSourceGone, err, "failed to create view over %s", path)
	}

	d.hasExtras = d.detectExtraColumns()

	return nil
}

// detectExtraColumns checks whether the file carries vwap and trade_count.
func (d *DuckDBDataSource) detectExtraColumns() bool {
	rows, err := d.db.Query(`
		SELECT column_name FROM information_schema.columns
		WHERE table_name = 'market_data' AND column_name IN ('vwap', 'trade_count')
	`)
	if err != nil {
		return false
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var name string
		if rows.Scan(&name) == nil {
			count++
		}
	}

	return count == 2
}

func (d *DuckDBDataSource) selectColumns() string {
	if d.hasExtras {
		return "time, symbol, open, high, low, close, volume, vwap, trade_count"
	}

	return "time, symbol, open, high, low, close, volume"
}

func (d *DuckDBDataSource) scanBar(rows *sql.Rows) (types.Bar, error) {
	var (
		bar       types.Bar
		timestamp time.Time
	)

	var err error
	if d.hasExtras {
		err = rows.Scan(&timestamp, &bar.Symbol, &bar.Open, &bar.High, &bar.Low,
			&bar.Close, &bar.Volume, &bar.VWAP, &bar.TradeCount)
	} else {
		err = rows.Scan(&timestamp, &bar.Symbol, &bar.Open, &bar.High, &bar.Low,
			&bar.Close, &bar.Volume)
	}

	if err != nil {
		return types.Bar{}, err
	}

	bar.Period = types.PeriodOf(timestamp, d.barDuration)
	bar.LastUpdated = bar.Period.End

	if !d.hasExtras {
		bar.VWAP = bar.Close
		bar.TradeCount = 0
	}

	return bar, nil
}

// ReadAll implements DataSource with batched row iteration.
func (d *DuckDBDataSource) ReadAll(start, end optional.Option[time.Time]) func(yield func(types.Bar, error) bool) {
	return func(yield func(types.Bar, error) bool) {
		query := fmt.Sprintf("SELECT %s FROM market_data", d.selectColumns())

		var (
			conditions []string
			params     []any
		)

		if start.IsSome() {
			conditions = append(conditions, fmt.Sprintf("time >= $%d", len(params)+1))
			params = append(params, start.Unwrap())
		}

		if end.IsSome() {
			conditions = append(conditions, fmt.Sprintf("time < $%d", len(params)+1))
			params = append(params, end.Unwrap())
		}

		if len(conditions) > 0 {
			query += " WHERE " + strings.Join(conditions, " AND ")
		}

		query += " ORDER BY time ASC"

		rows, err := d.db.Query(query, params...)
		if err != nil {
			yield(types.Bar{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to read market data", err))

			return
		}
		defer rows.Close()

		for rows.Next() {
			bar, err := d.scanBar(rows)
			if err != nil {
				yield(types.Bar{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan market data row", err))

				return
			}

			if !yield(bar, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(types.Bar{}, errors.Wrap(errors.ErrCodeQueryFailed, "market data iteration failed", err))
		}
	}
}

// ReadRange implements DataSource.
func (d *DuckDBDataSource) ReadRange(start, end time.Time, symbol optional.Option[string]) ([]types.Bar, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM market_data WHERE time >= $1 AND time < $2", d.selectColumns())
	params := []any{start, end}

	if symbol.IsSome() {
		query += " AND symbol = $3"
		params = append(params, symbol.Unwrap())
	}

	query += " ORDER BY time ASC"

	rows, err := d.db.Query(query, params...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to read market data range", err)
	}
	defer rows.Close()

	bars := make([]types.Bar, 0)

	for rows.Next() {
		bar, err := d.scanBar(rows)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan market data row", err)
		}

		bars = append(bars, bar)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "market data iteration failed", err)
	}

	return bars, nil
}

// Count implements DataSource.
func (d *DuckDBDataSource) Count(start, end optional.Option[time.Time]) (int, error) {
	query := "SELECT COUNT(*) FROM market_data"

	var (
		conditions []string
		params     []any
	)

	if start.IsSome() {
		conditions = append(conditions, fmt.Sprintf("time >= $%d", len(params)+1))
		params = append(params, start.Unwrap())
	}

	if end.IsSome() {
		conditions = append(conditions, fmt.Sprintf("time < $%d", len(params)+1))
		params = append(params, end.Unwrap())
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	var count int
	if err := d.db.QueryRow(query, params...).Scan(&count); err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to count market data", err)
	}

	return count, nil
}

// Symbols implements DataSource.
func (d *DuckDBDataSource) Symbols() ([]string, error) {
	rows, err := d.db.Query(`SELECT DISTINCT symbol FROM market_data ORDER BY symbol`)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to list symbols", err)
	}
	defer rows.Close()

	symbols := make([]string, 0)

	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan symbol", err)
		}

		symbols = append(symbols, symbol)
	}

	return symbols, rows.Err()
}

// Close implements DataSource.
func (d *DuckDBDataSource) Close() error {
	return d.db.Close()
}
