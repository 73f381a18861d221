// Package persistence stores orders and bars in DuckDB. The store is the
// system of record a restarted process reconciles against: open orders are
// reloaded per tradestrategy and bar history can be replayed into a series.
package persistence

import (
	"database/sql"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"github.com/trade-manager/trade-engine/internal/logger"
	"github.com/trade-manager/trade-engine/internal/types"
	"github.com/trade-manager/trade-engine/pkg/errors"
	"go.uber.org/zap"
)

// Store persists orders and bars. Safe for use from multiple goroutines;
// database/sql serializes access to the underlying connection pool.
type Store struct {
	db  *sql.DB
	log *logger.Logger
	sq  squirrel.StatementBuilderType
}

// NewStore opens a DuckDB database at path. Use ":memory:" for an
// in-process store.
func NewStore(path string, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreFailed, "failed to open database", err)
	}

	return &Store{
		db:  db,
		log: log,
		sq:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}, nil
}

// Initialize creates the order and bar tables.
func (s *Store) Initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			order_id TEXT PRIMARY KEY,
			tradestrategy_id TEXT,
			symbol TEXT,
			side TEXT,
			order_type TEXT,
			quantity DOUBLE,
			time_in_force TEXT,
			limit_price DOUBLE,
			stop_price DOUBLE,
			oca_group_id TEXT,
			status TEXT,
			filled_quantity DOUBLE,
			avg_fill_price DOUBLE,
			reason TEXT,
			message TEXT,
			created_at TIMESTAMP,
			updated_at TIMESTAMP,
			version INTEGER
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreFailed, "failed to create orders table", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			symbol TEXT,
			period_start TIMESTAMP,
			period_end TIMESTAMP,
			duration_ns BIGINT,
			open DOUBLE,
			high DOUBLE,
			low DOUBLE,
			close DOUBLE,
			volume DOUBLE,
			vwap DOUBLE,
			trade_count INTEGER,
			last_updated TIMESTAMP,
			PRIMARY KEY (symbol, duration_ns, period_start)
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreFailed, "failed to create bars table", err)
	}

	return nil
}

// SaveOrder upserts the order. The stored version is bumped on every save;
// the caller's Version field is ignored.
func (s *Store) SaveOrder(order types.Order) error {
	_, err := s.db.Exec(`
		INSERT INTO orders (
			order_id, tradestrategy_id, symbol, side, order_type, quantity,
			time_in_force, limit_price, stop_price, oca_group_id, status,
			filled_quantity, avg_fill_price, reason, message, created_at,
			updated_at, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT (order_id) DO UPDATE SET
			status = EXCLUDED.status,
			quantity = EXCLUDED.quantity,
			limit_price = EXCLUDED.limit_price,
			stop_price = EXCLUDED.stop_price,
			filled_quantity = EXCLUDED.filled_quantity,
			avg_fill_price = EXCLUDED.avg_fill_price,
			reason = EXCLUDED.reason,
			message = EXCLUDED.message,
			updated_at = EXCLUDED.updated_at,
			version = orders.version + 1
	`,
		order.ID,
		order.TradestrategyID,
		order.Symbol,
		string(order.Side),
		string(order.Type),
		order.Quantity,
		string(order.TimeInForce),
		optionalToNull(order.LimitPrice),
		optionalToNull(order.StopPrice),
		stringToNull(order.OCAGroupID),
		string(order.Status),
		order.FilledQuantity,
		order.AvgFillPrice,
		order.Reason.Reason,
		order.Reason.Message,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeStoreFailed, err, "failed to save order %s", order.ID)
	}

	return nil
}

// FindOrder returns the stored order by id.
func (s *Store) FindOrder(orderID string) (optional.Option[types.Order], error) {
	query := s.sq.
		Select(orderColumns...).
		From("orders").
		Where(squirrel.Eq{"order_id": orderID}).
		RunWith(s.db)

	order, err := scanOrder(query.QueryRow())
	if err != nil {
		if err == sql.ErrNoRows {
			return optional.None[types.Order](), nil
		}

		return optional.None[types.Order](), errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to load order %s", orderID)
	}

	return optional.Some(order), nil
}

// FindOpenOrders returns the tradestrategy's orders that are not in a
// terminal state, oldest first.
func (s *Store) FindOpenOrders(tradestrategyID string) ([]types.Order, error) {
	query := s.sq.
		Select(orderColumns...).
		From("orders").
		Where(squirrel.Eq{"tradestrategy_id": tradestrategyID}).
		Where(squirrel.Eq{"status": []string{
			string(types.OrderStatusPending),
			string(types.OrderStatusSubmitted),
		}}).
		OrderBy("created_at ASC").
		RunWith(s.db)

	rows, err := query.Query()
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to load open orders for %s", tradestrategyID)
	}
	defer rows.Close()

	orders := make([]types.Order, 0)

	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan order row", err)
		}

		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "order row iteration failed", err)
	}

	return orders, nil
}

// SaveBar upserts one bar keyed by symbol, duration and period start.
func (s *Store) SaveBar(bar types.Bar) error {
	_, err := s.db.Exec(`
		INSERT INTO bars (
			symbol, period_start, period_end, duration_ns, open, high, low,
			close, volume, vwap, trade_count, last_updated
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, duration_ns, period_start) DO UPDATE SET
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,
			vwap = EXCLUDED.vwap,
			trade_count = EXCLUDED.trade_count,
			last_updated = EXCLUDED.last_updated
	`,
		bar.Symbol,
		bar.Period.Start,
		bar.Period.End,
		bar.Period.Duration.Nanoseconds(),
		bar.Open,
		bar.High,
		bar.Low,
		bar.Close,
		bar.Volume,
		bar.VWAP,
		bar.TradeCount,
		bar.LastUpdated,
	)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeStoreFailed, err, "failed to save bar %s %s", bar.Symbol, bar.Period.Start)
	}

	return nil
}

// FindBars returns the symbol's stored bars of the given duration with
// period start inside [start, end), chronologically.
func (s *Store) FindBars(symbol string, duration time.Duration, start, end time.Time) ([]types.Bar, error) {
	query := s.sq.
		Select("symbol", "period_start", "period_end", "duration_ns", "open",
			"high", "low", "close", "volume", "vwap", "trade_count", "last_updated").
		From("bars").
		Where(squirrel.Eq{"symbol": symbol, "duration_ns": duration.Nanoseconds()}).
		Where(squirrel.GtOrEq{"period_start": start}).
		Where(squirrel.Lt{"period_start": end}).
		OrderBy("period_start ASC").
		RunWith(s.db)

	rows, err := query.Query()
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to load bars for %s", symbol)
	}
	defer rows.Close()

	bars := make([]types.Bar, 0)

	for rows.Next() {
		var (
			bar        types.Bar
			durationNS int64
		)

		err := rows.Scan(
			&bar.Symbol,
			&bar.Period.Start,
			&bar.Period.End,
			&durationNS,
			&bar.Open,
			&bar.High,
			&bar.Low,
			&bar.Close,
			&bar.Volume,
			&bar.VWAP,
			&bar.TradeCount,
			&bar.LastUpdated,
		)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan bar row", err)
		}

		bar.Period.Duration = time.Duration(durationNS)
		bars = append(bars, bar)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "bar row iteration failed", err)
	}

	return bars, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		s.log.Error("failed to close store", zap.Error(err))

		return err
	}

	return nil
}

var orderColumns = []string{
	"order_id", "tradestrategy_id", "symbol", "side", "order_type",
	"quantity", "time_in_force", "limit_price", "stop_price", "oca_group_id",
	"status", "filled_quantity", "avg_fill_price", "reason", "message",
	"created_at", "updated_at", "version",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (types.Order, error) {
	var (
		order      types.Order
		side       string
		orderType  string
		tif        string
		status     string
		limitPrice sql.NullFloat64
		stopPrice  sql.NullFloat64
		ocaGroup   sql.NullString
	)

	err := row.Scan(
		&order.ID,
		&order.TradestrategyID,
		&order.Symbol,
		&side,
		&orderType,
		&order.Quantity,
		&tif,
		&limitPrice,
		&stopPrice,
		&ocaGroup,
		&status,
		&order.FilledQuantity,
		&order.AvgFillPrice,
		&order.Reason.Reason,
		&order.Reason.Message,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.Version,
	)
	if err != nil {
		return types.Order{}, err
	}

	order.Side = types.Side(side)
	order.Type = types.OrderType(orderType)
	order.TimeInForce = types.TimeInForce(tif)
	order.Status = types.OrderStatus(status)
	order.LimitPrice = nullToOptional(limitPrice)
	order.StopPrice = nullToOptional(stopPrice)

	if ocaGroup.Valid {
		order.OCAGroupID = optional.Some(ocaGroup.String)
	} else {
		order.OCAGroupID = optional.None[string]()
	}

	return order, nil
}

func optionalToNull(v optional.Option[float64]) sql.NullFloat64 {
	if v.IsNone() {
		return sql.NullFloat64{}
	}

	return sql.NullFloat64{Float64: v.Unwrap(), Valid: true}
}

func stringToNull(v optional.Option[string]) sql.NullString {
	if v.IsNone() {
		return sql.NullString{}
	}

	return sql.NullString{String: v.Unwrap(), Valid: true}
}

func nullToOptional(v sql.NullFloat64) optional.Option[float64] {
	if !v.Valid {
		return optional.None[float64]()
	}

	return optional.Some(v.Float64)
}
