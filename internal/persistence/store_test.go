package persistence

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"
	"github.com/trade-manager/trade-engine/internal/logger"
	"github.com/trade-manager/trade-engine/internal/types"
)

type StoreTestSuite struct {
	suite.Suite
	store *Store
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func (s *StoreTestSuite) SetupTest() {
	store, err := NewStore(":memory:", logger.NewNopLogger())
	s.Require().NoError(err)
	s.Require().NoError(store.Initialize())
	s.store = store
}

func (s *StoreTestSuite) TearDownTest() {
	s.Require().NoError(s.store.Close())
}

func (s *StoreTestSuite) order(tradestrategyID string, status types.OrderStatus) types.Order {
	now := time.Date(2024, 1, 3, 14, 30, 0, 0, time.UTC)

	return types.Order{
		ID:              uuid.New().String(),
		TradestrategyID: tradestrategyID,
		Symbol:          "AAPL",
		Side:            types.SideBuy,
		Type:            types.OrderTypeLimit,
		Quantity:        100,
		TimeInForce:     types.TimeInForceDay,
		LimitPrice:      optional.Some(37.99),
		StopPrice:       optional.None[float64](),
		OCAGroupID:      optional.None[string](),
		Status:          status,
		Reason:          types.Reason{Reason: types.OrderReasonEntry, Message: "test"},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (s *StoreTestSuite) TestSaveAndFindOrder() {
	order := s.order("ts-1", types.OrderStatusSubmitted)
	order.OCAGroupID = optional.Some("group-1")

	s.Require().NoError(s.store.SaveOrder(order))

	found, err := s.store.FindOrder(order.ID)
	s.Require().NoError(err)
	s.Require().True(found.IsSome())

	got := found.Unwrap()
	s.Equal(order.ID, got.ID)
	s.Equal(types.OrderStatusSubmitted, got.Status)
	s.InDelta(37.99, got.LimitPrice.Unwrap(), 1e-9)
	s.True(got.StopPrice.IsNone())
	s.Equal("group-1", got.OCAGroupID.Unwrap())
	s.Equal(1, got.Version)
}

func (s *StoreTestSuite) TestFindOrderMissing() {
	found, err := s.store.FindOrder("nope")
	s.Require().NoError(err)
	s.True(found.IsNone())
}

func (s *StoreTestSuite) TestSaveBumpsVersion() {
	order := s.order("ts-1", types.OrderStatusSubmitted)

	s.Require().NoError(s.store.SaveOrder(order))

	order.Status = types.OrderStatusFilled
	order.FilledQuantity = 100
	order.AvgFillPrice = 37.99
	s.Require().NoError(s.store.SaveOrder(order))

	found, err := s.store.FindOrder(order.ID)
	s.Require().NoError(err)

	got := found.Unwrap()
	s.Equal(types.OrderStatusFilled, got.Status)
	s.InDelta(100, got.FilledQuantity, 1e-9)
	s.Equal(2, got.Version)
}

func (s *StoreTestSuite) TestFindOpenOrders() {
	open := s.order("ts-1", types.OrderStatusSubmitted)
	pending := s.order("ts-1", types.OrderStatusPending)
	pending.CreatedAt = open.CreatedAt.Add(time.Minute)
	filled := s.order("ts-1", types.OrderStatusFilled)
	otherStrategy := s.order("ts-2", types.OrderStatusSubmitted)

	for _, o := range []types.Order{open, pending, filled, otherStrategy} {
		s.Require().NoError(s.store.SaveOrder(o))
	}

	orders, err := s.store.FindOpenOrders("ts-1")
	s.Require().NoError(err)
	s.Require().Len(orders, 2)
	s.Equal(open.ID, orders[0].ID)
	s.Equal(pending.ID, orders[1].ID)
}

func (s *StoreTestSuite) TestSaveAndFindBars() {
	start := time.Date(2024, 1, 3, 14, 30, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		periodStart := start.Add(time.Duration(i) * 5 * time.Minute)
		bar := types.Bar{
			Symbol: "AAPL",
			Period: types.Period{
				Start:    periodStart,
				End:      periodStart.Add(5 * time.Minute),
				Duration: 5 * time.Minute,
			},
			Open:        38.00,
			High:        38.20,
			Low:         37.90,
			Close:       38.10,
			Volume:      1000,
			VWAP:        38.05,
			TradeCount:  42,
			LastUpdated: periodStart.Add(5 * time.Minute),
		}
		s.Require().NoError(s.store.SaveBar(bar))
	}

	bars, err := s.store.FindBars("AAPL", 5*time.Minute, start, start.Add(10*time.Minute))
	s.Require().NoError(err)
	s.Require().Len(bars, 2)
	s.Equal(start, bars[0].Period.Start.UTC())
	s.Equal(5*time.Minute, bars[0].Period.Duration)
	s.Equal(int64(42), bars[0].TradeCount)
}

func (s *StoreTestSuite) TestSaveBarUpsertsSamePeriod() {
	start := time.Date(2024, 1, 3, 14, 30, 0, 0, time.UTC)
	bar := types.Bar{
		Symbol: "AAPL",
		Period: types.Period{Start: start, End: start.Add(5 * time.Minute), Duration: 5 * time.Minute},
		Open:   38.00, High: 38.20, Low: 37.90, Close: 38.10,
		Volume: 1000, VWAP: 38.05, TradeCount: 10,
	}

	s.Require().NoError(s.store.SaveBar(bar))

	bar.High = 38.40
	bar.Volume = 2500
	s.Require().NoError(s.store.SaveBar(bar))

	bars, err := s.store.FindBars("AAPL", 5*time.Minute, start, start.Add(5*time.Minute))
	s.Require().NoError(err)
	s.Require().Len(bars, 1)
	s.InDelta(38.40, bars[0].High, 1e-9)
	s.InDelta(2500, bars[0].Volume, 1e-9)
}
