package series

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/trade-manager/trade-engine/internal/indicator"
	"github.com/trade-manager/trade-engine/internal/types"
)

type DatasetTestSuite struct {
	suite.Suite
	base    *BarSeries
	dataset *StrategyDataset
}

func TestDatasetSuite(t *testing.T) {
	suite.Run(t, new(DatasetTestSuite))
}

func (suite *DatasetTestSuite) SetupTest() {
	suite.base = NewBarSeries("AAPL", 5*time.Minute, 0)
	suite.dataset = NewStrategyDataset(suite.base)
}

type datasetRecorder struct {
	events []DatasetEvent
	bars   []types.Bar
	// lastSMA captures the indicator value visible at notification time.
	lastSMA []float64
	dataset *StrategyDataset
}

func (r *datasetRecorder) OnDatasetChanged(event DatasetEvent, bar types.Bar) {
	r.events = append(r.events, event)
	r.bars = append(r.bars, bar)

	if r.dataset != nil {
		if v := r.dataset.LastIndicatorValue(indicator.IndicatorTypeSMA); v.IsSome() {
			r.lastSMA = append(r.lastSMA, v.Unwrap())
		}
	}
}

func (suite *DatasetTestSuite) TestIndicatorAdvancesWithBase() {
	sma := indicator.NewSMA()
	suite.NoError(sma.Config(2))
	suite.NoError(suite.dataset.AddIndicator(sma))

	suite.NoError(suite.base.Append(testBar(0, 10, 100)))
	suite.True(suite.dataset.LastIndicatorValue(indicator.IndicatorTypeSMA).IsNone())

	suite.NoError(suite.base.Append(testBar(1, 12, 100)))

	v := suite.dataset.LastIndicatorValue(indicator.IndicatorTypeSMA)
	suite.True(v.IsSome())
	suite.InDelta(11.0, v.Unwrap(), 1e-9)
}

func (suite *DatasetTestSuite) TestIndicatorValueByPeriod() {
	sma := indicator.NewSMA()
	suite.NoError(sma.Config(1))
	suite.NoError(suite.dataset.AddIndicator(sma))

	suite.NoError(suite.base.Append(testBar(0, 10, 100)))
	suite.NoError(suite.base.Append(testBar(1, 12, 100)))

	v := suite.dataset.IndicatorValue(indicator.IndicatorTypeSMA, testBar(0, 0, 0).Period)
	suite.True(v.IsSome())
	suite.InDelta(10.0, v.Unwrap(), 1e-9)

	missing := suite.dataset.IndicatorValue(indicator.IndicatorTypeSMA, testBar(7, 0, 0).Period)
	suite.True(missing.IsNone())
}

func (suite *DatasetTestSuite) TestLateAttachedIndicatorReplays() {
	suite.NoError(suite.base.Append(testBar(0, 10, 100)))
	suite.NoError(suite.base.Append(testBar(1, 12, 100)))

	sma := indicator.NewSMA()
	suite.NoError(sma.Config(2))
	suite.NoError(suite.dataset.AddIndicator(sma))

	v := suite.dataset.LastIndicatorValue(indicator.IndicatorTypeSMA)
	suite.True(v.IsSome())
	suite.InDelta(11.0, v.Unwrap(), 1e-9)
}

func (suite *DatasetTestSuite) TestDuplicateIndicatorRejected() {
	suite.NoError(suite.dataset.AddIndicator(indicator.NewSMA()))
	suite.Error(suite.dataset.AddIndicator(indicator.NewSMA()))
}

func (suite *DatasetTestSuite) TestListenerSeesConsistentIndicator() {
	sma := indicator.NewSMA()
	suite.NoError(sma.Config(1))
	suite.NoError(suite.dataset.AddIndicator(sma))

	recorder := &datasetRecorder{dataset: suite.dataset}
	suite.dataset.AddListener(recorder)

	suite.NoError(suite.base.Append(testBar(0, 10, 100)))
	suite.NoError(suite.base.Append(testBar(1, 12, 100)))

	suite.Equal([]DatasetEvent{DatasetEventBarAdded, DatasetEventBarAdded}, recorder.events)
	// At each notification the SMA already reflects the delivered bar.
	suite.Equal([]float64{10.0, 12.0}, recorder.lastSMA)
}

func (suite *DatasetTestSuite) TestUpdateEventOnMerge() {
	sma := indicator.NewSMA()
	suite.NoError(sma.Config(1))
	suite.NoError(suite.dataset.AddIndicator(sma))

	recorder := &datasetRecorder{}
	suite.dataset.AddListener(recorder)

	suite.NoError(suite.base.Append(testBar(0, 10, 100)))
	suite.NoError(suite.base.Append(testBar(0, 14, 50)))

	suite.Equal([]DatasetEvent{DatasetEventBarAdded, DatasetEventBarUpdated}, recorder.events)

	// The derived value tracks the merged close, not a second data point.
	v := suite.dataset.IndicatorValue(indicator.IndicatorTypeSMA, testBar(0, 0, 0).Period)
	suite.True(v.IsSome())
	suite.InDelta(14.0, v.Unwrap(), 1e-9)
}

func (suite *DatasetTestSuite) TestRemoveListenerStopsDelivery() {
	recorder := &datasetRecorder{}
	suite.dataset.AddListener(recorder)
	suite.dataset.RemoveListener(recorder)

	suite.NoError(suite.base.Append(testBar(0, 10, 100)))
	suite.Empty(recorder.events)
}
