package series

import (
	"sync"
	"time"

	"github.com/moznion/go-optional"
	"github.com/trade-manager/trade-engine/internal/indicator"
	"github.com/trade-manager/trade-engine/internal/types"
	"github.com/trade-manager/trade-engine/pkg/errors"
)

// Replay bounds for late-attached indicators.
var (
	minTime = time.Time{}
	maxTime = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
)

// DatasetEvent classifies a dataset change.
type DatasetEvent string

const (
	DatasetEventBarAdded   DatasetEvent = "BAR_ADDED"
	DatasetEventBarUpdated DatasetEvent = "BAR_UPDATED"
)

// DatasetListener observes a StrategyDataset. Dispatch is synchronous and in
// registration order, after all derived series have been brought up to date,
// so a listener always sees indicators consistent with the bar it receives.
type DatasetListener interface {
	OnDatasetChanged(event DatasetEvent, bar types.Bar)
}

// StrategyDataset aggregates one base bar series with zero or more derived
// indicator series for one instrument. The base series is shared by
// reference with consumers and is read-only to them.
type StrategyDataset struct {
	base      *BarSeries
	names     []indicator.IndicatorType
	derived   map[indicator.IndicatorType]*derivedSeries
	listeners []DatasetListener
	mu        sync.RWMutex
}

type derivedSeries struct {
	calc   indicator.Indicator
	values []indicator.Value
}

// NewStrategyDataset wraps the base series and subscribes to it. Derived
// series are added with AddIndicator before any bar arrives.
func NewStrategyDataset(base *BarSeries) *StrategyDataset {
	d := &StrategyDataset{
		base:      base,
		names:     nil,
		derived:   make(map[indicator.IndicatorType]*derivedSeries),
		listeners: nil,
		mu:        sync.RWMutex{},
	}

	base.AddListener(d)

	return d
}

// Base returns the underlying bar series, read-only by convention.
func (d *StrategyDataset) Base() *BarSeries {
	return d.base
}

// AddIndicator attaches a derived indicator series. Bars that already live
// in the base series are replayed into it so a late-attached indicator
// catches up.
func (d *StrategyDataset) AddIndicator(calc indicator.Indicator) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	name := calc.Name()
	if _, exists := d.derived[name]; exists {
		return errors.Newf(errors.ErrCodeInvalidParameter, "indicator %s already attached", name)
	}

	ds := &derivedSeries{calc: calc, values: nil}

	for _, bar := range d.base.Range(minTime, maxTime) {
		if v := calc.Append(bar); v.IsSome() {
			ds.values = append(ds.values, indicator.Value{Period: bar.Period, Value: v.Unwrap()})
		}
	}

	d.derived[name] = ds
	d.names = append(d.names, name)

	return nil
}

// AddListener registers a dataset listener.
func (d *StrategyDataset) AddListener(l DatasetListener) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.listeners = append(d.listeners, l)
}

// RemoveListener unregisters a dataset listener.
func (d *StrategyDataset) RemoveListener(l DatasetListener) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, registered := range d.listeners {
		if registered == l {
			d.listeners = append(d.listeners[:i], d.listeners[i+1:]...)

			return
		}
	}
}

// IndicatorValue returns the derived value for the given indicator and
// period, if computed.
func (d *StrategyDataset) IndicatorValue(name indicator.IndicatorType, period types.Period) optional.Option[float64] {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ds, ok := d.derived[name]
	if !ok {
		return optional.None[float64]()
	}

	for i := len(ds.values) - 1; i >= 0; i-- {
		if ds.values[i].Period.Equal(period) {
			return optional.Some(ds.values[i].Value)
		}
	}

	return optional.None[float64]()
}

// LastIndicatorValue returns the most recent derived value for the given
// indicator.
func (d *StrategyDataset) LastIndicatorValue(name indicator.IndicatorType) optional.Option[float64] {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ds, ok := d.derived[name]
	if !ok || len(ds.values) == 0 {
		return optional.None[float64]()
	}

	return optional.Some(ds.values[len(ds.values)-1].Value)
}

// OnBarAdded implements BarListener. Indicators are advanced in attach
// order, then dataset listeners fire.
func (d *StrategyDataset) OnBarAdded(bar types.Bar) {
	d.advance(bar, false)
	d.notify(DatasetEventBarAdded, bar)
}

// OnBarUpdated implements BarListener.
func (d *StrategyDataset) OnBarUpdated(bar types.Bar) {
	d.advance(bar, true)
	d.notify(DatasetEventBarUpdated, bar)
}

func (d *StrategyDataset) advance(bar types.Bar, update bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, name := range d.names {
		ds := d.derived[name]

		var v optional.Option[float64]
		if update {
			v = ds.calc.Update(bar)
		} else {
			v = ds.calc.Append(bar)
		}

		if v.IsNone() {
			continue
		}

		if update && len(ds.values) > 0 && ds.values[len(ds.values)-1].Period.Equal(bar.Period) {
			ds.values[len(ds.values)-1].Value = v.Unwrap()
		} else {
			ds.values = append(ds.values, indicator.Value{Period: bar.Period, Value: v.Unwrap()})
		}
	}
}

func (d *StrategyDataset) notify(event DatasetEvent, bar types.Bar) {
	d.mu.RLock()
	listeners := append([]DatasetListener(nil), d.listeners...)
	d.mu.RUnlock()

	for _, l := range listeners {
		l.OnDatasetChanged(event, bar)
	}
}
