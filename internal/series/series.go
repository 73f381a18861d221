// Package series provides the append-only, time-ordered bar storage a
// strategy observes: the BarSeries itself and the StrategyDataset that
// aggregates a base series with derived indicator series.
package series

import (
	"sort"
	"sync"

	"time"

	"github.com/moznion/go-optional"
	"github.com/trade-manager/trade-engine/internal/types"
	"github.com/trade-manager/trade-engine/pkg/errors"
)

// BarListener receives change notifications from a BarSeries. Listeners are
// invoked synchronously, in registration order, before Append returns.
type BarListener interface {
	// OnBarAdded fires when a bar for a brand-new period is inserted.
	OnBarAdded(bar types.Bar)
	// OnBarUpdated fires when a late update merges into an existing period.
	OnBarUpdated(bar types.Bar)
}

// BarSeries is an append-only, chronologically ordered sequence of bars,
// unique by period, optionally bounded by a maximum retained count. The
// series owns its bars exclusively; readers get copies.
type BarSeries struct {
	symbol    string
	duration  time.Duration
	maxBars   int
	bars      []types.Bar
	listeners []BarListener
	mu        sync.RWMutex
}

// NewBarSeries creates a series for one symbol with a fixed period width.
// maxBars bounds the retained window; zero means unbounded.
func NewBarSeries(symbol string, duration time.Duration, maxBars int) *BarSeries {
	return &BarSeries{
		symbol:    symbol,
		duration:  duration,
		maxBars:   maxBars,
		bars:      nil,
		listeners: nil,
		mu:        sync.RWMutex{},
	}
}

// Symbol returns the instrument symbol of the series.
func (s *BarSeries) Symbol() string {
	return s.symbol
}

// Duration returns the fixed period width of the series.
func (s *BarSeries) Duration() time.Duration {
	return s.duration
}

// AddListener registers a listener. Notification order follows registration
// order.
func (s *BarSeries) AddListener(l BarListener) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listeners = append(s.listeners, l)
}

// RemoveListener unregisters a previously added listener.
func (s *BarSeries) RemoveListener(l BarListener) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, registered := range s.listeners {
		if registered == l {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)

			return
		}
	}
}

// Append inserts the bar in chronological order, or merges it into the
// existing bar of the same period. All listeners are notified before Append
// returns; the caller blocks on notification dispatch, which is what keeps
// bars from reordering under a slow consumer.
func (s *BarSeries) Append(bar types.Bar) error {
	if err := bar.Validate(); err != nil {
		return err
	}

	if bar.Period.Duration != s.duration {
		return errors.Newf(errors.ErrCodeInvalidPeriod, "bar period duration %s does not match series duration %s", bar.Period.Duration, s.duration)
	}

	s.mu.Lock()

	idx, exists := s.indexOf(bar.Period)
	if exists {
		s.bars[idx].Merge(bar)
		merged := s.bars[idx]
		listeners := append([]BarListener(nil), s.listeners...)
		s.mu.Unlock()

		for _, l := range listeners {
			l.OnBarUpdated(merged)
		}

		return nil
	}

	// Insert keeping chronological order; the common case is append-at-end.
	s.bars = append(s.bars, types.Bar{})
	copy(s.bars[idx+1:], s.bars[idx:])
	s.bars[idx] = bar

	// Oldest bars are evicted first, which keeps the retained window
	// chronologically contiguous.
	if s.maxBars > 0 && len(s.bars) > s.maxBars {
		s.bars = append([]types.Bar(nil), s.bars[len(s.bars)-s.maxBars:]...)
	}

	listeners := append([]BarListener(nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l.OnBarAdded(bar)
	}

	return nil
}

// indexOf returns the insertion index for the period and whether a bar with
// that exact period already exists. Caller must hold the lock.
func (s *BarSeries) indexOf(period types.Period) (int, bool) {
	idx := sort.Search(len(s.bars), func(i int) bool {
		return !s.bars[i].Period.Start.Before(period.Start)
	})

	if idx < len(s.bars) && s.bars[idx].Period.Equal(period) {
		return idx, true
	}

	return idx, false
}

// Get returns the bar for the exact period, if present.
func (s *BarSeries) Get(period types.Period) (types.Bar, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, exists := s.indexOf(period)
	if !exists {
		return types.Bar{}, false
	}

	return s.bars[idx], true
}

// Last returns the most recent bar, if any.
func (s *BarSeries) Last() optional.Option[types.Bar] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.bars) == 0 {
		return optional.None[types.Bar]()
	}

	return optional.Some(s.bars[len(s.bars)-1])
}

// Len returns the number of retained bars.
func (s *BarSeries) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.bars)
}

// Range returns copies of the bars whose period start falls in
// [startInclusive, endExclusive).
func (s *BarSeries) Range(startInclusive, endExclusive time.Time) []types.Bar {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Bar, 0)

	for _, bar := range s.bars {
		if !bar.Period.Start.Before(startInclusive) && bar.Period.Start.Before(endExclusive) {
			out = append(out, bar)
		}
	}

	return out
}

// Average returns a synthetic bar whose OHLC fields are the unweighted
// average of the covered bars, or the volume-weighted average when weighted
// is true. Volume and trade count are summed. Fails with an empty-range
// error when no bars fall in range.
func (s *BarSeries) Average(startInclusive, endExclusive time.Time, weighted bool) (types.Bar, error) {
	covered := s.Range(startInclusive, endExclusive)
	if len(covered) == 0 {
		return types.Bar{}, errors.Newf(errors.ErrCodeEmptyRange, "no bars between %s and %s", startInclusive, endExclusive)
	}

	var open, high, low, closePrice, vwap, volume, weightSum float64

	var trades int64

	for _, bar := range covered {
		weight := 1.0
		if weighted {
			weight = bar.Volume
		}

		open += bar.Open * weight
		high += bar.High * weight
		low += bar.Low * weight
		closePrice += bar.Close * weight
		vwap += bar.VWAP * weight
		weightSum += weight
		volume += bar.Volume
		trades += bar.TradeCount
	}

	if weightSum == 0 {
		return types.Bar{}, errors.New(errors.ErrCodeEmptyRange, "covered bars carry no volume to weight by")
	}

	synthetic := types.Bar{
		Symbol: s.symbol,
		Period: types.Period{
			Start:    covered[0].Period.Start,
			End:      covered[len(covered)-1].Period.End,
			Duration: covered[len(covered)-1].Period.End.Sub(covered[0].Period.Start),
		},
		Open:        open / weightSum,
		High:        high / weightSum,
		Low:         low / weightSum,
		Close:       closePrice / weightSum,
		Volume:      volume,
		VWAP:        vwap / weightSum,
		TradeCount:  trades,
		LastUpdated: covered[len(covered)-1].LastUpdated,
	}

	return synthetic, nil
}
