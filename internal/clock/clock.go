// Package clock provides pure trading-calendar logic: trading-day
// boundaries, holidays, non-trading weekdays and market-hours predicates.
// All operations are pure functions over an immutable, process-loaded
// calendar configuration.
package clock

import (
	"fmt"
	"time"

	"github.com/trade-manager/trade-engine/pkg/errors"
)

// CalendarConfig is the raw, YAML-loadable calendar configuration.
type CalendarConfig struct {
	// Timezone is the IANA timezone name of the exchange, e.g. "America/New_York".
	Timezone string `yaml:"timezone" json:"timezone"`
	// Open and Close are times of day in "HH:MM" 24h format.
	Open  string `yaml:"open" json:"open"`
	Close string `yaml:"close" json:"close"`
	// NonTradingWeekdays are weekday names with no session, e.g. Saturday.
	NonTradingWeekdays []string `yaml:"non_trading_weekdays" json:"non_trading_weekdays"`
	// Holidays are full-day closures in "2006-01-02" format.
	Holidays []string `yaml:"holidays" json:"holidays"`
}

// PeriodClock answers calendar questions for one exchange. It holds no state
// beyond the loaded configuration.
type PeriodClock struct {
	location    *time.Location
	openOffset  time.Duration
	closeOffset time.Duration
	nonTrading  map[time.Weekday]bool
	holidays    map[string]bool
}

var weekdayNames = map[string]time.Weekday{
	"Sunday":    time.Sunday,
	"Monday":    time.Monday,
	"Tuesday":   time.Tuesday,
	"Wednesday": time.Wednesday,
	"Thursday":  time.Thursday,
	"Friday":    time.Friday,
	"Saturday":  time.Saturday,
}

// NewPeriodClock builds a clock from the given configuration. The
// configuration must name a timezone and both session boundaries; the clock
// never silently assumes a timezone.
func NewPeriodClock(cfg CalendarConfig) (*PeriodClock, error) {
	if cfg.Timezone == "" {
		return nil, errors.New(errors.ErrCodeStaleConfig, "calendar config has no timezone")
	}

	if cfg.Open == "" || cfg.Close == "" {
		return nil, errors.New(errors.ErrCodeStaleConfig, "calendar config has no session open/close times")
	}

	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "unknown timezone %q", cfg.Timezone)
	}

	openOffset, err := parseTimeOfDay(cfg.Open)
	if err != nil {
		return nil, err
	}

	closeOffset, err := parseTimeOfDay(cfg.Close)
	if err != nil {
		return nil, err
	}

	if closeOffset <= openOffset {
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "session close %q is not after open %q", cfg.Close, cfg.Open)
	}

	nonTrading := make(map[time.Weekday]bool, len(cfg.NonTradingWeekdays))

	for _, name := range cfg.NonTradingWeekdays {
		weekday, ok := weekdayNames[name]
		if !ok {
			return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "unknown weekday %q", name)
		}

		nonTrading[weekday] = true
	}

	holidays := make(map[string]bool, len(cfg.Holidays))

	for _, day := range cfg.Holidays {
		parsed, err := time.ParseInLocation("2006-01-02", day, location)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "invalid holiday date %q", day)
		}

		holidays[parsed.Format("2006-01-02")] = true
	}

	return &PeriodClock{
		location:    location,
		openOffset:  openOffset,
		closeOffset: closeOffset,
		nonTrading:  nonTrading,
		holidays:    holidays,
	}, nil
}

func parseTimeOfDay(s string) (time.Duration, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return 0, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "invalid time of day %q", s)
	}

	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, errors.Newf(errors.ErrCodeInvalidConfiguration, "time of day %q out of range", s)
	}

	return time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute, nil
}

// Location returns the exchange timezone.
func (c *PeriodClock) Location() *time.Location {
	return c.location
}

// IsTradingDay reports whether the calendar day containing t has a session.
func (c *PeriodClock) IsTradingDay(t time.Time) bool {
	local := t.In(c.location)
	if c.nonTrading[local.Weekday()] {
		return false
	}

	return !c.holidays[local.Format("2006-01-02")]
}

// TradingDayStart returns the session open instant of the day containing t.
func (c *PeriodClock) TradingDayStart(t time.Time) time.Time {
	return c.midnight(t).Add(c.openOffset)
}

// TradingDayEnd returns the session close instant of the day containing t.
func (c *PeriodClock) TradingDayEnd(t time.Time) time.Time {
	return c.midnight(t).Add(c.closeOffset)
}

// NextTradingDay returns the first trading day strictly after the day
// containing t, skipping configured non-trading weekdays and holidays.
func (c *PeriodClock) NextTradingDay(t time.Time) time.Time {
	day := c.midnight(t)
	for {
		day = day.AddDate(0, 0, 1)
		if c.IsTradingDay(day) {
			return day
		}
	}
}

// PrevTradingDay returns the last trading day strictly before the day
// containing t.
func (c *PeriodClock) PrevTradingDay(t time.Time) time.Time {
	day := c.midnight(t)
	for {
		day = day.AddDate(0, 0, -1)
		if c.IsTradingDay(day) {
			return day
		}
	}
}

// IsMarketHours reports whether t falls inside [open, close) of a trading day.
func (c *PeriodClock) IsMarketHours(t time.Time) bool {
	if !c.IsTradingDay(t) {
		return false
	}

	local := t.In(c.location)

	return !local.Before(c.TradingDayStart(t)) && local.Before(c.TradingDayEnd(t))
}

// SameTradingDay reports whether a and b fall on the same calendar day of
// the exchange timezone.
func (c *PeriodClock) SameTradingDay(a, b time.Time) bool {
	return c.midnight(a).Equal(c.midnight(b))
}

// OnTradingDay reports whether the instant falls on the given calendar day.
// Unlike SameTradingDay, day is a date label rather than an instant: it is
// read in its own location, so a midnight value parsed from "2006-01-02" in
// any timezone names the same day. The instant is read in the exchange
// timezone.
func (c *PeriodClock) OnTradingDay(instant, day time.Time) bool {
	return instant.In(c.location).Format("2006-01-02") == day.Format("2006-01-02")
}

func (c *PeriodClock) midnight(t time.Time) time.Time {
	local := t.In(c.location)

	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.location)
}
