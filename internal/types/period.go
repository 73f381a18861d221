package types

import (
	"time"

	"github.com/trade-manager/trade-engine/pkg/errors"
)

// Period is a half-open time interval [Start, End) with a fixed duration.
// Periods are timezone-naive arithmetic; calendar gaps (weekends, holidays)
// are handled by the clock package, not here.
type Period struct {
	Start    time.Time     `yaml:"start" json:"start" csv:"start"`
	End      time.Time     `yaml:"end" json:"end" csv:"end"`
	Duration time.Duration `yaml:"duration" json:"duration" csv:"duration"`
}

// NewPeriod creates a period starting at start with the given duration.
func NewPeriod(start time.Time, duration time.Duration) Period {
	return Period{
		Start:    start,
		End:      start.Add(duration),
		Duration: duration,
	}
}

// PeriodOf returns the period of the given duration that contains t,
// aligned to duration boundaries since the Unix epoch.
func PeriodOf(t time.Time, duration time.Duration) Period {
	return NewPeriod(t.Truncate(duration), duration)
}

// Validate checks the period invariant: start strictly before end.
func (p Period) Validate() error {
	if !p.Start.Before(p.End) {
		return errors.Newf(errors.ErrCodeInvalidPeriod, "period start %s is not before end %s", p.Start, p.End)
	}

	return nil
}

// Next returns the adjacent period immediately after p.
func (p Period) Next() Period {
	return NewPeriod(p.End, p.Duration)
}

// Previous returns the adjacent period immediately before p.
func (p Period) Previous() Period {
	return NewPeriod(p.Start.Add(-p.Duration), p.Duration)
}

// Contains reports whether t falls inside the half-open interval [Start, End).
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Before reports whether p starts before other. Periods of one series share
// a duration, so start order is total order.
func (p Period) Before(other Period) bool {
	return p.Start.Before(other.Start)
}

// Equal reports whether two periods cover the same interval.
func (p Period) Equal(other Period) bool {
	return p.Start.Equal(other.Start) && p.End.Equal(other.End)
}

// Key returns a stable map key for the period.
func (p Period) Key() int64 {
	return p.Start.UnixNano()
}
