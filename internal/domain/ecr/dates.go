package ecr

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Date range presets accepted by the dateRange parameter.
const (
	RangeLast7Days   = "last-7-days"
	RangeLast30Days  = "last-30-days"
	RangeLast3Months = "last-3-months"
	RangeLast6Months = "last-6-months"
	RangeLastYear    = "last-year"
	RangeCustom      = "custom"

	DefaultDateRange = RangeLastYear
)

const paramDateLayout = "2006-01-02"

var dateRanges = map[string]bool{
	RangeLast7Days:   true,
	RangeLast30Days:  true,
	RangeLast3Months: true,
	RangeLast6Months: true,
	RangeLastYear:    true,
	RangeCustom:      true,
}

var errInvalidDates = errors.New("invalid custom dates")

// DateRange bounds the created-at filter. Both ends are inclusive.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// IsDateRangeOption reports whether s names a known preset or "custom".
func IsDateRangeOption(s string) bool {
	return dateRanges[s]
}

// ParseCustomDates parses "YYYY-MM-DD|YYYY-MM-DD" in loc. The end bound is
// moved to the last instant of its day so the whole end date is included.
func ParseCustomDates(s string, loc *time.Location) (DateRange, error) {
	startStr, endStr, ok := strings.Cut(s, "|")
	if !ok {
		return DateRange{}, fmt.Errorf("%w: %q", errInvalidDates, s)
	}
	start, err := time.ParseInLocation(paramDateLayout, startStr, loc)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: start %q", errInvalidDates, startStr)
	}
	end, err := time.ParseInLocation(paramDateLayout, endStr, loc)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: end %q", errInvalidDates, endStr)
	}
	if end.Before(start) {
		return DateRange{}, fmt.Errorf("%w: end %s before start %s", errInvalidDates, endStr, startStr)
	}
	return DateRange{Start: start, End: end.AddDate(0, 0, 1).Add(-time.Nanosecond)}, nil
}

// IsValidParamDates reports whether a dateRange/dates pair can be used as
// is. A custom range needs parseable dates; presets ignore dates.
func IsValidParamDates(dateRange, dates string) bool {
	if !IsDateRangeOption(dateRange) {
		return false
	}
	if dateRange != RangeCustom {
		return true
	}
	_, err := ParseCustomDates(dates, time.UTC)
	return err == nil
}

// ResolveDateRange turns a preset (or custom dates) into concrete bounds
// ending at now. Unknown presets and unusable custom dates fall back to the
// default range.
func ResolveDateRange(dateRange, dates string, now time.Time) DateRange {
	switch dateRange {
	case RangeLast7Days:
		return DateRange{Start: now.AddDate(0, 0, -7), End: now}
	case RangeLast30Days:
		return DateRange{Start: now.AddDate(0, 0, -30), End: now}
	case RangeLast3Months:
		return DateRange{Start: now.AddDate(0, -3, 0), End: now}
	case RangeLast6Months:
		return DateRange{Start: now.AddDate(0, -6, 0), End: now}
	case RangeCustom:
		if r, err := ParseCustomDates(dates, now.Location()); err == nil {
			return r
		}
	}
	return DateRange{Start: now.AddDate(-1, 0, 0), End: now}
}
