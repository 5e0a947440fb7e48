package types

import (
	"errors"
	"time"
)

// PeriodUnit is the calendar unit a period cap is measured in.
type PeriodUnit string

const (
	PeriodUnitWeek  PeriodUnit = "WEEK"
	PeriodUnitMonth PeriodUnit = "MONTH"
	PeriodUnitYear  PeriodUnit = "YEAR"
)

var (
	ErrPeriodValueNotPositive = errors.New("the period value must be larger than zero")
	ErrPeriodUnitUnknown      = errors.New("the period unit is unknown")
)

// Valid reports whether the unit is one of the known calendar units.
func (u PeriodUnit) Valid() bool {
	return u == PeriodUnitWeek || u == PeriodUnitMonth || u == PeriodUnitYear
}

// Period is a half-open calendar interval [Start, End).
type Period struct {
	Start Date
	End   Date
}

// Contains reports whether the date falls into the period.
func (p Period) Contains(d Date) bool {
	return !d.Before(p.Start) && d.Before(p.End)
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + ")"
}

// Boundaries returns the calendar-aligned period of the given length that
// contains the reference date.
//
// Periods are aligned, not rolling windows:
//   - WEEK: ISO weeks starting on Monday. Multi-week periods align to blocks
//     of ISO week numbers counted from the ISO year's first Monday.
//   - MONTH: single months align to the 1st. Multi-month periods align to
//     fixed blocks within the calendar year, so value 3 yields the quarters.
//   - YEAR: single years align to Jan 1. Multi-year periods align to blocks
//     of that many years anchored at year 0.
//
// An error is only returned for a non-positive value or an unknown unit,
// which is a contract violation: rule validation rejects both on write.
func Boundaries(reference Date, value int, unit PeriodUnit) (Period, error) {
	if value <= 0 {
		return Period{}, ErrPeriodValueNotPositive
	}

	switch unit {
	case PeriodUnitWeek:
		isoYear, isoWeek := time.Time(reference).ISOWeek()

		// Block of ISO week numbers this date falls into, counted from week 1
		block := (isoWeek - 1) / value * value

		start := firstISOMonday(isoYear).AddDate(0, 0, block*7)
		return Period{Start: start, End: start.AddDate(0, 0, value*7)}, nil

	case PeriodUnitMonth:
		startMonth := (int(reference.Month())-1)/value*value + 1

		start := NewDate(reference.Year(), time.Month(startMonth), 1)
		return Period{Start: start, End: start.AddDate(0, value, 0)}, nil

	case PeriodUnitYear:
		year := reference.Year()

		// Anchored at year 0. Floor division so that years before year 0
		// still map to the block below them.
		startYear := year / value * value
		if year < 0 && year%value != 0 {
			startYear -= value
		}

		start := NewDate(startYear, time.January, 1)
		return Period{Start: start, End: start.AddDate(value, 0, 0)}, nil

	default:
		return Period{}, ErrPeriodUnitUnknown
	}
}

// firstISOMonday returns the Monday of ISO week 1 of the given ISO year,
// which is the Monday of the week containing January 4.
func firstISOMonday(isoYear int) Date {
	jan4 := NewDate(isoYear, time.January, 4)

	// time.Weekday has Sunday = 0, ISO weeks start on Monday
	offset := (int(jan4.Weekday()) + 6) % 7
	return jan4.AddDate(0, 0, -offset)
}
