package panel

import (
	"math"
	"time"
)

// MonthStart returns midnight UTC of the first day of t's month.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthEnd returns midnight UTC of the last day of t's month.
func MonthEnd(t time.Time) time.Time {
	return MonthStart(t).AddDate(0, 1, -1)
}

// AddMonths shifts t by n calendar months, clamping the day to the end of
// the target month (Mar 31 minus one month is the last day of February).
func AddMonths(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	last := first.AddDate(0, 1, -1).Day()
	d := t.Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// WholeMonths counts the complete calendar months from start to t.
func WholeMonths(start, t time.Time) int {
	m := (t.Year()-start.Year())*12 + int(t.Month()) - int(start.Month())
	if t.Day() < start.Day() {
		m--
	}
	return m
}

// Years is the elapsed time in 365-day years between two dates, using whole
// days. It returns NaN when from is unknown.
func Years(from, to time.Time) float64 {
	if from.IsZero() {
		return math.NaN()
	}
	return float64(Days(from, to)) / 365
}

// Days is the number of calendar days from one date to another.
func Days(from, to time.Time) int {
	f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(math.Round(t.Sub(f).Hours() / 24))
}

// Grid enumerates the execution dates: every month-end on or after first and
// on or before asOf, without the first one, whose month is incomplete for
// the earliest hires.
func Grid(first, asOf time.Time) []time.Time {
	if first.IsZero() || asOf.Before(first) {
		return nil
	}
	var out []time.Time
	for d := MonthEnd(first); !d.After(asOf); d = MonthEnd(AddMonths(MonthStart(d), 1)) {
		out = append(out, d)
	}
	if len(out) <= 1 {
		return nil
	}
	return out[1:]
}
