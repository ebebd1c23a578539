package panel

import "time"

// LookaheadMonths is the width of the attrition label window.
const LookaheadMonths = 3

// LabelWindow returns the half-open window [start, end) the label of an
// execution date looks into: LookaheadMonths calendar months starting on the
// first day of the execution month.
func LabelWindow(executionDate time.Time) (start, end time.Time) {
	start = MonthStart(executionDate)
	return start, AddMonths(start, LookaheadMonths)
}

// TerminationValue is the decayed attrition label. With k the number of
// whole months between the window start and the earliest termination in the
// window, the label is (3-k)/3; without a termination it is 0.
func TerminationValue(executionDate time.Time, terminations []time.Time) float64 {
	start, end := LabelWindow(executionDate)
	var first time.Time
	for _, t := range terminations {
		if t.Before(start) || !t.Before(end) {
			continue
		}
		if first.IsZero() || t.Before(first) {
			first = t
		}
	}
	if first.IsZero() {
		return 0
	}
	k := WholeMonths(start, first)
	return float64(LookaheadMonths-k) / LookaheadMonths
}
