package panel

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/okian/retention/internal/domain/feature"
)

// ErrMissingColumns is returned when a requested column is absent.
var ErrMissingColumns = errors.New("missing columns")

// Row is one (employee, execution date) line of the engineered table.
type Row struct {
	EmployeeID       string
	ExecutionDate    time.Time
	Meta             Meta
	Values           []feature.Value
	TerminationValue float64
}

// Frame is the engineered feature table.
type Frame struct {
	Columns []feature.Column
	Rows    []Row
}

// NewFrame flattens snapshots into a frame with the full column set.
func NewFrame(snaps []Snapshot) *Frame {
	f := &Frame{Columns: Columns(), Rows: make([]Row, len(snaps))}
	for i := range snaps {
		s := &snaps[i]
		f.Rows[i] = Row{
			EmployeeID:       s.EmployeeID,
			ExecutionDate:    s.ExecutionDate,
			Meta:             s.Meta,
			Values:           s.Values(),
			TerminationValue: s.TerminationValue,
		}
	}
	return f
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.Rows) }

// Index returns the position of a column or -1.
func (f *Frame) Index(name string) int {
	for i, c := range f.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Names returns the column names.
func (f *Frame) Names() []string { return feature.Names(f.Columns) }

// Dates returns the distinct execution dates in ascending order.
func (f *Frame) Dates() []time.Time {
	seen := make(map[time.Time]struct{})
	var out []time.Time
	for _, r := range f.Rows {
		d := r.ExecutionDate.UTC()
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Filter returns the rows matching keep. Columns are shared.
func (f *Frame) Filter(keep func(Row) bool) *Frame {
	out := &Frame{Columns: f.Columns}
	for _, r := range f.Rows {
		if keep(r) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// OnDates returns the rows whose execution date is one of dates.
func (f *Frame) OnDates(dates ...time.Time) *Frame {
	set := make(map[time.Time]struct{}, len(dates))
	for _, d := range dates {
		set[d.UTC()] = struct{}{}
	}
	return f.Filter(func(r Row) bool {
		_, ok := set[r.ExecutionDate.UTC()]
		return ok
	})
}

// Latest returns the rows of the most recent execution date.
func (f *Frame) Latest() (*Frame, time.Time) {
	dates := f.Dates()
	if len(dates) == 0 {
		return &Frame{Columns: f.Columns}, time.Time{}
	}
	last := dates[len(dates)-1]
	return f.OnDates(last), last
}

// Select returns a frame with only the named columns, in the given order.
// Unknown names fail with ErrMissingColumns.
func (f *Frame) Select(names []string) (*Frame, error) {
	idx := make([]int, len(names))
	var missing []string
	for i, n := range names {
		idx[i] = f.Index(n)
		if idx[i] < 0 {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	out := &Frame{Columns: make([]feature.Column, len(names)), Rows: make([]Row, len(f.Rows))}
	for i, j := range idx {
		out.Columns[i] = f.Columns[j]
	}
	for r, row := range f.Rows {
		vals := make([]feature.Value, len(idx))
		for i, j := range idx {
			vals[i] = row.Values[j]
		}
		row.Values = vals
		out.Rows[r] = row
	}
	return out, nil
}

// Drop returns a frame without the named columns.
func (f *Frame) Drop(names ...string) *Frame {
	skip := make(map[string]struct{}, len(names))
	for _, n := range names {
		skip[n] = struct{}{}
	}
	var keep []string
	for _, c := range f.Columns {
		if _, ok := skip[c.Name]; !ok {
			keep = append(keep, c.Name)
		}
	}
	out, _ := f.Select(keep)
	return out
}

// Matrix returns the cell rows.
func (f *Frame) Matrix() [][]feature.Value {
	out := make([][]feature.Value, len(f.Rows))
	for i, r := range f.Rows {
		out[i] = r.Values
	}
	return out
}

// Targets returns the label column.
func (f *Frame) Targets() []float64 {
	out := make([]float64, len(f.Rows))
	for i, r := range f.Rows {
		out[i] = r.TerminationValue
	}
	return out
}

// MissingRatio returns the share of missing cells per column.
func (f *Frame) MissingRatio() []float64 {
	out := make([]float64, len(f.Columns))
	if len(f.Rows) == 0 {
		return out
	}
	for _, r := range f.Rows {
		for i, c := range f.Columns {
			if r.Values[i].IsMissing(c.Kind) {
				out[i]++
			}
		}
	}
	for i := range out {
		out[i] /= float64(len(f.Rows))
	}
	return out
}

// Dedupe keeps the last row per (employee, execution date), preserving the
// position of that last occurrence.
func (f *Frame) Dedupe() *Frame {
	type key struct {
		id string
		at time.Time
	}
	last := make(map[key]int, len(f.Rows))
	for i, r := range f.Rows {
		last[key{r.EmployeeID, r.ExecutionDate.UTC()}] = i
	}
	out := &Frame{Columns: f.Columns}
	for i, r := range f.Rows {
		if last[key{r.EmployeeID, r.ExecutionDate.UTC()}] == i {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}
