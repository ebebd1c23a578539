package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/okian/retention/internal/domain/failure"
	"github.com/okian/retention/internal/domain/feature"
	"github.com/okian/retention/internal/domain/panel"
)

// Key columns written ahead of the features.
var panelKeys = []string{"employee_id", "execution_date", "department_id", "position_id", "manager_id"}

// WritePanel writes f as CSV: key columns, then features, then the label.
func WritePanel(w io.Writer, f *panel.Frame) error {
	cw := csv.NewWriter(w)
	header := make([]string, 0, len(panelKeys)+len(f.Columns)+1)
	header = append(header, panelKeys...)
	header = append(header, f.Names()...)
	header = append(header, panel.TargetColumn)
	if err := cw.Write(header); err != nil {
		return err
	}
	rec := make([]string, len(header))
	for _, r := range f.Rows {
		rec = rec[:0]
		rec = append(rec, r.EmployeeID, formatDate(r.ExecutionDate), r.Meta.DepartmentID, r.Meta.PositionID, r.Meta.ManagerID)
		for i, c := range f.Columns {
			rec = append(rec, r.Values[i].Format(c.Kind))
		}
		rec = append(rec, formatFloat(r.TerminationValue))
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadPanel reads a frame written by WritePanel. Feature columns keep the
// file order; columns that are not engineered features are ignored. Rows
// repeating an (employee, execution date) pair keep the last one, and rows
// come back ordered by execution date.
func ReadPanel(r io.Reader) (*panel.Frame, error) {
	const name = "panel"
	t, err := newTable(name, r, append(append([]string{}, panelKeys[:2]...), panel.TargetColumn))
	if err != nil {
		return nil, failure.Wrap("read panel", failure.ErrDataIntegrity, err)
	}

	var cols []feature.Column
	var pos []int
	for _, h := range fileOrder(t.cols) {
		kind, ok := panel.KindOf(h)
		if !ok {
			continue
		}
		cols = append(cols, feature.Column{Name: h, Kind: kind})
		pos = append(pos, t.cols[h])
	}
	if len(cols) == 0 {
		return nil, failure.Wrap("read panel", failure.ErrDataIntegrity, errors.New("no feature columns"))
	}

	f := &panel.Frame{Columns: cols}
	levelAt, nameAt := -1, -1
	for i, c := range cols {
		switch c.Name {
		case "job_level":
			levelAt = i
		case "department_name":
			nameAt = i
		}
	}
	for t.next() {
		row := panel.Row{
			EmployeeID:    t.str("employee_id"),
			ExecutionDate: t.date("execution_date"),
			Meta: panel.Meta{
				DepartmentID: t.str("department_id"),
				PositionID:   t.str("position_id"),
				ManagerID:    t.str("manager_id"),
				JobLevel:     -1,
			},
			Values: make([]feature.Value, len(cols)),
		}
		if row.ExecutionDate.IsZero() {
			t.fail("execution_date", fmt.Errorf("required"))
		}
		for i, c := range cols {
			cell := ""
			if pos[i] < len(t.record) {
				cell = strings.TrimSpace(t.record[pos[i]])
			}
			v, err := feature.Parse(c.Kind, cell)
			if err != nil {
				t.fail(c.Name, err)
				v = feature.Missing()
			}
			row.Values[i] = v
		}
		if levelAt >= 0 && !math.IsNaN(row.Values[levelAt].Num) {
			row.Meta.JobLevel = int(row.Values[levelAt].Num)
		}
		if nameAt >= 0 {
			row.Meta.DepartmentName = row.Values[nameAt].Cat
		}
		label, _ := t.float(panel.TargetColumn)
		row.TerminationValue = label
		f.Rows = append(f.Rows, row)
	}
	if err := t.err(); err != nil {
		return nil, failure.Wrap("read panel", failure.ErrDataIntegrity, err)
	}
	f = f.Dedupe()
	panel.SortRows(f)
	return f, nil
}

func fileOrder(cols map[string]int) []string {
	out := make([]string, len(cols))
	for name, i := range cols {
		out[i] = name
	}
	return out
}
