package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// maxRecordErrors caps the problems collected from one file.
const maxRecordErrors = 10

// dateLayouts are tried in order when parsing dates.
var dateLayouts = []string{time.DateOnly, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"}

// table iterates the records of one CSV file by header name.
type table struct {
	name   string
	r      *csv.Reader
	cols   map[string]int
	record []string
	line   int
	errs   []string
}

func newTable(name string, src io.Reader, required []string) (*table, error) {
	r := csv.NewReader(src)
	r.TrimLeadingSpace = true
	r.ReuseRecord = true
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: empty file", name)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: read header: %w", name, err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	var missing []string
	for _, c := range required {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%s: missing columns %s", name, strings.Join(missing, ", "))
	}
	return &table{name: name, r: r, cols: cols, line: 1}, nil
}

// next advances to the next record. It returns false at EOF or on a
// malformed record, which is recorded as a problem.
func (t *table) next() bool {
	rec, err := t.r.Read()
	t.line++
	if errors.Is(err, io.EOF) {
		return false
	}
	if err != nil {
		t.fail("", err)
		return false
	}
	t.record = rec
	return true
}

func (t *table) fail(col string, err error) {
	if len(t.errs) >= maxRecordErrors {
		return
	}
	if col == "" {
		t.errs = append(t.errs, fmt.Sprintf("%s:%d: %v", t.name, t.line, err))
		return
	}
	t.errs = append(t.errs, fmt.Sprintf("%s:%d: %s: %v", t.name, t.line, col, err))
}

func (t *table) err() error {
	if len(t.errs) == 0 {
		return nil
	}
	return errors.New(strings.Join(t.errs, "; "))
}

func (t *table) str(col string) string {
	i, ok := t.cols[col]
	if !ok || i >= len(t.record) {
		return ""
	}
	return strings.TrimSpace(t.record[i])
}

func (t *table) int(col string) int {
	s := t.str(col)
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != float64(int(f)) {
			t.fail(col, fmt.Errorf("not an integer: %q", s))
			return 0
		}
		return int(f)
	}
	return v
}

// float returns the value and whether the cell was present.
func (t *table) float(col string) (float64, bool) {
	s := t.str(col)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		t.fail(col, fmt.Errorf("not a number: %q", s))
		return 0, false
	}
	return v, true
}

func (t *table) date(col string) time.Time {
	s := t.str(col)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if v, err := time.Parse(layout, s); err == nil {
			return v.UTC()
		}
	}
	t.fail(col, fmt.Errorf("not a date: %q", s))
	return time.Time{}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.DateOnly)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
