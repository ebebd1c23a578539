// Package feature defines the typed cell values shared by the panel, the
// model and the attribution engine.
package feature

import (
	"math"
	"strconv"
)

// Kind is the type of a feature column.
type Kind int

const (
	Numeric Kind = iota
	Categorical
)

func (k Kind) String() string {
	if k == Categorical {
		return "categorical"
	}
	return "numeric"
}

// Column describes one named feature.
type Column struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// Value is one cell. Numeric cells use Num (NaN when missing); categorical
// cells use Cat ("" when missing).
type Value struct {
	Num float64
	Cat string
}

// Num returns a numeric cell.
func Num(v float64) Value { return Value{Num: v} }

// Cat returns a categorical cell.
func Cat(v string) Value { return Value{Cat: v, Num: math.NaN()} }

// Missing returns an empty cell.
func Missing() Value { return Value{Num: math.NaN()} }

// IsMissing reports whether the cell holds no value for the given kind.
func (v Value) IsMissing(k Kind) bool {
	if k == Categorical {
		return v.Cat == ""
	}
	return math.IsNaN(v.Num)
}

// Format renders the cell for tabular output. Missing numbers render empty.
func (v Value) Format(k Kind) string {
	if k == Categorical {
		return v.Cat
	}
	if math.IsNaN(v.Num) {
		return ""
	}
	return strconv.FormatFloat(v.Num, 'g', -1, 64)
}

// Parse reads a cell written by Format.
func Parse(k Kind, s string) (Value, error) {
	if k == Categorical {
		if s == "" {
			return Missing(), nil
		}
		return Cat(s), nil
	}
	if s == "" || s == "NaN" || s == "nan" {
		return Missing(), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Value{}, err
	}
	return Num(f), nil
}

// Names returns the column names in order.
func Names(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}
