package panel

import (
	"fmt"
	"reflect"

	"github.com/okian/retention/internal/domain/feature"
)

// TargetColumn is the label column of the engineered table.
const TargetColumn = "termination_value"

type columnDef struct {
	col    feature.Column
	family string
	path   []int
}

var registry = buildRegistry()

// buildRegistry derives the column set from the family structs of Snapshot.
func buildRegistry() []columnDef {
	var defs []columnDef
	st := reflect.TypeOf(Snapshot{})
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		family, ok := f.Tag.Lookup("family")
		if !ok {
			continue
		}
		for j := 0; j < f.Type.NumField(); j++ {
			sf := f.Type.Field(j)
			name := sf.Tag.Get("feature")
			if name == "" {
				continue
			}
			var kind feature.Kind
			switch sf.Type.Kind() {
			case reflect.Float64:
				kind = feature.Numeric
			case reflect.String:
				kind = feature.Categorical
			default:
				panic(fmt.Sprintf("panel: unsupported feature field %s.%s of kind %s", f.Name, sf.Name, sf.Type.Kind()))
			}
			defs = append(defs, columnDef{
				col:    feature.Column{Name: name, Kind: kind},
				family: family,
				path:   []int{i, j},
			})
		}
	}
	return defs
}

// Columns returns the feature columns of the engineered table in order.
func Columns() []feature.Column {
	out := make([]feature.Column, len(registry))
	for i, d := range registry {
		out[i] = d.col
	}
	return out
}

// FamilyOf returns the feature family a column belongs to.
func FamilyOf(name string) (string, bool) {
	for _, d := range registry {
		if d.col.Name == name {
			return d.family, true
		}
	}
	return "", false
}

// KindOf returns the kind of a known column.
func KindOf(name string) (feature.Kind, bool) {
	for _, d := range registry {
		if d.col.Name == name {
			return d.col.Kind, true
		}
	}
	return feature.Numeric, false
}

// Values flattens the snapshot's families in column order.
func (s *Snapshot) Values() []feature.Value {
	v := reflect.ValueOf(s).Elem()
	out := make([]feature.Value, len(registry))
	for i, d := range registry {
		fv := v.FieldByIndex(d.path)
		if d.col.Kind == feature.Categorical {
			if fv.String() == "" {
				out[i] = feature.Missing()
			} else {
				out[i] = feature.Cat(fv.String())
			}
			continue
		}
		out[i] = feature.Num(fv.Float())
	}
	return out
}
