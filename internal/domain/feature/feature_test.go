package feature

import (
	"math"
	"testing"
)

func TestValueFormatParse(t *testing.T) {
	cases := []struct {
		name string
		kind Kind
		in   Value
		out  string
	}{
		{"number", Numeric, Num(1.25), "1.25"},
		{"missing number", Numeric, Missing(), ""},
		{"category", Categorical, Cat("Sales"), "Sales"},
		{"missing category", Categorical, Missing(), ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := tc.in.Format(tc.kind)
			if s != tc.out {
				t.Fatalf("Format = %q, want %q", s, tc.out)
			}
			back, err := Parse(tc.kind, s)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if back.IsMissing(tc.kind) != tc.in.IsMissing(tc.kind) {
				t.Fatalf("missing flag changed for %q", s)
			}
			if tc.kind == Numeric && !tc.in.IsMissing(tc.kind) && back.Num != tc.in.Num {
				t.Fatalf("number changed: %v != %v", back.Num, tc.in.Num)
			}
		})
	}

	if _, err := Parse(Numeric, "abc"); err == nil {
		t.Fatal("expected parse error")
	}
	if !math.IsNaN(Cat("x").Num) {
		t.Fatal("categorical cells must not carry a number")
	}
}
