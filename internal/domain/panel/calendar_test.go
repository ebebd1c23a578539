package panel

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func TestAddMonths(t *testing.T) {
	cases := []struct {
		in   time.Time
		n    int
		want time.Time
	}{
		{date(2023, 3, 31), -1, date(2023, 2, 28)},
		{date(2024, 3, 31), -1, date(2024, 2, 29)},
		{date(2023, 1, 31), 3, date(2023, 4, 30)},
		{date(2023, 11, 15), 3, date(2024, 2, 15)},
		{date(2023, 6, 30), -6, date(2022, 12, 30)},
	}
	for _, tc := range cases {
		if got := AddMonths(tc.in, tc.n); !got.Equal(tc.want) {
			t.Errorf("AddMonths(%s, %d) = %s, want %s", tc.in.Format(time.DateOnly), tc.n, got.Format(time.DateOnly), tc.want.Format(time.DateOnly))
		}
	}
}

func TestGrid(t *testing.T) {
	g := Grid(date(2022, 1, 10), date(2022, 5, 15))
	want := []time.Time{date(2022, 2, 28), date(2022, 3, 31), date(2022, 4, 30)}
	if len(g) != len(want) {
		t.Fatalf("grid has %d dates, want %d: %v", len(g), len(want), g)
	}
	for i := range want {
		if !g[i].Equal(want[i]) {
			t.Errorf("grid[%d] = %s, want %s", i, g[i], want[i])
		}
	}

	if g := Grid(date(2022, 1, 10), date(2022, 1, 31)); g != nil {
		t.Errorf("a single month-end is skipped, got %v", g)
	}
	if g := Grid(time.Time{}, date(2022, 1, 31)); g != nil {
		t.Errorf("unknown start must give no grid, got %v", g)
	}
}

func TestWholeMonthsAndYears(t *testing.T) {
	if m := WholeMonths(date(2023, 1, 1), date(2023, 3, 10)); m != 2 {
		t.Errorf("WholeMonths = %d, want 2", m)
	}
	if m := WholeMonths(date(2023, 1, 15), date(2023, 3, 10)); m != 1 {
		t.Errorf("WholeMonths = %d, want 1", m)
	}
	if y := Years(date(2022, 1, 1), date(2023, 1, 1)); y != 1 {
		t.Errorf("Years = %v, want 1", y)
	}
}

func TestTerminationValue(t *testing.T) {
	exec := date(2023, 1, 31)
	cases := []struct {
		name  string
		terms []time.Time
		want  float64
	}{
		{"no termination", nil, 0},
		{"same month", []time.Time{date(2023, 1, 31)}, 1},
		{"next month", []time.Time{date(2023, 2, 1)}, 2.0 / 3},
		{"month plus two", []time.Time{date(2023, 3, 31)}, 1.0 / 3},
		{"after window", []time.Time{date(2023, 4, 1)}, 0},
		{"before window", []time.Time{date(2022, 12, 31)}, 0},
		{"earliest wins", []time.Time{date(2023, 3, 2), date(2023, 2, 2)}, 2.0 / 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := TerminationValue(exec, tc.terms); got != tc.want {
				t.Fatalf("TerminationValue = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDistanceKm(t *testing.T) {
	bangkok := Location{Lat: 13.7563, Lon: 100.5018}
	chiangMai := Location{Lat: 18.7883, Lon: 98.9853}
	d := DistanceKm(bangkok, chiangMai)
	if d < 570 || d > 590 {
		t.Fatalf("unexpected distance %v", d)
	}
	if DistanceKm(bangkok, bangkok) != 0 {
		t.Fatal("distance to self must be 0")
	}
}
