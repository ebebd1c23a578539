package skills

import (
	"testing"

	"github.com/okian/retention/internal/domain/hr"
	. "github.com/smartystreets/goconvey/convey"
)

func TestCanonicalize(t *testing.T) {
	Convey("Given a catalog with near-duplicate labels", t, func() {
		catalog := []hr.Skill{
			{ID: "s1", Name: "Data Analysis"},
			{ID: "s2", Name: "data-analysis"},
			{ID: "s3", Name: "Data Analysis."},
			{ID: "s4", Name: "Public Speaking"},
			{ID: "s5", Name: "Go"},
		}
		n := New()

		Convey("When usage frequencies differ", func() {
			freq := map[string]int{"s1": 2, "s2": 7, "s3": 1, "s4": 3}
			got := n.Canonicalize(catalog, freq)

			Convey("Then the most used label wins", func() {
				So(got["s1"], ShouldEqual, "s2")
				So(got["s2"], ShouldEqual, "s2")
				So(got["s3"], ShouldEqual, "s2")
			})

			Convey("Then unrelated skills stay on their own", func() {
				So(got["s4"], ShouldEqual, "s4")
				So(got["s5"], ShouldEqual, "s5")
			})
		})

		Convey("When frequencies tie", func() {
			got := n.Canonicalize(catalog, nil)

			Convey("Then the lexicographically first name wins", func() {
				So(got["s2"], ShouldEqual, "s1")
			})
		})

		Convey("When the catalog order is reversed", func() {
			reversed := make([]hr.Skill, len(catalog))
			for i, s := range catalog {
				reversed[len(catalog)-1-i] = s
			}
			freq := map[string]int{"s1": 2, "s2": 7}

			Convey("Then the result is unchanged", func() {
				So(n.Canonicalize(reversed, freq), ShouldResemble, n.Canonicalize(catalog, freq))
			})
		})

		Convey("When the groups are listed", func() {
			groups := Groups(n.Canonicalize(catalog, nil))
			So(groups["s1"], ShouldResemble, []string{"s1", "s2", "s3"})
			So(len(groups), ShouldEqual, 3)
		})
	})

	Convey("Given chained similarities", t, func() {
		Convey("Then transitively similar labels share one component", func() {
			catalog := []hr.Skill{{ID: "a", Name: "abcdefghij"}, {ID: "b", Name: "abcdefghix"}, {ID: "c", Name: "xbcdefghix"}}
			So(Similarity("abcdefghij", "xbcdefghix"), ShouldBeLessThan, 0.6)
			got := New(WithThreshold(0.6)).Canonicalize(catalog, nil)
			So(got["a"], ShouldEqual, "a")
			So(got["b"], ShouldEqual, "a")
			So(got["c"], ShouldEqual, "a")
		})
	})
}

func TestSimilarity(t *testing.T) {
	if s := Similarity("Machine Learning", "machine-learning"); s != 1 {
		t.Fatalf("punctuation and case should fold, got %v", s)
	}
	if s := Similarity("Sales", "Accounting"); s > 0.2 {
		t.Fatalf("unrelated labels too similar: %v", s)
	}
	if New(WithThreshold(2)).Threshold() != DefaultThreshold {
		t.Fatal("out of range threshold should be ignored")
	}
}
