package report

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/okian/retention/internal/domain/attribution"
	"github.com/okian/retention/internal/domain/failure"
	"github.com/okian/retention/internal/domain/feature"
	"github.com/okian/retention/internal/domain/gbm"
	"github.com/okian/retention/internal/domain/panel"
	"github.com/okian/retention/internal/domain/prediction"
	"github.com/okian/retention/internal/domain/training"
	. "github.com/smartystreets/goconvey/convey"
)

var (
	april = time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC)
	may   = time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)
	cols  = []feature.Column{{Name: "x", Kind: feature.Numeric}, {Name: "y", Kind: feature.Numeric}}
)

func meta(dept string, level int) panel.Meta {
	return panel.Meta{DepartmentName: dept, DepartmentID: "id-" + dept, JobLevel: level}
}

func fixture(t *testing.T) Input {
	t.Helper()
	row := func(id string, at time.Time, m panel.Meta, label float64) panel.Row {
		return panel.Row{EmployeeID: id, ExecutionDate: at, Meta: m, TerminationValue: label,
			Values: []feature.Value{feature.Num(1), feature.Num(2)}}
	}
	f := &panel.Frame{Columns: cols, Rows: []panel.Row{
		row("a", april, meta("Sales", 0), 0),
		row("b", april, meta("Sales", 1), 0),
		row("c", april, meta("Support", 0), 1.0/3),
		row("a", may, meta("Sales", 0), 0),
		row("b", may, meta("Sales", 1), 0),
		row("d", may, meta("Support", 2), 0),
	}}
	latest, _ := f.Latest()
	batch := &prediction.Batch{
		ExecutionDate: may,
		Threshold:     0.3,
		Inputs:        latest,
		Predictions: []prediction.Prediction{
			{EmployeeID: "a", TerminationProbability: 0.8, PredictedTermination: true},
			{EmployeeID: "b", TerminationProbability: 0.1},
			{EmployeeID: "d", TerminationProbability: 0.456},
		},
	}

	var X [][]feature.Value
	var y []float64
	for i := 0; i < 60; i++ {
		X = append(X, []feature.Value{feature.Num(float64(i)), feature.Num(float64(i % 7))})
		y = append(y, float64(i/30))
	}
	p := gbm.DefaultParams()
	p.Iterations = 10
	ens, err := gbm.Fit(context.Background(), cols, X, y, p, nil)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	model := &training.Model{Ensemble: ens, Metadata: training.Metadata{Features: []string{"x", "y"}, OptimalThreshold: 0.3}}

	res := &attribution.Result{
		Features: []string{"x", "y"},
		Records: []attribution.Record{
			{EmployeeID: "a", Meta: meta("Sales", 0), Contributions: []float64{0.3, -0.1}},
			{EmployeeID: "b", Meta: meta("Sales", 1), Contributions: []float64{0.1, 0.1}},
		},
		Failures: []attribution.Failure{{EmployeeID: "d", Err: failure.New("explain d", failure.ErrAttributionComputation)}},
	}
	return Input{Panel: f, Batch: batch, Model: model, Attributions: res}
}

func TestBuild(t *testing.T) {
	in := fixture(t)

	Convey("Given a panel, predictions and attributions", t, func() {
		r, err := NewBuilder().Build(context.Background(), in)
		So(err, ShouldBeNil)

		Convey("The overall summary covers the next three months", func() {
			So(r.OverallSummary, ShouldResemble, Summary{
				PredictionStartDate:           "2024-06-30",
				PredictionEndDate:             "2024-09-29",
				TotalEmployees:                3,
				TotalEmployeesLeft:            1,
				EmployeesPredictedToLeave:     1,
				AverageTerminationProbability: 0.45,
				TerminationThreshold:          0.3,
			})
		})

		Convey("Historical proportions count employees who left", func() {
			So(r.DepartmentProportion, ShouldResemble, []DepartmentCount{{DepartmentName: "Support", DepartmentID: "id-Support", TerminationCount: 1}})
			So(r.JobLevelProportion, ShouldResemble, []JobLevelCount{{JobLevel: 0, LevelName: "Junior", TerminationCount: 1}})
		})

		Convey("Distributions hold rounded probabilities per cohort", func() {
			So(r.DepartmentDistribution, ShouldHaveLength, 2)
			So(r.DepartmentDistribution[0].DepartmentName, ShouldEqual, "Sales")
			So(r.DepartmentDistribution[0].Probabilities, ShouldResemble, []float64{0.8, 0.1})
			So(r.DepartmentDistribution[1].Probabilities, ShouldResemble, []float64{0.46})

			So(r.JobLevelDistribution, ShouldHaveLength, 3)
			So(r.JobLevelDistribution[0].LevelName, ShouldEqual, "Junior")
			So(r.JobLevelDistribution[0].Probabilities, ShouldResemble, []float64{0.8})
			So(r.JobLevelDistribution[2].LevelName, ShouldEqual, "Senior")
		})

		Convey("Explanations cover predicted leavers and cohorts", func() {
			So(r.ReasonByEmployee, ShouldHaveLength, 1)
			So(r.ReasonByEmployee[0].EmployeeID, ShouldEqual, "a")
			So(r.ReasonByEmployee[0].PredictedProbability, ShouldEqual, 0.8)
			So(r.ReasonByEmployee[0].ImpactFactors, ShouldHaveLength, 1)
			So(r.ReasonByEmployee[0].ImpactFactors[0].FeatureName, ShouldEqual, "X")
			So(r.ReasonByEmployee[0].ImpactFactors[0].ImpactPercentage, ShouldEqual, 100)

			So(r.ReasonByDepartment, ShouldHaveLength, 1)
			So(r.ReasonByDepartment[0].DepartmentID, ShouldEqual, "id-Sales")
			So(r.ReasonByDepartment[0].CohortStats, ShouldResemble, CohortStats{TotalEmployeeLeft: 0, TotalEmployeeToLeave: 1, AvgTerminationProbability: 0.45})

			So(r.ReasonByJobLevel, ShouldHaveLength, 2)
			So(r.ReasonByJobLevel[0].JobLevel, ShouldEqual, "0")
			So(r.ReasonByJobLevel[0].CohortStats, ShouldResemble, CohortStats{TotalEmployeeLeft: 1, TotalEmployeeToLeave: 1, AvgTerminationProbability: 0.8})

			So(r.TopQuittingReason, ShouldHaveLength, 1)
			So(r.TopQuittingReason[0].ImpactPercentage, ShouldEqual, 100)
		})

		Convey("Partial failures are surfaced", func() {
			So(r.PartialFailures, ShouldResemble, PartialFailures{Count: 1, EmployeeIDs: []string{"d"}})
		})

		Convey("The document uses the published keys", func() {
			raw, err := json.Marshal(r)
			So(err, ShouldBeNil)
			var doc map[string]any
			So(json.Unmarshal(raw, &doc), ShouldBeNil)
			for _, k := range []string{"overall_summary", "department_proportion", "job_level_proportion",
				"department_distribution", "job_level_distribution", "top_quitting_reason",
				"reason_by_employee", "reason_by_department", "reason_by_job_level", "partial_failures"} {
				So(doc, ShouldContainKey, k)
			}
			top := doc["top_quitting_reason"].([]any)[0].(map[string]any)
			So(top, ShouldContainKey, "feature_name")
			So(top, ShouldContainKey, "impact_percentage")
			So(top, ShouldContainKey, "recommendation_action")
			So(top, ShouldNotContainKey, "ImpactValue")
		})
	})

	Convey("Without attributions the report has no explanations", t, func() {
		in := fixture(t)
		in.Attributions = nil
		r, err := NewBuilder().Build(context.Background(), in)
		So(err, ShouldBeNil)
		So(r.TopQuittingReason, ShouldBeNil)
		So(r.ReasonByEmployee, ShouldBeNil)
		So(r.PartialFailures.Count, ShouldEqual, 0)
		So(r.FeatureImportance, ShouldHaveLength, 2)
		So(r.Predictions, ShouldHaveLength, 3)
	})

	Convey("A cancelled context stops the build", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewBuilder().Build(ctx, in)
		So(errors.Is(err, context.Canceled), ShouldBeTrue)
	})
}

func TestJobLevelName(t *testing.T) {
	cases := map[int]string{0: "Junior", 3: "Lead", 7: "C-Level", -1: "Unknown", 9: "Level 9"}
	for level, want := range cases {
		if got := JobLevelName(level); got != want {
			t.Errorf("JobLevelName(%d) = %q, want %q", level, got, want)
		}
	}
}
