package panel

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/okian/retention/internal/domain/failure"
	"github.com/okian/retention/internal/domain/hr"
	. "github.com/smartystreets/goconvey/convey"
)

// rosterDataset has 100 employees hired in January 2022. Employee e042
// leaves on 2023-03-10 and e000 is the only report of manager "solo".
func rosterDataset() *hr.Dataset {
	ds := &hr.Dataset{
		Departments: []hr.Department{{ID: "d1", Name: "Engineering"}, {ID: "d2", Name: "Sales"}},
		Positions: []hr.Position{
			{ID: "p1", Name: "Engineer", JobLevel: 1, DepartmentID: "d1", MarketSalary: 50000},
			{ID: "p2", Name: "Account Manager", JobLevel: 2, DepartmentID: "d2", MarketSalary: 60000},
		},
		Skills:         []hr.Skill{{ID: "s1", Name: "Go"}, {ID: "s2", Name: "SQL"}, {ID: "s3", Name: "sql."}},
		PositionSkills: []hr.PositionSkill{{PositionID: "p1", SkillID: "s1"}, {PositionID: "p1", SkillID: "s2"}},
	}
	hire := date(2022, 1, 10)
	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("e%03d", i)
		pos := "p1"
		if i%2 == 1 {
			pos = "p2"
		}
		manager := fmt.Sprintf("m%d", i%4)
		if i == 0 {
			manager = "solo"
		}
		ds.Employees = append(ds.Employees, hr.Employee{
			ID: id, BirthDate: date(1990, 5, 1), EducationLevel: 2, Children: i % 3,
			HireDate: hire, ResidenceLat: 13.75, ResidenceLon: 100.5, HasResidence: true,
		})
		ds.Movements = append(ds.Movements, hr.Movement{
			EmployeeID: id, PositionID: pos, Type: hr.MovementHire, Salary: 40000 + float64(i*100), EffectiveDate: hire,
		})
		ds.Managers = append(ds.Managers, hr.ManagerAssignment{EmployeeID: id, ManagerID: manager, StartDate: hire})
		ds.Evaluations = append(ds.Evaluations, hr.Evaluation{EmployeeID: id, Score: float64(i % 5), EvaluatedAt: date(2022, 6, 30)})
	}

	ds.Movements = append(ds.Movements,
		hr.Movement{EmployeeID: "e042", Type: hr.MovementVoluntaryTermination, EffectiveDate: date(2023, 3, 10)},
		hr.Movement{EmployeeID: "e002", PositionID: "p1", Type: hr.MovementSalaryAdjustment, Salary: 48000, EffectiveDate: date(2022, 9, 1)},
		hr.Movement{EmployeeID: "e004", PositionID: "p2", Type: hr.MovementPromotion, Salary: 52000, EffectiveDate: date(2022, 7, 1)},
	)
	ds.EmployeeSkills = append(ds.EmployeeSkills,
		hr.EmployeeSkill{EmployeeID: "e002", SkillID: "s1", Score: 3, RecordedAt: date(2022, 2, 1)},
		hr.EmployeeSkill{EmployeeID: "e002", SkillID: "s1", Score: 5, RecordedAt: date(2022, 8, 1)},
		hr.EmployeeSkill{EmployeeID: "e002", SkillID: "s3", Score: 4, RecordedAt: date(2022, 8, 1)},
	)
	ds.Clock = append(ds.Clock,
		hr.ClockEntry{EmployeeID: "e002", Type: hr.ClockOvertime, StartDate: date(2022, 10, 5), Hours: 4},
		hr.ClockEntry{EmployeeID: "e002", Type: hr.ClockOvertime, StartDate: date(2022, 12, 20), Hours: 6},
		hr.ClockEntry{EmployeeID: "e002", Type: hr.ClockRegular, StartDate: date(2022, 12, 21), Hours: 8},
	)
	ds.Leaves = append(ds.Leaves,
		hr.Leave{EmployeeID: "e002", Type: hr.LeaveSick, StartDate: date(2022, 8, 1), Hours: 8},
		hr.Leave{EmployeeID: "e002", Type: hr.LeaveVacation, StartDate: date(2022, 12, 1), Hours: 16},
	)
	ds.Engagements = append(ds.Engagements,
		hr.Engagement{EmployeeID: "e002", EventID: "ev1", Type: hr.EngagementTraining, StartDate: date(2022, 3, 1)},
		hr.Engagement{EmployeeID: "e002", EventID: "ev2", Type: hr.EngagementActivity, StartDate: date(2022, 4, 1)},
		hr.Engagement{EmployeeID: "e002", EventID: "ev3", Type: hr.EngagementTraining, StartDate: date(2023, 4, 1)},
	)
	return ds
}

func rowOf(f *Frame, id string, at time.Time) (Row, bool) {
	for _, r := range f.Rows {
		if r.EmployeeID == id && r.ExecutionDate.Equal(at) {
			return r, true
		}
	}
	return Row{}, false
}

func num(f *Frame, r Row, col string) float64 {
	return r.Values[f.Index(col)].Num
}

func TestBuilder(t *testing.T) {
	Convey("Given a roster of 100 employees with one leaver", t, func() {
		ds := rosterDataset()
		b := NewBuilder(WithCompanyLocation(13.80, 100.55))
		f, err := b.Build(context.Background(), ds, date(2023, 6, 15))
		So(err, ShouldBeNil)

		Convey("Then every month-end after the first is an execution date", func() {
			dates := f.Dates()
			So(len(dates), ShouldEqual, 16)
			So(dates[0], ShouldEqual, date(2022, 2, 28))
			So(dates[15], ShouldEqual, date(2023, 5, 31))
		})

		Convey("Then the leaver disappears once terminated", func() {
			So(f.Len(), ShouldEqual, 13*100+3*99)
			_, ok := rowOf(f, "e042", date(2023, 3, 31))
			So(ok, ShouldBeFalse)
			_, ok = rowOf(f, "e042", date(2023, 2, 28))
			So(ok, ShouldBeTrue)
		})

		Convey("Then no (employee, execution date) pair repeats", func() {
			So(CheckUnique(f), ShouldBeNil)
		})

		Convey("Then the label decays with distance to the termination", func() {
			r, _ := rowOf(f, "e042", date(2023, 1, 31))
			So(r.TerminationValue, ShouldAlmostEqual, 1.0/3, 1e-12)
			r, _ = rowOf(f, "e042", date(2023, 2, 28))
			So(r.TerminationValue, ShouldAlmostEqual, 2.0/3, 1e-12)
			r, _ = rowOf(f, "e042", date(2022, 12, 31))
			So(r.TerminationValue, ShouldEqual, 0)
			r, _ = rowOf(f, "e001", date(2023, 1, 31))
			So(r.TerminationValue, ShouldEqual, 0)
		})

		Convey("Then labels only take the decayed values", func() {
			for _, r := range f.Rows {
				v := r.TerminationValue
				ok := v == 0 || v == 1 || math.Abs(v-1.0/3) < 1e-12 || math.Abs(v-2.0/3) < 1e-12
				So(ok, ShouldBeTrue)
			}
		})

		Convey("Then a cohort of one has a zero z-score", func() {
			r, _ := rowOf(f, "e000", date(2022, 12, 31))
			So(num(f, r, "salary_z_manager"), ShouldEqual, 0)
			So(num(f, r, "total_working_year_z_manager"), ShouldEqual, 0)
			So(num(f, r, "num_employee_under_manager"), ShouldEqual, 1)
		})

		Convey("Then zero-variance cohorts have zero z-scores", func() {
			for _, r := range f.Rows {
				So(num(f, r, "total_working_year_z_department"), ShouldEqual, 0)
			}
		})

		Convey("Then adjustment and promotion dates default to the hire date", func() {
			r, _ := rowOf(f, "e001", date(2022, 12, 31))
			tenure := num(f, r, "total_working_year")
			So(num(f, r, "year_since_last_salary_adjustment"), ShouldEqual, tenure)
			So(num(f, r, "time_since_last_promotion"), ShouldEqual, tenure)
			So(num(f, r, "num_past_promotion"), ShouldEqual, 0)
		})

		Convey("Then compensation follows the latest movement", func() {
			r, _ := rowOf(f, "e002", date(2022, 12, 31))
			So(num(f, r, "percentage_salary_increase_since_hire"), ShouldAlmostEqual, (48000.0-40200)/40200, 1e-12)
			So(num(f, r, "salary_compare_market_rate"), ShouldAlmostEqual, 48000.0/50000, 1e-12)
			So(num(f, r, "year_since_last_salary_adjustment"), ShouldAlmostEqual, float64(Days(date(2022, 9, 1), date(2022, 12, 31)))/365, 1e-12)
		})

		Convey("Then a promotion moves the employee and resets time in role", func() {
			r, _ := rowOf(f, "e004", date(2022, 12, 31))
			So(r.Meta.PositionID, ShouldEqual, "p2")
			So(r.Meta.DepartmentName, ShouldEqual, "Sales")
			So(num(f, r, "num_past_promotion"), ShouldEqual, 1)
			So(num(f, r, "year_in_current_position"), ShouldAlmostEqual, float64(Days(date(2022, 7, 1), date(2022, 12, 31)))/365, 1e-12)
		})

		Convey("Then skills are counted on canonical names", func() {
			r, _ := rowOf(f, "e002", date(2022, 12, 31))
			So(num(f, r, "num_skills"), ShouldEqual, 2)
			So(num(f, r, "avg_skills_score"), ShouldEqual, 4.5)
			So(num(f, r, "num_skill_gap"), ShouldEqual, 0)

			r, _ = rowOf(f, "e000", date(2022, 12, 31))
			So(num(f, r, "num_skill_gap"), ShouldEqual, 2)
			So(num(f, r, "skill_score_vs_avg_position_score"), ShouldEqual, 0)
		})

		Convey("Then work-life windows are rolling", func() {
			r, _ := rowOf(f, "e002", date(2022, 12, 31))
			So(num(f, r, "total_ot_hours_3_months"), ShouldEqual, 10)
			So(num(f, r, "total_sick_leave_hours_6_months"), ShouldEqual, 8)
			So(num(f, r, "total_vacation_leave_hours_6_months"), ShouldEqual, 16)
			So(num(f, r, "num_training"), ShouldEqual, 1)
			So(num(f, r, "num_activity"), ShouldEqual, 1)
			So(num(f, r, "distance_from_home_to_office"), ShouldBeGreaterThan, 0)

			r, _ = rowOf(f, "e002", date(2023, 3, 31))
			So(num(f, r, "total_ot_hours_3_months"), ShouldEqual, 0)
		})

		Convey("Then the department name is a categorical column", func() {
			idx := f.Index("department_name")
			So(idx, ShouldBeGreaterThanOrEqualTo, 0)
			So(f.Rows[0].Values[idx].Cat, ShouldNotBeEmpty)
		})
	})

	Convey("Given a roster with too little history", t, func() {
		ds := rosterDataset()
		_, err := NewBuilder(WithMinHistoryMonths(24)).Build(context.Background(), ds, date(2023, 6, 15))
		So(errors.Is(err, failure.ErrInsufficientHistory), ShouldBeTrue)
	})

	Convey("Given a dataset with a broken foreign key", t, func() {
		ds := rosterDataset()
		ds.Movements[0].PositionID = "nope"
		_, err := NewBuilder().Build(context.Background(), ds, date(2023, 6, 15))
		So(errors.Is(err, failure.ErrDataIntegrity), ShouldBeTrue)
	})

	Convey("Given a cancelled context", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewBuilder().Build(ctx, rosterDataset(), date(2023, 6, 15))
		So(errors.Is(err, context.Canceled), ShouldBeTrue)
	})
}

func TestFrameOperations(t *testing.T) {
	Convey("Given a built frame", t, func() {
		f, err := NewBuilder().Build(context.Background(), rosterDataset(), date(2022, 6, 15))
		So(err, ShouldBeNil)

		Convey("When selecting a subset of columns", func() {
			sub, err := f.Select([]string{"salary_z_position", "age"})
			So(err, ShouldBeNil)
			So(sub.Names(), ShouldResemble, []string{"salary_z_position", "age"})
			So(len(sub.Rows[0].Values), ShouldEqual, 2)
		})

		Convey("When selecting an unknown column", func() {
			_, err := f.Select([]string{"age", "shoe_size"})
			So(errors.Is(err, ErrMissingColumns), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "shoe_size")
		})

		Convey("When taking the latest snapshot", func() {
			latest, at := f.Latest()
			So(at, ShouldEqual, date(2022, 5, 31))
			So(latest.Len(), ShouldEqual, 100)
		})

		Convey("When dropping columns", func() {
			d := f.Drop("age", "department_name")
			So(d.Index("age"), ShouldEqual, -1)
			So(len(d.Columns), ShouldEqual, len(f.Columns)-2)
		})

		Convey("When rows are duplicated", func() {
			dup := &Frame{Columns: f.Columns, Rows: append(append([]Row{}, f.Rows...), f.Rows[0])}
			So(CheckUnique(dup), ShouldNotBeNil)
			So(dup.Dedupe().Len(), ShouldEqual, f.Len())
		})
	})
}

func TestColumns(t *testing.T) {
	cols := Columns()
	if len(cols) != 45 {
		t.Fatalf("expected 45 feature columns, got %d", len(cols))
	}
	if fam, ok := FamilyOf("salary_z_manager"); !ok || fam != "compensation" {
		t.Fatalf("unexpected family %q", fam)
	}
	if k, ok := KindOf("department_name"); !ok || k.String() != "categorical" {
		t.Fatal("department_name must be categorical")
	}
}
