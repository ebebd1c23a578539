package hr

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/retention/internal/domain/failure"
	. "github.com/smartystreets/goconvey/convey"
)

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func validDataset() *Dataset {
	return &Dataset{
		Employees:   []Employee{{ID: "e1", HireDate: day(2022, 1, 3)}},
		Departments: []Department{{ID: "d1", Name: "Engineering"}},
		Positions:   []Position{{ID: "p1", Name: "Engineer", JobLevel: 1, DepartmentID: "d1", MarketSalary: 50000}},
		Movements: []Movement{
			{EmployeeID: "e1", PositionID: "p1", Type: MovementHire, Salary: 45000, EffectiveDate: day(2022, 1, 3)},
			{EmployeeID: "e1", Type: MovementVoluntaryTermination, EffectiveDate: day(2023, 5, 1)},
		},
		Managers: []ManagerAssignment{{EmployeeID: "e1", ManagerID: "m1", StartDate: day(2022, 1, 3)}},
	}
}

func TestDatasetValidate(t *testing.T) {
	Convey("Given a dataset whose keys resolve", t, func() {
		ds := validDataset()

		Convey("Then validation passes", func() {
			So(ds.Validate(), ShouldBeNil)
		})

		Convey("When a movement points to an unknown position", func() {
			ds.Movements = append(ds.Movements, Movement{EmployeeID: "e1", PositionID: "p9", Type: MovementPromotion, EffectiveDate: day(2022, 6, 1)})
			err := ds.Validate()

			Convey("Then a data integrity error names the key", func() {
				So(errors.Is(err, failure.ErrDataIntegrity), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, `"p9"`)
			})
		})

		Convey("When a position references an unknown department", func() {
			ds.Positions[0].DepartmentID = "d404"
			So(errors.Is(ds.Validate(), failure.ErrDataIntegrity), ShouldBeTrue)
		})
	})

	Convey("Given an empty roster", t, func() {
		So(errors.Is((&Dataset{}).Validate(), failure.ErrDataIntegrity), ShouldBeTrue)
		var nilDS *Dataset
		So(errors.Is(nilDS.Validate(), failure.ErrDataIntegrity), ShouldBeTrue)
	})

	Convey("Movement types", t, func() {
		So(MovementVoluntaryTermination.IsTermination(), ShouldBeTrue)
		So(MovementInvoluntaryTermination.IsTermination(), ShouldBeTrue)
		So(MovementPromotion.IsTermination(), ShouldBeFalse)
	})
}
