package tabular

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"

	"github.com/okian/retention/internal/domain/hr"
)

// Write stores every table of ds through c.
func Write(ctx context.Context, c Creator, ds *hr.Dataset) error {
	itoa := strconv.Itoa
	tables := []struct {
		file   string
		header []string
		rows   func(emit func(...string))
	}{
		{EmployeesFile, employeesHeader, func(emit func(...string)) {
			for _, e := range ds.Employees {
				lat, lon := "", ""
				if e.HasResidence {
					lat, lon = formatFloat(e.ResidenceLat), formatFloat(e.ResidenceLon)
				}
				emit(e.ID, formatDate(e.BirthDate), itoa(e.EducationLevel), itoa(e.Parents), itoa(e.Children),
					itoa(e.Siblings), itoa(e.Spouses), formatDate(e.HireDate), lat, lon)
			}
		}},
		{MovementsFile, movementsHeader, func(emit func(...string)) {
			for _, m := range ds.Movements {
				salary := ""
				if m.Salary != 0 {
					salary = formatFloat(m.Salary)
				}
				emit(m.EmployeeID, m.PositionID, itoa(int(m.Type)), salary, formatDate(m.EffectiveDate))
			}
		}},
		{ManagersFile, managersHeader, func(emit func(...string)) {
			for _, a := range ds.Managers {
				emit(a.EmployeeID, a.ManagerID, formatDate(a.StartDate))
			}
		}},
		{PositionsFile, positionsHeader, func(emit func(...string)) {
			for _, p := range ds.Positions {
				emit(p.ID, p.Name, itoa(p.JobLevel), p.DepartmentID, formatFloat(p.MarketSalary))
			}
		}},
		{DepartmentsFile, departmentsHeader, func(emit func(...string)) {
			for _, d := range ds.Departments {
				emit(d.ID, d.Name)
			}
		}},
		{SkillsFile, skillsHeader, func(emit func(...string)) {
			for _, s := range ds.Skills {
				emit(s.ID, s.Name)
			}
		}},
		{EmployeeSkillsFile, employeeSkillsHeader, func(emit func(...string)) {
			for _, s := range ds.EmployeeSkills {
				emit(s.EmployeeID, s.SkillID, formatFloat(s.Score), formatDate(s.RecordedAt))
			}
		}},
		{PositionSkillsFile, positionSkillsHeader, func(emit func(...string)) {
			for _, s := range ds.PositionSkills {
				emit(s.PositionID, s.SkillID)
			}
		}},
		{EngagementsFile, engagementsHeader, func(emit func(...string)) {
			for _, e := range ds.Engagements {
				emit(e.EmployeeID, e.EventID, itoa(int(e.Type)), formatDate(e.StartDate))
			}
		}},
		{LeavesFile, leavesHeader, func(emit func(...string)) {
			for _, l := range ds.Leaves {
				emit(l.EmployeeID, itoa(int(l.Type)), formatDate(l.StartDate), formatFloat(l.Hours))
			}
		}},
		{EvaluationsFile, evaluationsHeader, func(emit func(...string)) {
			for _, e := range ds.Evaluations {
				emit(e.EmployeeID, formatFloat(e.Score), formatDate(e.EvaluatedAt))
			}
		}},
		{ClockFile, clockHeader, func(emit func(...string)) {
			for _, c := range ds.Clock {
				emit(c.EmployeeID, itoa(int(c.Type)), formatDate(c.StartDate), formatFloat(c.Hours))
			}
		}},
	}

	for _, tbl := range tables {
		if err := ctx.Err(); err != nil {
			return err
		}
		wc, err := c.Create(ctx, tbl.file)
		if err != nil {
			return fmt.Errorf("create %s: %w", tbl.file, err)
		}
		w := csv.NewWriter(wc)
		var werr error
		emit := func(rec ...string) {
			if werr == nil {
				werr = w.Write(rec)
			}
		}
		emit(tbl.header...)
		tbl.rows(emit)
		w.Flush()
		if err := errors.Join(werr, w.Error(), wc.Close()); err != nil {
			return fmt.Errorf("write %s: %w", tbl.file, err)
		}
	}
	return nil
}
