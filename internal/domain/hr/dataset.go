package hr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/okian/retention/internal/domain/failure"
)

// maxReportedProblems caps the integrity problems listed in one error.
const maxReportedProblems = 10

// Dataset bundles every raw table.
type Dataset struct {
	Employees      []Employee
	Movements      []Movement
	Managers       []ManagerAssignment
	Positions      []Position
	Departments    []Department
	Skills         []Skill
	EmployeeSkills []EmployeeSkill
	PositionSkills []PositionSkill
	Engagements    []Engagement
	Leaves         []Leave
	Evaluations    []Evaluation
	Clock          []ClockEntry
}

// PositionIndex maps position id to position.
func (d *Dataset) PositionIndex() map[string]Position {
	idx := make(map[string]Position, len(d.Positions))
	for _, p := range d.Positions {
		idx[p.ID] = p
	}
	return idx
}

// DepartmentIndex maps department id to department.
func (d *Dataset) DepartmentIndex() map[string]Department {
	idx := make(map[string]Department, len(d.Departments))
	for _, dep := range d.Departments {
		idx[dep.ID] = dep
	}
	return idx
}

// Validate checks that join keys resolve. It fails with
// failure.ErrDataIntegrity before any computation is attempted.
func (d *Dataset) Validate() error {
	if d == nil || len(d.Employees) == 0 {
		return failure.Wrap("validate dataset", failure.ErrDataIntegrity, errors.New("employee roster is empty"))
	}

	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	employees := make(map[string]struct{}, len(d.Employees))
	for i, e := range d.Employees {
		if e.ID == "" {
			add("employee row %d has no id", i)
			continue
		}
		if e.HireDate.IsZero() {
			add("employee %s has no hire date", e.ID)
		}
		employees[e.ID] = struct{}{}
	}

	departments := d.DepartmentIndex()
	positions := d.PositionIndex()
	for _, p := range d.Positions {
		if _, ok := departments[p.DepartmentID]; !ok {
			add("position %s references unknown department %q", p.ID, p.DepartmentID)
		}
	}

	for _, m := range d.Movements {
		if _, ok := employees[m.EmployeeID]; !ok {
			add("movement references unknown employee %q", m.EmployeeID)
		}
		if m.EffectiveDate.IsZero() {
			add("movement of employee %s has no effective date", m.EmployeeID)
		}
		if m.Type.IsTermination() && m.PositionID == "" {
			continue
		}
		if _, ok := positions[m.PositionID]; !ok {
			add("movement of employee %s references unknown position %q", m.EmployeeID, m.PositionID)
		}
	}

	for _, a := range d.Managers {
		if _, ok := employees[a.EmployeeID]; !ok {
			add("manager log references unknown employee %q", a.EmployeeID)
		}
	}

	for _, ps := range d.PositionSkills {
		if _, ok := positions[ps.PositionID]; !ok {
			add("position skill references unknown position %q", ps.PositionID)
		}
	}

	if len(problems) == 0 {
		return nil
	}
	total := len(problems)
	if total > maxReportedProblems {
		problems = append(problems[:maxReportedProblems], fmt.Sprintf("and %d more", total-maxReportedProblems))
	}
	return failure.Wrap("validate dataset", failure.ErrDataIntegrity, errors.New(strings.Join(problems, "; ")))
}
