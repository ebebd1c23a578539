// Package tabular reads and writes the raw HR tables and the engineered
// panel as CSV files.
package tabular

import (
	"context"
	"io"
	"os"
	"path/filepath"
)

// Table file names.
const (
	EmployeesFile      = "employees.csv"
	MovementsFile      = "employeeMovement.csv"
	ManagersFile       = "managerLog.csv"
	PositionsFile      = "positions.csv"
	DepartmentsFile    = "departments.csv"
	SkillsFile         = "skills.csv"
	EmployeeSkillsFile = "employeeSkill.csv"
	PositionSkillsFile = "positionSkill.csv"
	EngagementsFile    = "engagement.csv"
	LeavesFile         = "leave.csv"
	EvaluationsFile    = "evaluationRecord.csv"
	ClockFile          = "clockInOut.csv"
)

// Column headers per table.
var (
	employeesHeader      = []string{"id", "birth_date", "education_level", "parents", "children", "siblings", "spouses", "hire_date", "residence_latitude", "residence_longitude"}
	movementsHeader      = []string{"employee_id", "position_id", "movement_type", "salary", "effective_date"}
	managersHeader       = []string{"employee_id", "manager_id", "created_at"}
	positionsHeader      = []string{"id", "name", "job_level", "department_id", "market_salary"}
	departmentsHeader    = []string{"id", "name"}
	skillsHeader         = []string{"id", "name"}
	employeeSkillsHeader = []string{"employee_id", "skill_id", "score", "created_at"}
	positionSkillsHeader = []string{"position_id", "skill_id"}
	engagementsHeader    = []string{"employee_id", "event_id", "event_type", "start_date"}
	leavesHeader         = []string{"employee_id", "leave_type", "start_date", "hours"}
	evaluationsHeader    = []string{"employee_id", "score", "evaluation_date"}
	clockHeader          = []string{"employee_id", "clock_type", "start_date", "hours"}
)

// Opener opens a named table for reading.
type Opener interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// Creator creates a named table for writing.
type Creator interface {
	Create(ctx context.Context, name string) (io.WriteCloser, error)
}

// Dir reads and writes tables in a local directory.
type Dir string

// Open opens dir/name.
func (d Dir) Open(_ context.Context, name string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(string(d), name))
}

// Create creates dir/name, making the directory when needed.
func (d Dir) Create(_ context.Context, name string) (io.WriteCloser, error) {
	if err := os.MkdirAll(string(d), 0o755); err != nil {
		return nil, err
	}
	return os.Create(filepath.Join(string(d), name))
}
