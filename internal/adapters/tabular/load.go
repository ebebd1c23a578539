package tabular

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/okian/retention/internal/domain/failure"
	"github.com/okian/retention/internal/domain/hr"
	"github.com/okian/retention/pkg/logger"
)

type tableSpec struct {
	file     string
	header   []string
	required bool
	read     func(t *table, ds *hr.Dataset)
}

var specs = []tableSpec{
	{EmployeesFile, employeesHeader, true, readEmployee},
	{MovementsFile, movementsHeader, true, readMovement},
	{PositionsFile, positionsHeader, true, readPosition},
	{DepartmentsFile, departmentsHeader, true, readDepartment},
	{ManagersFile, managersHeader, false, readManager},
	{SkillsFile, skillsHeader, false, readSkill},
	{EmployeeSkillsFile, employeeSkillsHeader, false, readEmployeeSkill},
	{PositionSkillsFile, positionSkillsHeader, false, readPositionSkill},
	{EngagementsFile, engagementsHeader, false, readEngagement},
	{LeavesFile, leavesHeader, false, readLeave},
	{EvaluationsFile, evaluationsHeader, false, readEvaluation},
	{ClockFile, clockHeader, false, readClock},
}

// Source loads the raw tables through an Opener.
type Source struct {
	open   Opener
	logger logger.Logger
}

// SourceOption configures a Source.
type SourceOption func(*Source)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) SourceOption {
	return func(s *Source) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSource returns a Source reading from open.
func NewSource(open Opener, opts ...SourceOption) *Source {
	s := &Source{open: open, logger: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads every table. Missing optional tables load as empty; a missing
// required table or a malformed record is a data integrity error.
func (s *Source) Load(ctx context.Context) (*hr.Dataset, error) {
	ds := &hr.Dataset{}
	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := s.loadTable(ctx, spec, ds)
		if errors.Is(err, fs.ErrNotExist) && !spec.required {
			s.logger.Debug(ctx, "optional table missing", logger.String("table", spec.file))
			continue
		}
		if err != nil {
			return nil, failure.Wrap("load "+spec.file, failure.ErrDataIntegrity, err)
		}
		s.logger.Debug(ctx, "table loaded", logger.String("table", spec.file), logger.Int("rows", n))
	}
	s.logger.Info(ctx, "tables loaded",
		logger.Int("employees", len(ds.Employees)),
		logger.Int("movements", len(ds.Movements)))
	return ds, nil
}

func (s *Source) loadTable(ctx context.Context, spec tableSpec, ds *hr.Dataset) (int, error) {
	rc, err := s.open.Open(ctx, spec.file)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	t, err := newTable(spec.file, rc, spec.header)
	if err != nil {
		return 0, err
	}
	n := 0
	for t.next() {
		spec.read(t, ds)
		n++
	}
	if err := t.err(); err != nil {
		return n, err
	}
	return n, nil
}

// Load reads the tables from open with a silent logger.
func Load(ctx context.Context, open Opener) (*hr.Dataset, error) {
	return NewSource(open).Load(ctx)
}

func readEmployee(t *table, ds *hr.Dataset) {
	e := hr.Employee{
		ID:             t.str("id"),
		BirthDate:      t.date("birth_date"),
		EducationLevel: t.int("education_level"),
		Parents:        t.int("parents"),
		Children:       t.int("children"),
		Siblings:       t.int("siblings"),
		Spouses:        t.int("spouses"),
		HireDate:       t.date("hire_date"),
	}
	lat, okLat := t.float("residence_latitude")
	lon, okLon := t.float("residence_longitude")
	if okLat && okLon {
		e.ResidenceLat, e.ResidenceLon, e.HasResidence = lat, lon, true
	}
	ds.Employees = append(ds.Employees, e)
}

func readMovement(t *table, ds *hr.Dataset) {
	salary, _ := t.float("salary")
	kind := t.int("movement_type")
	if kind < int(hr.MovementHire) || kind > int(hr.MovementSalaryAdjustment) {
		t.fail("movement_type", fmt.Errorf("unknown movement type %d", kind))
	}
	ds.Movements = append(ds.Movements, hr.Movement{
		EmployeeID:    t.str("employee_id"),
		PositionID:    t.str("position_id"),
		Type:          hr.MovementType(kind),
		Salary:        salary,
		EffectiveDate: t.date("effective_date"),
	})
}

func readManager(t *table, ds *hr.Dataset) {
	ds.Managers = append(ds.Managers, hr.ManagerAssignment{
		EmployeeID: t.str("employee_id"),
		ManagerID:  t.str("manager_id"),
		StartDate:  t.date("created_at"),
	})
}

func readPosition(t *table, ds *hr.Dataset) {
	market, _ := t.float("market_salary")
	ds.Positions = append(ds.Positions, hr.Position{
		ID:           t.str("id"),
		Name:         t.str("name"),
		JobLevel:     t.int("job_level"),
		DepartmentID: t.str("department_id"),
		MarketSalary: market,
	})
}

func readDepartment(t *table, ds *hr.Dataset) {
	ds.Departments = append(ds.Departments, hr.Department{ID: t.str("id"), Name: t.str("name")})
}

func readSkill(t *table, ds *hr.Dataset) {
	ds.Skills = append(ds.Skills, hr.Skill{ID: t.str("id"), Name: t.str("name")})
}

func readEmployeeSkill(t *table, ds *hr.Dataset) {
	score, _ := t.float("score")
	ds.EmployeeSkills = append(ds.EmployeeSkills, hr.EmployeeSkill{
		EmployeeID: t.str("employee_id"),
		SkillID:    t.str("skill_id"),
		Score:      score,
		RecordedAt: t.date("created_at"),
	})
}

func readPositionSkill(t *table, ds *hr.Dataset) {
	ds.PositionSkills = append(ds.PositionSkills, hr.PositionSkill{
		PositionID: t.str("position_id"),
		SkillID:    t.str("skill_id"),
	})
}

func readEngagement(t *table, ds *hr.Dataset) {
	ds.Engagements = append(ds.Engagements, hr.Engagement{
		EmployeeID: t.str("employee_id"),
		EventID:    t.str("event_id"),
		Type:       hr.EngagementType(t.int("event_type")),
		StartDate:  t.date("start_date"),
	})
}

func readLeave(t *table, ds *hr.Dataset) {
	hours, _ := t.float("hours")
	ds.Leaves = append(ds.Leaves, hr.Leave{
		EmployeeID: t.str("employee_id"),
		Type:       hr.LeaveType(t.int("leave_type")),
		StartDate:  t.date("start_date"),
		Hours:      hours,
	})
}

func readEvaluation(t *table, ds *hr.Dataset) {
	score, _ := t.float("score")
	ds.Evaluations = append(ds.Evaluations, hr.Evaluation{
		EmployeeID:  t.str("employee_id"),
		Score:       score,
		EvaluatedAt: t.date("evaluation_date"),
	})
}

func readClock(t *table, ds *hr.Dataset) {
	hours, _ := t.float("hours")
	ds.Clock = append(ds.Clock, hr.ClockEntry{
		EmployeeID: t.str("employee_id"),
		Type:       hr.ClockType(t.int("clock_type")),
		StartDate:  t.date("start_date"),
		Hours:      hours,
	})
}
