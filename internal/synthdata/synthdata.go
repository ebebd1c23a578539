// Package synthdata generates synthetic HR tables with a learnable
// attrition signal: employees carrying heavy overtime and below-market pay
// leave more often.
package synthdata

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/jaswdr/faker"

	"github.com/okian/retention/internal/domain/hr"
)

// Options control the generated population.
type Options struct {
	Employees     int
	Start         time.Time
	Months        int
	Seed          int64
	MonthlyHazard float64
	OfficeLat     float64
	OfficeLon     float64
}

// DefaultOptions returns a two-year history of 200 employees.
func DefaultOptions() Options {
	return Options{
		Employees:     200,
		Start:         time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC),
		Months:        24,
		Seed:          98,
		MonthlyHazard: 0.02,
		OfficeLat:     13.7563,
		OfficeLon:     100.5018,
	}
}

var departments = []string{"Engineering", "Sales", "Support", "Finance", "People"}

var levelTitles = []string{"Associate", "Specialist", "Senior Specialist", "Lead"}

type generator struct {
	opts Options
	rng  *rand.Rand
	fake faker.Faker
	ds   *hr.Dataset
}

// Generate builds a dataset. The same options always produce the same
// dataset.
func Generate(opts Options) *hr.Dataset {
	g := &generator{
		opts: opts,
		rng:  rand.New(rand.NewSource(opts.Seed)),
		fake: faker.NewWithSeed(rand.NewSource(opts.Seed)),
		ds:   &hr.Dataset{},
	}
	g.catalog()
	for i := 0; i < opts.Employees; i++ {
		g.employee(i)
	}
	return g.ds
}

func (g *generator) end() time.Time {
	return g.opts.Start.AddDate(0, g.opts.Months, 0)
}

func (g *generator) catalog() {
	for d, name := range departments {
		g.ds.Departments = append(g.ds.Departments, hr.Department{ID: fmt.Sprintf("d%d", d+1), Name: name})
	}

	seen := map[string]bool{}
	for len(g.ds.Skills) < 24 {
		w := g.fake.Lorem().Word()
		if seen[w] {
			w = fmt.Sprintf("%s %s", w, g.fake.Lorem().Word())
			if seen[w] {
				continue
			}
		}
		seen[w] = true
		g.ds.Skills = append(g.ds.Skills, hr.Skill{ID: fmt.Sprintf("s%02d", len(g.ds.Skills)+1), Name: w})
	}

	for d := range departments {
		for level, title := range levelTitles {
			id := fmt.Sprintf("p%d%d", d+1, level)
			g.ds.Positions = append(g.ds.Positions, hr.Position{
				ID:           id,
				Name:         fmt.Sprintf("%s, %s", title, departments[d]),
				JobLevel:     level,
				DepartmentID: fmt.Sprintf("d%d", d+1),
				MarketSalary: float64(30000 + 15000*level + g.fake.IntBetween(0, 5000)),
			})
			for k := 0; k < 3; k++ {
				s := g.ds.Skills[(d*4+level+k*5)%len(g.ds.Skills)]
				g.ds.PositionSkills = append(g.ds.PositionSkills, hr.PositionSkill{PositionID: id, SkillID: s.ID})
			}
		}
	}
}

func (g *generator) employee(i int) {
	id := fmt.Sprintf("E%04d", i+1)
	start := g.opts.Start
	hire := start
	if i > 0 {
		hire = start.AddDate(0, 0, g.rng.Intn(g.opts.Months*30/3+1))
	}
	dept := g.rng.Intn(len(departments))
	level := g.fake.IntBetween(0, len(levelTitles)-1)
	pos := fmt.Sprintf("p%d%d", dept+1, level)
	market := g.ds.Positions[dept*len(levelTitles)+level].MarketSalary

	overworked := g.rng.Float64() < 0.3
	underpaid := g.rng.Float64() < 0.3
	salary := market * (0.95 + 0.15*g.rng.Float64())
	if underpaid {
		salary = market * (0.7 + 0.1*g.rng.Float64())
	}

	g.ds.Employees = append(g.ds.Employees, hr.Employee{
		ID:             id,
		BirthDate:      hire.AddDate(-g.fake.IntBetween(22, 58), -g.rng.Intn(12), 0),
		EducationLevel: g.fake.IntBetween(1, 4),
		Parents:        g.fake.IntBetween(0, 2),
		Children:       g.fake.IntBetween(0, 3),
		Siblings:       g.fake.IntBetween(0, 4),
		Spouses:        g.fake.IntBetween(0, 1),
		HireDate:       hire,
		ResidenceLat:   g.opts.OfficeLat + (g.rng.Float64()-0.5)*0.4,
		ResidenceLon:   g.opts.OfficeLon + (g.rng.Float64()-0.5)*0.4,
		HasResidence:   g.rng.Float64() > 0.05,
	})
	g.ds.Movements = append(g.ds.Movements, hr.Movement{
		EmployeeID: id, PositionID: pos, Type: hr.MovementHire, Salary: round(salary), EffectiveDate: hire,
	})
	g.ds.Managers = append(g.ds.Managers, hr.ManagerAssignment{
		EmployeeID: id, ManagerID: fmt.Sprintf("M%d%d", dept+1, g.rng.Intn(3)), StartDate: hire,
	})

	for k, n := 0, g.fake.IntBetween(2, 5); k < n; k++ {
		s := g.ds.Skills[g.rng.Intn(len(g.ds.Skills))]
		g.ds.EmployeeSkills = append(g.ds.EmployeeSkills, hr.EmployeeSkill{
			EmployeeID: id, SkillID: s.ID, Score: float64(g.fake.IntBetween(1, 5)), RecordedAt: hire.AddDate(0, 1, 0),
		})
	}

	hazard := g.opts.MonthlyHazard * 0.3
	if overworked {
		hazard += g.opts.MonthlyHazard * 2.5
	}
	if underpaid {
		hazard += g.opts.MonthlyHazard * 1.5
	}

	end := g.end()
	var leftAt time.Time
	for m := monthStart(hire).AddDate(0, 1, 0); m.Before(end); m = m.AddDate(0, 1, 0) {
		g.month(id, pos, m, overworked, &salary)
		if m.Sub(hire) > 90*24*time.Hour && g.rng.Float64() < hazard {
			leftAt = m.AddDate(0, 0, g.rng.Intn(27))
			break
		}
	}
	if !leftAt.IsZero() && leftAt.Before(end) {
		kind := hr.MovementVoluntaryTermination
		if g.rng.Float64() < 0.2 {
			kind = hr.MovementInvoluntaryTermination
		}
		g.ds.Movements = append(g.ds.Movements, hr.Movement{EmployeeID: id, PositionID: pos, Type: kind, EffectiveDate: leftAt})
	}
}

// month generates one month of activity.
func (g *generator) month(id, pos string, m time.Time, overworked bool, salary *float64) {
	day := func() time.Time { return m.AddDate(0, 0, g.rng.Intn(27)) }

	ot := float64(g.rng.Intn(4))
	if overworked {
		ot = float64(15 + g.rng.Intn(20))
	}
	if ot > 0 {
		g.ds.Clock = append(g.ds.Clock, hr.ClockEntry{EmployeeID: id, Type: hr.ClockOvertime, StartDate: day(), Hours: ot})
	}
	g.ds.Clock = append(g.ds.Clock, hr.ClockEntry{EmployeeID: id, Type: hr.ClockRegular, StartDate: day(), Hours: 160})

	if g.rng.Float64() < 0.15 {
		g.ds.Leaves = append(g.ds.Leaves, hr.Leave{EmployeeID: id, Type: hr.LeaveSick, StartDate: day(), Hours: 8})
	}
	if g.rng.Float64() < 0.25 {
		g.ds.Leaves = append(g.ds.Leaves, hr.Leave{EmployeeID: id, Type: hr.LeaveVacation, StartDate: day(), Hours: float64(8 * (1 + g.rng.Intn(3)))})
	}
	if g.rng.Float64() < 0.1 {
		g.ds.Engagements = append(g.ds.Engagements, hr.Engagement{
			EmployeeID: id, EventID: fmt.Sprintf("T-%s", g.fake.Lorem().Word()), Type: hr.EngagementTraining, StartDate: day(),
		})
	}
	if g.rng.Float64() < 0.1 {
		g.ds.Engagements = append(g.ds.Engagements, hr.Engagement{
			EmployeeID: id, EventID: fmt.Sprintf("A-%s", g.fake.Lorem().Word()), Type: hr.EngagementActivity, StartDate: day(),
		})
	}

	switch m.Month() {
	case time.June, time.December:
		g.ds.Evaluations = append(g.ds.Evaluations, hr.Evaluation{
			EmployeeID: id, Score: float64(g.fake.IntBetween(1, 5)), EvaluatedAt: m.AddDate(0, 1, -1),
		})
	case time.April:
		if g.rng.Float64() < 0.6 {
			*salary *= 1.03 + 0.04*g.rng.Float64()
			g.ds.Movements = append(g.ds.Movements, hr.Movement{
				EmployeeID: id, PositionID: pos, Type: hr.MovementSalaryAdjustment, Salary: round(*salary), EffectiveDate: m,
			})
		}
	}
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func round(v float64) float64 {
	return float64(int64(v + 0.5))
}

// Terminations returns the termination dates keyed by employee, sorted.
func Terminations(ds *hr.Dataset) map[string]time.Time {
	out := map[string]time.Time{}
	for _, m := range ds.Movements {
		if m.Type.IsTermination() {
			out[m.EmployeeID] = m.EffectiveDate
		}
	}
	return out
}

// SortedIDs returns the roster ids in order.
func SortedIDs(ds *hr.Dataset) []string {
	ids := make([]string, len(ds.Employees))
	for i, e := range ds.Employees {
		ids[i] = e.ID
	}
	sort.Strings(ids)
	return ids
}
