// Package panel turns raw HR tables into the monthly engineered feature
// table: one snapshot per active employee per month-end, carrying the
// decayed attrition label.
package panel

import (
	"context"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/okian/retention/internal/domain/cohort"
	"github.com/okian/retention/internal/domain/failure"
	"github.com/okian/retention/internal/domain/hr"
	"github.com/okian/retention/internal/domain/skills"
	"github.com/okian/retention/pkg/logger"
)

// Defaults for the builder.
const (
	DefaultMinHistoryMonths = 2
	overtimeWindowMonths    = 3
	leaveWindowMonths       = 6
)

// Option configures a Builder.
type Option func(*Builder)

// WithMinHistoryMonths sets the fewest execution dates a panel may have.
func WithMinHistoryMonths(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.minHistory = n
		}
	}
}

// WithCompanyLocation sets the office used for commute distance.
func WithCompanyLocation(lat, lon float64) Option {
	return func(b *Builder) {
		b.office = &Location{Lat: lat, Lon: lon}
	}
}

// WithSkillNormalizer sets the skill canonicalizer.
func WithSkillNormalizer(n *skills.Normalizer) Option {
	return func(b *Builder) {
		if n != nil {
			b.skills = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// Builder builds panels.
type Builder struct {
	minHistory int
	office     *Location
	skills     *skills.Normalizer
	logger     logger.Logger
}

// NewBuilder returns a Builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		minHistory: DefaultMinHistoryMonths,
		skills:     skills.New(),
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build returns the engineered feature table for every execution date up to
// asOf.
func (b *Builder) Build(ctx context.Context, ds *hr.Dataset, asOf time.Time) (*Frame, error) {
	snaps, err := b.Snapshots(ctx, ds, asOf)
	if err != nil {
		return nil, err
	}
	return NewFrame(snaps), nil
}

// Snapshots returns the typed snapshots for every execution date up to asOf,
// ordered by execution date and then by roster order.
func (b *Builder) Snapshots(ctx context.Context, ds *hr.Dataset, asOf time.Time) ([]Snapshot, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	ix := newIndex(ds, b.skills)

	grid := Grid(ix.firstHire, asOf)
	if len(grid) < b.minHistory {
		return nil, failure.Newf("build panel", failure.ErrInsufficientHistory,
			"%d execution dates between %s and %s, need %d",
			len(grid), ix.firstHire.Format(time.DateOnly), asOf.Format(time.DateOnly), b.minHistory)
	}

	var out []Snapshot
	for _, t := range grid {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		snaps := b.snapshotsAt(ix, t)
		b.logger.Debug(ctx, "panel execution date built",
			logger.String("execution_date", t.Format(time.DateOnly)),
			logger.Int("employees", len(snaps)))
		out = append(out, snaps...)
	}

	b.logger.Info(ctx, "panel built",
		logger.Int("execution_dates", len(grid)),
		logger.Int("rows", len(out)),
		logger.String("first", grid[0].Format(time.DateOnly)),
		logger.String("last", grid[len(grid)-1].Format(time.DateOnly)))
	return out, nil
}

// state is the resolved situation of one employee on one execution date.
type state struct {
	emp          hr.Employee
	moves        []hr.Movement
	position     hr.Position
	hasPosition  bool
	department   string
	salary       float64
	minSalary    float64
	managerID    string
	managerSince time.Time
	pastManagers int
	skillCount   int
	skillAvg     float64
	skillGap     int
}

func (s *state) jobLevelKey() string {
	if !s.hasPosition {
		return ""
	}
	return strconv.Itoa(s.position.JobLevel)
}

func (b *Builder) snapshotsAt(ix *index, t time.Time) []Snapshot {
	var states []*state
	for _, e := range ix.employees {
		if e.HireDate.After(t) {
			continue
		}
		moves := upTo(ix.movements[e.ID], movementDate, t)
		if len(moves) > 0 && moves[len(moves)-1].Type.IsTermination() {
			continue
		}
		states = append(states, b.resolve(ix, e, moves, t))
	}

	n := len(states)
	snaps := make([]Snapshot, n)
	managers := make([]string, n)
	positions := make([]string, n)
	levels := make([]string, n)
	departments := make([]string, n)
	tenure := make([]float64, n)
	salary := make([]float64, n)
	perf := make([]float64, n)
	skillAvg := make([]float64, n)
	for i, s := range states {
		managers[i] = s.managerID
		positions[i] = s.position.ID
		levels[i] = s.jobLevelKey()
		departments[i] = s.department
		tenure[i] = Years(s.emp.HireDate, t)
		salary[i] = s.salary
		perf[i] = meanScore(upTo(ix.evaluations[s.emp.ID], evaluationDate, t))
		skillAvg[i] = s.skillAvg
	}

	tenureZ := [4][]float64{
		cohort.ZScores(managers, tenure),
		cohort.ZScores(positions, tenure),
		cohort.ZScores(levels, tenure),
		cohort.ZScores(departments, tenure),
	}
	salaryZ := [3][]float64{
		cohort.ZScores(managers, salary),
		cohort.ZScores(positions, salary),
		cohort.ZScores(levels, salary),
	}
	perfZ := [4][]float64{
		cohort.ZScores(managers, perf),
		cohort.ZScores(positions, perf),
		cohort.ZScores(levels, perf),
		cohort.ZScores(departments, perf),
	}
	underManager := cohort.Counts(managers)
	underPosition := cohort.Counts(positions)
	underLevel := cohort.Counts(levels)
	underDepartment := cohort.Counts(departments)
	skillMean := cohort.Means(positions, skillAvg)
	skillMedian := cohort.Medians(positions, skillAvg)

	for i, s := range states {
		id := s.emp.ID
		snap := &snaps[i]
		snap.EmployeeID = id
		snap.ExecutionDate = t
		snap.Meta = Meta{
			DepartmentID:   s.department,
			DepartmentName: ix.departments[s.department].Name,
			PositionID:     s.position.ID,
			ManagerID:      s.managerID,
			JobLevel:       -1,
		}
		if s.hasPosition {
			snap.Meta.JobLevel = s.position.JobLevel
		}

		snap.Demographic = demographic(s.emp, t)

		snap.Positional = Positional{
			JobLevel:                    math.NaN(),
			DepartmentName:              snap.Meta.DepartmentName,
			TotalWorkingYear:            tenure[i],
			TotalWorkingYearZManager:    tenureZ[0][i],
			TotalWorkingYearZPosition:   tenureZ[1][i],
			TotalWorkingYearZJobLevel:   tenureZ[2][i],
			TotalWorkingYearZDepartment: tenureZ[3][i],
		}
		if s.hasPosition {
			snap.Positional.JobLevel = float64(s.position.JobLevel)
		}

		snap.Team = Team{
			NumEmployeeUnderManager:    underManager[i],
			YearWithCurrentManager:     Years(s.managerSince, t),
			NumPastManager:             float64(s.pastManagers),
			NumEmployeeUnderPosition:   underPosition[i],
			NumEmployeeUnderJobLevel:   underLevel[i],
			NumEmployeeUnderDepartment: underDepartment[i],
		}

		snap.Compensation = compensation(s, t)
		snap.Compensation.SalaryZManager = salaryZ[0][i]
		snap.Compensation.SalaryZPosition = salaryZ[1][i]
		snap.Compensation.SalaryZJobLevel = salaryZ[2][i]

		snap.Promotion = promotion(s, t)

		snap.CareerDevelopment = careerDevelopment(upTo(ix.engagements[id], engagementDate, t))

		snap.Skills = SkillProfile{
			NumSkills:                       float64(s.skillCount),
			AvgSkillsScore:                  s.skillAvg,
			NumSkillGap:                     float64(s.skillGap),
			SkillScoreVsAvgPositionScore:    ratio(s.skillAvg, skillMean, s.position.ID),
			SkillScoreVsMedianPositionScore: ratio(s.skillAvg, skillMedian, s.position.ID),
		}

		snap.Performance = Performance{
			AvgPerformanceScore:         perf[i],
			PerformanceScoreZManager:    perfZ[0][i],
			PerformanceScoreZPosition:   perfZ[1][i],
			PerformanceScoreZJobLevel:   perfZ[2][i],
			PerformanceScoreZDepartment: perfZ[3][i],
		}

		snap.WorkLife = b.workLife(ix, s.emp, t)

		snap.TerminationValue = TerminationValue(t, ix.terminations[id])
	}
	return snaps
}

// resolve picks the current position, salary, manager and skills of an
// employee from the records effective on or before t.
func (b *Builder) resolve(ix *index, e hr.Employee, moves []hr.Movement, t time.Time) *state {
	s := &state{emp: e, moves: moves, salary: math.NaN(), minSalary: math.NaN()}

	for i := len(moves) - 1; i >= 0; i-- {
		if moves[i].PositionID == "" {
			continue
		}
		if p, ok := ix.positions[moves[i].PositionID]; ok {
			s.position = p
			s.hasPosition = true
			s.department = p.DepartmentID
		}
		break
	}

	for _, m := range moves {
		if m.Salary <= 0 {
			continue
		}
		s.salary = m.Salary
		if math.IsNaN(s.minSalary) || m.Salary < s.minSalary {
			s.minSalary = m.Salary
		}
	}

	assignments := upTo(ix.managers[e.ID], managerDate, t)
	if len(assignments) > 0 {
		last := assignments[len(assignments)-1]
		s.managerID = last.ManagerID
		s.managerSince = last.StartDate
		distinct := make(map[string]struct{}, len(assignments))
		for _, a := range assignments {
			distinct[a.ManagerID] = struct{}{}
		}
		s.pastManagers = len(distinct)
	}

	// Latest assessment per canonical skill.
	latest := make(map[string]float64)
	for _, sk := range upTo(ix.skills[e.ID], skillDate, t) {
		latest[ix.canonicalSkill(sk.SkillID)] = sk.Score
	}
	s.skillCount = len(latest)
	if s.skillCount > 0 {
		sum := 0.0
		for _, v := range latest {
			sum += v
		}
		s.skillAvg = sum / float64(s.skillCount)
	}
	if req, ok := ix.required[s.position.ID]; ok && s.hasPosition {
		for sk := range req {
			if _, held := latest[sk]; !held {
				s.skillGap++
			}
		}
	}
	return s
}

func demographic(e hr.Employee, t time.Time) Demographic {
	age := math.NaN()
	if !e.BirthDate.IsZero() {
		age = float64(t.Year() - e.BirthDate.Year())
	}
	return Demographic{
		Age:            age,
		EducationLevel: float64(e.EducationLevel),
		NumParent:      float64(e.Parents),
		NumChild:       float64(e.Children),
		NumSibling:     float64(e.Siblings),
		NumSpouse:      float64(e.Spouses),
	}
}

// compensation fills everything but the cohort z-scores.
func compensation(s *state, t time.Time) Compensation {
	lastAdjustment := s.emp.HireDate
	for _, m := range s.moves {
		if m.Type == hr.MovementSalaryAdjustment && m.EffectiveDate.After(lastAdjustment) {
			lastAdjustment = m.EffectiveDate
		}
	}

	c := Compensation{
		PercentageSalaryIncreaseSinceHire: math.NaN(),
		YearSinceLastSalaryAdjustment:     Years(lastAdjustment, t),
		SalaryCompareMarketRate:           math.NaN(),
	}
	if !math.IsNaN(s.salary) && s.minSalary > 0 {
		c.PercentageSalaryIncreaseSinceHire = (s.salary - s.minSalary) / s.minSalary
	}
	if !math.IsNaN(s.salary) && s.position.MarketSalary > 0 {
		c.SalaryCompareMarketRate = s.salary / s.position.MarketSalary
	}
	return c
}

func promotion(s *state, t time.Time) Promotion {
	entered := time.Time{}
	lastPromotion := s.emp.HireDate
	promotions := 0
	for _, m := range s.moves {
		if s.hasPosition && m.PositionID == s.position.ID && (entered.IsZero() || m.EffectiveDate.Before(entered)) {
			entered = m.EffectiveDate
		}
		if m.Type == hr.MovementPromotion {
			promotions++
			if m.EffectiveDate.After(lastPromotion) {
				lastPromotion = m.EffectiveDate
			}
		}
	}
	if entered.IsZero() {
		entered = s.emp.HireDate
	}

	p := Promotion{
		YearInCurrentPosition:  Years(entered, t),
		NumPastPromotion:       float64(promotions),
		TimeSinceLastPromotion: Years(lastPromotion, t),
		AvgTimeToPromotion:     Years(s.emp.HireDate, t),
	}
	if promotions > 0 {
		p.AvgTimeToPromotion = Years(s.emp.HireDate, lastPromotion) / float64(promotions)
	}
	return p
}

func careerDevelopment(events []hr.Engagement) CareerDevelopment {
	var c CareerDevelopment
	for _, e := range events {
		switch e.Type {
		case hr.EngagementTraining:
			c.NumTraining++
		case hr.EngagementActivity:
			c.NumActivity++
		}
	}
	return c
}

func (b *Builder) workLife(ix *index, e hr.Employee, t time.Time) WorkLife {
	var w WorkLife
	for _, c := range between(ix.clock[e.ID], clockDate, AddMonths(t, -overtimeWindowMonths), t) {
		if c.Type == hr.ClockOvertime {
			w.TotalOTHours3Months += c.Hours
		}
	}
	for _, l := range between(ix.leaves[e.ID], leaveDate, AddMonths(t, -leaveWindowMonths), t) {
		switch l.Type {
		case hr.LeaveSick:
			w.TotalSickLeaveHours6Months += l.Hours
		case hr.LeaveVacation:
			w.TotalVacationLeaveHours6Months += l.Hours
		}
	}
	if b.office != nil && e.HasResidence {
		w.DistanceFromHomeToOffice = DistanceKm(Location{Lat: e.ResidenceLat, Lon: e.ResidenceLon}, *b.office)
	}
	return w
}

func meanScore(evals []hr.Evaluation) float64 {
	if len(evals) == 0 {
		return 0
	}
	sum := 0.0
	for _, e := range evals {
		sum += e.Score
	}
	return sum / float64(len(evals))
}

// ratio divides v by the cohort reference of key; 0 when undefined.
func ratio(v float64, ref map[string]float64, key string) float64 {
	r, ok := ref[key]
	if key == "" || !ok || r == 0 {
		return 0
	}
	return v / r
}

// CheckUnique verifies that no (employee, execution date) pair repeats.
func CheckUnique(f *Frame) error {
	type key struct {
		id string
		at time.Time
	}
	seen := make(map[key]struct{}, len(f.Rows))
	for _, r := range f.Rows {
		k := key{r.EmployeeID, r.ExecutionDate.UTC()}
		if _, dup := seen[k]; dup {
			return failure.Newf("check panel", failure.ErrDataIntegrity,
				"duplicate snapshot for employee %s on %s", r.EmployeeID, r.ExecutionDate.Format(time.DateOnly))
		}
		seen[k] = struct{}{}
	}
	return nil
}

// SortRows orders a frame by execution date. Rows on the same date keep
// their relative order.
func SortRows(f *Frame) {
	sort.SliceStable(f.Rows, func(i, j int) bool {
		return f.Rows[i].ExecutionDate.Before(f.Rows[j].ExecutionDate)
	})
}
