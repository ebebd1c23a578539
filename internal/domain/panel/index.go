package panel

import (
	"sort"
	"time"

	"github.com/okian/retention/internal/domain/hr"
	"github.com/okian/retention/internal/domain/skills"
)

// index holds the raw tables grouped by employee and sorted by date so a
// snapshot can slice "everything effective on or before t" with a binary
// search.
type index struct {
	employees    []hr.Employee
	movements    map[string][]hr.Movement
	managers     map[string][]hr.ManagerAssignment
	skills       map[string][]hr.EmployeeSkill
	engagements  map[string][]hr.Engagement
	leaves       map[string][]hr.Leave
	evaluations  map[string][]hr.Evaluation
	clock        map[string][]hr.ClockEntry
	terminations map[string][]time.Time
	positions    map[string]hr.Position
	departments  map[string]hr.Department
	// required maps a position to its canonical required skills.
	required  map[string]map[string]struct{}
	canonical map[string]string
	firstHire time.Time
}

func newIndex(ds *hr.Dataset, norm *skills.Normalizer) *index {
	ix := &index{
		movements:    groupSorted(ds.Movements, func(m hr.Movement) string { return m.EmployeeID }, func(m hr.Movement) time.Time { return m.EffectiveDate }),
		managers:     groupSorted(ds.Managers, func(m hr.ManagerAssignment) string { return m.EmployeeID }, func(m hr.ManagerAssignment) time.Time { return m.StartDate }),
		skills:       groupSorted(ds.EmployeeSkills, func(s hr.EmployeeSkill) string { return s.EmployeeID }, func(s hr.EmployeeSkill) time.Time { return s.RecordedAt }),
		engagements:  groupSorted(ds.Engagements, func(e hr.Engagement) string { return e.EmployeeID }, func(e hr.Engagement) time.Time { return e.StartDate }),
		leaves:       groupSorted(ds.Leaves, func(l hr.Leave) string { return l.EmployeeID }, func(l hr.Leave) time.Time { return l.StartDate }),
		evaluations:  groupSorted(ds.Evaluations, func(e hr.Evaluation) string { return e.EmployeeID }, func(e hr.Evaluation) time.Time { return e.EvaluatedAt }),
		clock:        groupSorted(ds.Clock, func(c hr.ClockEntry) string { return c.EmployeeID }, func(c hr.ClockEntry) time.Time { return c.StartDate }),
		terminations: make(map[string][]time.Time),
		positions:    ds.PositionIndex(),
		departments:  ds.DepartmentIndex(),
		required:     make(map[string]map[string]struct{}),
	}

	// Roster: last record per employee wins, first-seen order kept.
	pos := make(map[string]int, len(ds.Employees))
	for _, e := range ds.Employees {
		if i, ok := pos[e.ID]; ok {
			ix.employees[i] = e
			continue
		}
		pos[e.ID] = len(ix.employees)
		ix.employees = append(ix.employees, e)
	}
	for _, e := range ix.employees {
		if ix.firstHire.IsZero() || e.HireDate.Before(ix.firstHire) {
			ix.firstHire = e.HireDate
		}
	}

	for id, ms := range ix.movements {
		for _, m := range ms {
			if m.Type.IsTermination() {
				ix.terminations[id] = append(ix.terminations[id], m.EffectiveDate)
			}
		}
	}

	ix.canonical = norm.Canonicalize(ds.Skills, skills.Frequencies(ds))
	for _, ps := range ds.PositionSkills {
		req, ok := ix.required[ps.PositionID]
		if !ok {
			req = make(map[string]struct{})
			ix.required[ps.PositionID] = req
		}
		req[ix.canonicalSkill(ps.SkillID)] = struct{}{}
	}
	return ix
}

// canonicalSkill maps a skill id to its canonical id. Ids missing from the
// catalog stand for themselves.
func (ix *index) canonicalSkill(id string) string {
	if c, ok := ix.canonical[id]; ok {
		return c
	}
	return id
}

func groupSorted[T any](rows []T, key func(T) string, at func(T) time.Time) map[string][]T {
	out := make(map[string][]T)
	for _, r := range rows {
		out[key(r)] = append(out[key(r)], r)
	}
	for _, rs := range out {
		sort.SliceStable(rs, func(i, j int) bool { return at(rs[i]).Before(at(rs[j])) })
	}
	return out
}

// upTo returns the prefix of rows (sorted by at) effective on or before t.
func upTo[T any](rows []T, at func(T) time.Time, t time.Time) []T {
	n := sort.Search(len(rows), func(i int) bool { return at(rows[i]).After(t) })
	return rows[:n]
}

// between returns rows (sorted by at) with from <= at <= to.
func between[T any](rows []T, at func(T) time.Time, from, to time.Time) []T {
	lo := sort.Search(len(rows), func(i int) bool { return !at(rows[i]).Before(from) })
	hi := sort.Search(len(rows), func(i int) bool { return at(rows[i]).After(to) })
	if lo >= hi {
		return nil
	}
	return rows[lo:hi]
}

func movementDate(m hr.Movement) time.Time         { return m.EffectiveDate }
func managerDate(m hr.ManagerAssignment) time.Time { return m.StartDate }
func skillDate(s hr.EmployeeSkill) time.Time       { return s.RecordedAt }
func engagementDate(e hr.Engagement) time.Time     { return e.StartDate }
func leaveDate(l hr.Leave) time.Time               { return l.StartDate }
func evaluationDate(e hr.Evaluation) time.Time     { return e.EvaluatedAt }
func clockDate(c hr.ClockEntry) time.Time          { return c.StartDate }
