// Package hr holds the raw, dated HR records the panel is built from.
//
// Every table is append-only: a record is effective from its date onwards
// and later records supersede earlier ones for the same key.
package hr

import "time"

// MovementType classifies an employee movement record.
type MovementType int

// Movement types as recorded by the HR system.
const (
	MovementHire                   MovementType = 0
	MovementVoluntaryTermination   MovementType = 1
	MovementInvoluntaryTermination MovementType = 2
	MovementPromotion              MovementType = 3
	MovementTransfer               MovementType = 4
	MovementSalaryAdjustment       MovementType = 5
)

// IsTermination reports whether the movement ends employment.
func (m MovementType) IsTermination() bool {
	return m == MovementVoluntaryTermination || m == MovementInvoluntaryTermination
}

// EngagementType distinguishes trainings from other company activities.
type EngagementType int

const (
	EngagementActivity EngagementType = 0
	EngagementTraining EngagementType = 1
)

// LeaveType distinguishes vacation from sick leave.
type LeaveType int

const (
	LeaveVacation LeaveType = 0
	LeaveSick     LeaveType = 1
)

// ClockType classifies an attendance entry.
type ClockType int

const (
	ClockRegular  ClockType = 1
	ClockOvertime ClockType = 2
)

// Employee is one roster record.
type Employee struct {
	ID             string
	BirthDate      time.Time
	EducationLevel int
	Parents        int
	Children       int
	Siblings       int
	Spouses        int
	HireDate       time.Time
	// Residence coordinates; HasResidence is false when unknown.
	ResidenceLat float64
	ResidenceLon float64
	HasResidence bool
}

// Movement is a position or status change. Salary is the salary effective
// from EffectiveDate; zero means the record carries no salary.
type Movement struct {
	EmployeeID    string
	PositionID    string
	Type          MovementType
	Salary        float64
	EffectiveDate time.Time
}

// ManagerAssignment records that an employee reports to ManagerID from
// StartDate.
type ManagerAssignment struct {
	EmployeeID string
	ManagerID  string
	StartDate  time.Time
}

// Position is a catalog entry. MarketSalary is the external benchmark
// salary for the role.
type Position struct {
	ID           string
	Name         string
	JobLevel     int
	DepartmentID string
	MarketSalary float64
}

type Department struct {
	ID   string
	Name string
}

type Skill struct {
	ID   string
	Name string
}

// EmployeeSkill is an assessed skill score.
type EmployeeSkill struct {
	EmployeeID string
	SkillID    string
	Score      float64
	RecordedAt time.Time
}

// PositionSkill marks a skill as required for a position.
type PositionSkill struct {
	PositionID string
	SkillID    string
}

// Engagement is an employee's participation in a training or activity.
type Engagement struct {
	EmployeeID string
	EventID    string
	Type       EngagementType
	StartDate  time.Time
}

type Leave struct {
	EmployeeID string
	Type       LeaveType
	StartDate  time.Time
	Hours      float64
}

type Evaluation struct {
	EmployeeID  string
	Score       float64
	EvaluatedAt time.Time
}

type ClockEntry struct {
	EmployeeID string
	Type       ClockType
	StartDate  time.Time
	Hours      float64
}
