package panel

import (
	"time"
)

// Snapshot is one employee's feature record as of one execution date.
// Feature families are separate structs; the `feature` tag names the column
// each field becomes in the engineered table.
type Snapshot struct {
	EmployeeID    string
	ExecutionDate time.Time
	Meta          Meta

	Demographic       Demographic       `family:"demographic"`
	Positional        Positional        `family:"positional"`
	Team              Team              `family:"team"`
	Compensation      Compensation      `family:"compensation"`
	Promotion         Promotion         `family:"promotion"`
	CareerDevelopment CareerDevelopment `family:"career_development"`
	Skills            SkillProfile      `family:"skills"`
	Performance       Performance       `family:"performance"`
	WorkLife          WorkLife          `family:"work_life"`

	TerminationValue float64
}

// Meta carries the cohort keys of a snapshot. They are not model inputs.
type Meta struct {
	DepartmentID   string
	DepartmentName string
	PositionID     string
	ManagerID      string
	// JobLevel is -1 when the employee has no resolvable position.
	JobLevel int
}

type Demographic struct {
	Age            float64 `feature:"age"`
	EducationLevel float64 `feature:"education_level"`
	NumParent      float64 `feature:"num_parent"`
	NumChild       float64 `feature:"num_child"`
	NumSibling     float64 `feature:"num_sibling"`
	NumSpouse      float64 `feature:"num_spouse"`
}

type Positional struct {
	JobLevel                    float64 `feature:"job_level"`
	DepartmentName              string  `feature:"department_name"`
	TotalWorkingYear            float64 `feature:"total_working_year"`
	TotalWorkingYearZManager    float64 `feature:"total_working_year_z_manager"`
	TotalWorkingYearZPosition   float64 `feature:"total_working_year_z_position"`
	TotalWorkingYearZJobLevel   float64 `feature:"total_working_year_z_job_level"`
	TotalWorkingYearZDepartment float64 `feature:"total_working_year_z_department"`
}

type Team struct {
	NumEmployeeUnderManager    float64 `feature:"num_employee_under_manager"`
	YearWithCurrentManager     float64 `feature:"year_with_current_manager"`
	NumPastManager             float64 `feature:"num_past_manager"`
	NumEmployeeUnderPosition   float64 `feature:"num_employee_under_position"`
	NumEmployeeUnderJobLevel   float64 `feature:"num_employee_under_job_level"`
	NumEmployeeUnderDepartment float64 `feature:"num_employee_under_department"`
}

type Compensation struct {
	SalaryZManager                    float64 `feature:"salary_z_manager"`
	SalaryZPosition                   float64 `feature:"salary_z_position"`
	SalaryZJobLevel                   float64 `feature:"salary_z_job_level"`
	PercentageSalaryIncreaseSinceHire float64 `feature:"percentage_salary_increase_since_hire"`
	YearSinceLastSalaryAdjustment     float64 `feature:"year_since_last_salary_adjustment"`
	SalaryCompareMarketRate           float64 `feature:"salary_compare_market_rate"`
}

type Promotion struct {
	YearInCurrentPosition  float64 `feature:"year_in_current_position"`
	NumPastPromotion       float64 `feature:"num_past_promotion"`
	TimeSinceLastPromotion float64 `feature:"time_since_last_promotion"`
	AvgTimeToPromotion     float64 `feature:"avg_time_to_promotion"`
}

type CareerDevelopment struct {
	NumTraining float64 `feature:"num_training"`
	NumActivity float64 `feature:"num_activity"`
}

type SkillProfile struct {
	NumSkills                       float64 `feature:"num_skills"`
	AvgSkillsScore                  float64 `feature:"avg_skills_score"`
	NumSkillGap                     float64 `feature:"num_skill_gap"`
	SkillScoreVsAvgPositionScore    float64 `feature:"skill_score_vs_avg_position_score"`
	SkillScoreVsMedianPositionScore float64 `feature:"skill_score_vs_median_position_score"`
}

type Performance struct {
	AvgPerformanceScore         float64 `feature:"avg_performance_score"`
	PerformanceScoreZManager    float64 `feature:"performance_score_z_manager"`
	PerformanceScoreZPosition   float64 `feature:"performance_score_z_position"`
	PerformanceScoreZJobLevel   float64 `feature:"performance_score_z_job_level"`
	PerformanceScoreZDepartment float64 `feature:"performance_score_z_department"`
}

type WorkLife struct {
	TotalOTHours3Months            float64 `feature:"total_ot_hours_3_months"`
	TotalSickLeaveHours6Months     float64 `feature:"total_sick_leave_hours_6_months"`
	TotalVacationLeaveHours6Months float64 `feature:"total_vacation_leave_hours_6_months"`
	DistanceFromHomeToOffice       float64 `feature:"distance_from_home_to_office"`
}
