package attribution

import "strings"

// Entry describes a feature to report readers.
type Entry struct {
	Name   string
	Action string
}

// Catalog maps feature columns to display names and default actions.
type Catalog map[string]Entry

// DefaultCatalog covers every engineered column.
func DefaultCatalog() Catalog {
	return Catalog{
		"age":                                   {"Age of Employee", "Tailor career conversations to the employee's life stage."},
		"education_level":                       {"Education Level", "Offer learning paths that match the employee's education."},
		"num_parent":                            {"Number of Parents", "Promote family care leave and support programs."},
		"num_child":                             {"Number of Children", "Promote childcare support and flexible hours."},
		"num_sibling":                           {"Number of Siblings", "Promote family care leave and support programs."},
		"num_spouse":                            {"Number of Spouses", "Promote family benefits and flexible hours."},
		"job_level":                             {"Job Level", "Review the career ladder for this level."},
		"department_name":                       {"Department", "Review team climate and workload in the department."},
		"total_working_year":                    {"Total Working Years", "Recognize tenure with milestones and new responsibilities."},
		"total_working_year_z_manager":          {"Total Working Years Compared to Manager", "Balance tenure within the team and assign mentoring roles."},
		"total_working_year_z_position":         {"Total Working Years Compared to Position", "Review growth opportunities against peers in the same position."},
		"total_working_year_z_job_level":        {"Total Working Years Compared to Job Level", "Review progression against peers at the same level."},
		"total_working_year_z_department":       {"Total Working Years Compared to Department", "Review progression against department peers."},
		"num_employee_under_manager":            {"Team Size Under Manager", "Review the manager's span of control."},
		"year_with_current_manager":             {"Years with Current Manager", "Check in on the manager relationship and consider rotation."},
		"num_past_manager":                      {"Number of Past Managers", "Stabilize reporting lines."},
		"num_employee_under_position":           {"Employees in the Same Position", "Clarify differentiation within crowded positions."},
		"num_employee_under_job_level":          {"Employees at the Same Job Level", "Clarify promotion paths at this level."},
		"num_employee_under_department":         {"Department Size", "Review department staffing and workload."},
		"salary_z_manager":                      {"Salary Compared to Team", "Review pay equity within the team."},
		"salary_z_position":                     {"Salary Compared to Position", "Review pay equity for the position."},
		"salary_z_job_level":                    {"Salary Compared to Job Level", "Review pay equity for the job level."},
		"percentage_salary_increase_since_hire": {"Salary Increase Since Hire", "Review the salary growth trajectory."},
		"year_since_last_salary_adjustment":     {"Time Since Last Salary Adjustment", "Schedule a compensation review."},
		"salary_compare_market_rate":            {"Salary Compared to Market Rate", "Benchmark pay against the market and adjust."},
		"year_in_current_position":              {"Years in Current Position", "Discuss role growth or an internal move."},
		"num_past_promotion":                    {"Number of Past Promotions", "Make promotion criteria explicit."},
		"time_since_last_promotion":             {"Time Since Last Promotion", "Assess promotion readiness."},
		"avg_time_to_promotion":                 {"Time Taking to Promotion", "Shorten promotion cycles for strong performers."},
		"num_training":                          {"Number of Trainings Attended", "Offer relevant training opportunities."},
		"num_activity":                          {"Number of Activities Participated", "Invite the employee to engagement activities."},
		"num_skills":                            {"Number of Skills Acquired", "Support skill development plans."},
		"avg_skills_score":                      {"Average Skills Score", "Pair the employee with coaching on core skills."},
		"num_skill_gap":                         {"Number of Skill Gaps Identified", "Close required skill gaps with targeted training."},
		"skill_score_vs_avg_position_score":     {"Skill Score Compared to Average Position Score", "Align development with the position's skill profile."},
		"skill_score_vs_median_position_score":  {"Skill Score Compared to Median Position Score", "Align development with the position's skill profile."},
		"avg_performance_score":                 {"Average Performance Score", "Hold a performance and goals conversation."},
		"performance_score_z_manager":           {"Performance Score Compared to Manager", "Calibrate performance feedback within the team."},
		"performance_score_z_position":          {"Performance Score Compared to Position", "Calibrate expectations for the position."},
		"performance_score_z_job_level":         {"Performance Score Compared to Job Level", "Calibrate expectations for the job level."},
		"performance_score_z_department":        {"Performance Score Compared to Department", "Calibrate expectations within the department."},
		"total_ot_hours_3_months":               {"Total Overtime Hours in Last 3 Months", "Rebalance workload to reduce overtime."},
		"total_sick_leave_hours_6_months":       {"Total Sick Leave Taken in Last 6 Months", "Check in on wellbeing and offer support."},
		"total_vacation_leave_hours_6_months":   {"Total Vacation Leave Taken in Last 6 Months", "Encourage regular time off."},
		"distance_from_home_to_office":          {"Distance from Home to Office", "Offer remote or hybrid work options."},
	}
}

// Name returns the display name of a feature.
func (c Catalog) Name(feature string) string {
	if e, ok := c[feature]; ok && e.Name != "" {
		return e.Name
	}
	words := strings.Split(feature, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// Action returns the default action of a feature, or "".
func (c Catalog) Action(feature string) string {
	return c[feature].Action
}

// Label fills display names and default actions.
func (c Catalog) Label(impacts []Impact) []Impact {
	for i := range impacts {
		impacts[i].FeatureName = c.Name(impacts[i].Feature)
		impacts[i].RecommendationAction = c.Action(impacts[i].Feature)
	}
	return impacts
}
