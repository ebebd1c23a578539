// Package report assembles the retention report document from the panel,
// the predictions and their attributions.
package report

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/okian/retention/internal/domain/attribution"
	"github.com/okian/retention/internal/domain/panel"
	"github.com/okian/retention/internal/domain/prediction"
	"github.com/okian/retention/internal/domain/training"
	"github.com/okian/retention/pkg/logger"
)

// Report is the document consumed by dashboards.
type Report struct {
	OverallSummary         Summary                      `json:"overall_summary"`
	DepartmentProportion   []DepartmentCount            `json:"department_proportion"`
	JobLevelProportion     []JobLevelCount              `json:"job_level_proportion"`
	DepartmentDistribution []DepartmentDistribution     `json:"department_distribution"`
	JobLevelDistribution   []JobLevelDistribution       `json:"job_level_distribution"`
	TopQuittingReason      []attribution.Impact         `json:"top_quitting_reason,omitempty"`
	ReasonByEmployee       []EmployeeReason             `json:"reason_by_employee,omitempty"`
	ReasonByDepartment     []DepartmentReason           `json:"reason_by_department,omitempty"`
	ReasonByJobLevel       []JobLevelReason             `json:"reason_by_job_level,omitempty"`
	PartialFailures        PartialFailures              `json:"partial_failures"`
	FeatureImportance      []training.FeatureImportance `json:"feature_importance"`
	Predictions            []prediction.Prediction      `json:"predictions"`
}

// Summary is the overall section.
type Summary struct {
	PredictionStartDate           string  `json:"prediction_start_date"`
	PredictionEndDate             string  `json:"prediction_end_date"`
	TotalEmployees                int     `json:"total_employees"`
	TotalEmployeesLeft            int     `json:"total_employees_left"`
	EmployeesPredictedToLeave     int     `json:"employees_predicted_to_leave"`
	AverageTerminationProbability float64 `json:"average_termination_probability"`
	TerminationThreshold          float64 `json:"termination_threshold"`
}

// DepartmentCount is the historical termination count of a department.
type DepartmentCount struct {
	DepartmentName   string `json:"department_name"`
	DepartmentID     string `json:"department_id"`
	TerminationCount int    `json:"termination_count"`
}

// JobLevelCount is the historical termination count of a job level.
type JobLevelCount struct {
	JobLevel         int    `json:"job_level"`
	LevelName        string `json:"level_name"`
	TerminationCount int    `json:"termination_count"`
}

// DepartmentDistribution lists the predicted probabilities of a department.
type DepartmentDistribution struct {
	DepartmentID   string    `json:"department_id"`
	DepartmentName string    `json:"department_name"`
	Probabilities  []float64 `json:"probabilities"`
}

// JobLevelDistribution lists the predicted probabilities of a job level.
type JobLevelDistribution struct {
	JobLevel      string    `json:"job_level"`
	LevelName     string    `json:"level_name"`
	Probabilities []float64 `json:"probabilities"`

	level int
}

// EmployeeReason explains one predicted leaver.
type EmployeeReason struct {
	EmployeeID           string               `json:"employee_id"`
	PredictedProbability float64              `json:"predicted_probability"`
	ImpactFactors        []attribution.Impact `json:"impact_factors"`
}

// CohortStats are the counts shared by cohort explanations.
type CohortStats struct {
	TotalEmployeeLeft         int     `json:"total_employee_left"`
	TotalEmployeeToLeave      int     `json:"total_employee_to_leave"`
	AvgTerminationProbability float64 `json:"avg_termination_probability"`
}

// DepartmentReason explains a department.
type DepartmentReason struct {
	DepartmentID   string `json:"department_id"`
	DepartmentName string `json:"department_name"`
	CohortStats
	ImpactFactors []attribution.Impact `json:"impact_factors"`
}

// JobLevelReason explains a job level.
type JobLevelReason struct {
	JobLevel  string `json:"job_level"`
	LevelName string `json:"level_name"`
	CohortStats
	ImpactFactors []attribution.Impact `json:"impact_factors"`
}

// PartialFailures lists the employees left without an explanation.
type PartialFailures struct {
	Count       int      `json:"count"`
	EmployeeIDs []string `json:"employee_ids"`
}

// Input is everything a report is built from. Attributions is nil when
// explanations were not requested.
type Input struct {
	Panel        *panel.Frame
	Batch        *prediction.Batch
	Model        *training.Model
	Attributions *attribution.Result
}

// Option configures a Builder.
type Option func(*Builder)

// WithEngine sets the attribution engine used for summaries.
func WithEngine(e *attribution.Engine) Option {
	return func(b *Builder) {
		if e != nil {
			b.engine = e
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

// Builder builds reports.
type Builder struct {
	engine *attribution.Engine
	logger logger.Logger
}

// NewBuilder returns a Builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{engine: attribution.NewEngine(), logger: logger.Nop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// employee is the latest known state of an employee in the panel.
type employee struct {
	id       string
	meta     panel.Meta
	left     bool
	prob     float64
	hasProb  bool
	predicts bool
}

// Build assembles the report.
func (b *Builder) Build(ctx context.Context, in Input) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	people := latestEmployees(in.Panel, in.Batch)
	start := panel.AddMonths(in.Batch.ExecutionDate, 1)
	end := panel.AddMonths(start, panel.LookaheadMonths).AddDate(0, 0, -1)

	r := &Report{
		OverallSummary: Summary{
			PredictionStartDate:           start.Format(time.DateOnly),
			PredictionEndDate:             end.Format(time.DateOnly),
			TotalEmployees:                len(in.Batch.Predictions),
			TotalEmployeesLeft:            countLeft(people),
			EmployeesPredictedToLeave:     in.Batch.PredictedLeavers(),
			AverageTerminationProbability: attribution.Round2(meanProbability(in.Batch.Predictions)),
			TerminationThreshold:          in.Batch.Threshold,
		},
		DepartmentProportion:   departmentProportion(people),
		JobLevelProportion:     jobLevelProportion(people),
		DepartmentDistribution: departmentDistribution(people),
		JobLevelDistribution:   jobLevelDistribution(people),
		PartialFailures:        PartialFailures{EmployeeIDs: []string{}},
		FeatureImportance:      in.Model.Importance(),
		Predictions:            in.Batch.Predictions,
	}

	if in.Attributions != nil {
		b.explain(ctx, r, in, people)
	}
	b.logger.Info(ctx, "report built",
		logger.Int("employees", r.OverallSummary.TotalEmployees),
		logger.Int("predicted_leavers", r.OverallSummary.EmployeesPredictedToLeave),
		logger.Int("partial_failures", r.PartialFailures.Count))
	return r, nil
}

func (b *Builder) explain(ctx context.Context, r *Report, in Input, people []employee) {
	res := in.Attributions
	r.PartialFailures = PartialFailures{Count: len(res.Failures), EmployeeIDs: res.FailedIDs()}
	r.TopQuittingReason = b.engine.TopDrivers(ctx, res.Features, res.Vectors(nil))

	probs := in.Batch.Probabilities()
	r.ReasonByEmployee = []EmployeeReason{}
	for _, p := range in.Batch.Predictions {
		if !p.PredictedTermination {
			continue
		}
		rec, ok := res.Employee(p.EmployeeID)
		if !ok {
			continue
		}
		r.ReasonByEmployee = append(r.ReasonByEmployee, EmployeeReason{
			EmployeeID:           p.EmployeeID,
			PredictedProbability: attribution.Round2(probs[p.EmployeeID]),
			ImpactFactors:        nonNil(b.engine.Employee(res.Features, rec)),
		})
	}

	for _, name := range departmentNames(res.Records) {
		vecs := res.Vectors(func(rec attribution.Record) bool { return rec.Meta.DepartmentName == name })
		members := filter(people, func(e employee) bool { return e.meta.DepartmentName == name })
		r.ReasonByDepartment = append(r.ReasonByDepartment, DepartmentReason{
			DepartmentID:   firstDepartmentID(members),
			DepartmentName: name,
			CohortStats:    stats(members),
			ImpactFactors:  nonNil(b.engine.Cohort(res.Features, vecs)),
		})
	}

	for _, level := range jobLevels(res.Records) {
		vecs := res.Vectors(func(rec attribution.Record) bool { return rec.Meta.JobLevel == level })
		members := filter(people, func(e employee) bool { return e.meta.JobLevel == level })
		r.ReasonByJobLevel = append(r.ReasonByJobLevel, JobLevelReason{
			JobLevel:      strconv.Itoa(level),
			LevelName:     JobLevelName(level),
			CohortStats:   stats(members),
			ImpactFactors: nonNil(b.engine.Cohort(res.Features, vecs)),
		})
	}
}

// latestEmployees keeps each employee's most recent panel row and joins the
// predictions onto it.
func latestEmployees(f *panel.Frame, b *prediction.Batch) []employee {
	last := make(map[string]panel.Row, len(f.Rows))
	for _, r := range f.Rows {
		if prev, ok := last[r.EmployeeID]; !ok || !r.ExecutionDate.Before(prev.ExecutionDate) {
			last[r.EmployeeID] = r
		}
	}
	preds := make(map[string]prediction.Prediction, len(b.Predictions))
	for _, p := range b.Predictions {
		preds[p.EmployeeID] = p
	}

	out := make([]employee, 0, len(last))
	for id, r := range last {
		e := employee{id: id, meta: r.Meta, left: r.TerminationValue > 0}
		if p, ok := preds[id]; ok {
			e.prob, e.hasProb, e.predicts = p.TerminationProbability, true, p.PredictedTermination
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func countLeft(people []employee) int {
	n := 0
	for _, e := range people {
		if e.left {
			n++
		}
	}
	return n
}

func meanProbability(ps []prediction.Prediction) float64 {
	if len(ps) == 0 {
		return 0
	}
	s := 0.0
	for _, p := range ps {
		s += p.TerminationProbability
	}
	return s / float64(len(ps))
}

func departmentProportion(people []employee) []DepartmentCount {
	type key struct{ name, id string }
	counts := map[key]int{}
	for _, e := range people {
		if e.left {
			counts[key{e.meta.DepartmentName, e.meta.DepartmentID}]++
		}
	}
	out := make([]DepartmentCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, DepartmentCount{DepartmentName: k.name, DepartmentID: k.id, TerminationCount: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TerminationCount != out[j].TerminationCount {
			return out[i].TerminationCount > out[j].TerminationCount
		}
		return out[i].DepartmentName < out[j].DepartmentName
	})
	return out
}

func jobLevelProportion(people []employee) []JobLevelCount {
	counts := map[int]int{}
	for _, e := range people {
		if e.left {
			counts[e.meta.JobLevel]++
		}
	}
	out := make([]JobLevelCount, 0, len(counts))
	for level, n := range counts {
		out = append(out, JobLevelCount{JobLevel: level, LevelName: JobLevelName(level), TerminationCount: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TerminationCount != out[j].TerminationCount {
			return out[i].TerminationCount > out[j].TerminationCount
		}
		return out[i].JobLevel < out[j].JobLevel
	})
	return out
}

func departmentDistribution(people []employee) []DepartmentDistribution {
	idx := map[string]int{}
	var out []DepartmentDistribution
	for _, e := range people {
		i, ok := idx[e.meta.DepartmentName]
		if !ok {
			i = len(out)
			idx[e.meta.DepartmentName] = i
			out = append(out, DepartmentDistribution{
				DepartmentID:   e.meta.DepartmentID,
				DepartmentName: e.meta.DepartmentName,
				Probabilities:  []float64{},
			})
		}
		if e.hasProb {
			out[i].Probabilities = append(out[i].Probabilities, attribution.Round2(e.prob))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DepartmentName < out[j].DepartmentName })
	return out
}

func jobLevelDistribution(people []employee) []JobLevelDistribution {
	idx := map[int]int{}
	var out []JobLevelDistribution
	for _, e := range people {
		i, ok := idx[e.meta.JobLevel]
		if !ok {
			i = len(out)
			idx[e.meta.JobLevel] = i
			out = append(out, JobLevelDistribution{
				JobLevel:      strconv.Itoa(e.meta.JobLevel),
				LevelName:     JobLevelName(e.meta.JobLevel),
				Probabilities: []float64{},
				level:         e.meta.JobLevel,
			})
		}
		if e.hasProb {
			out[i].Probabilities = append(out[i].Probabilities, attribution.Round2(e.prob))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].level < out[j].level })
	return out
}

func stats(members []employee) CohortStats {
	var s CohortStats
	sum, n := 0.0, 0
	for _, e := range members {
		if e.left {
			s.TotalEmployeeLeft++
		}
		if e.predicts {
			s.TotalEmployeeToLeave++
		}
		if e.hasProb {
			sum += e.prob
			n++
		}
	}
	if n > 0 {
		s.AvgTerminationProbability = attribution.Round2(sum / float64(n))
	}
	return s
}

func filter(people []employee, keep func(employee) bool) []employee {
	var out []employee
	for _, e := range people {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func firstDepartmentID(members []employee) string {
	for _, e := range members {
		if e.meta.DepartmentID != "" {
			return e.meta.DepartmentID
		}
	}
	return ""
}

func departmentNames(recs []attribution.Record) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, r := range recs {
		if _, ok := seen[r.Meta.DepartmentName]; !ok {
			seen[r.Meta.DepartmentName] = struct{}{}
			out = append(out, r.Meta.DepartmentName)
		}
	}
	sort.Strings(out)
	return out
}

func jobLevels(recs []attribution.Record) []int {
	seen := map[int]struct{}{}
	var out []int
	for _, r := range recs {
		if _, ok := seen[r.Meta.JobLevel]; !ok {
			seen[r.Meta.JobLevel] = struct{}{}
			out = append(out, r.Meta.JobLevel)
		}
	}
	sort.Ints(out)
	return out
}

func nonNil(in []attribution.Impact) []attribution.Impact {
	if in == nil {
		return []attribution.Impact{}
	}
	return in
}
