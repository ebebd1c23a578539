package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/okian/retention/internal/domain/prediction"
	"github.com/okian/retention/internal/domain/report"
	"github.com/okian/retention/internal/domain/training"
)

const importanceRows = 10

func pct(v float64) string { return strconv.FormatFloat(v*100, 'f', 1, 64) + "%" }

func printModel(w io.Writer, m *training.Model) {
	md := m.Metadata
	t := tablewriter.NewWriter(w)
	t.SetHeader([]string{"model", "value"})
	t.Append([]string{"version", md.Version})
	t.Append([]string{"threshold", strconv.FormatFloat(md.OptimalThreshold, 'f', 2, 64)})
	t.Append([]string{"features", strconv.Itoa(len(md.Features))})
	t.Append([]string{"macro f1", strconv.FormatFloat(md.Metrics.MacroF1, 'f', 3, 64)})
	t.Append([]string{"recall", strconv.FormatFloat(md.Metrics.Recall, 'f', 3, 64)})
	t.Render()

	imp := m.Importance()
	if len(imp) > importanceRows {
		imp = imp[:importanceRows]
	}
	t = tablewriter.NewWriter(w)
	t.SetHeader([]string{"feature", "importance"})
	for _, fi := range imp {
		t.Append([]string{fi.Feature, strconv.FormatFloat(fi.Importance, 'f', 4, 64)})
	}
	t.Render()
}

func printSummary(w io.Writer, r *report.Report) {
	s := r.OverallSummary
	t := tablewriter.NewWriter(w)
	t.SetHeader([]string{"summary", "value"})
	t.Append([]string{"window", s.PredictionStartDate + " .. " + s.PredictionEndDate})
	t.Append([]string{"employees", strconv.Itoa(s.TotalEmployees)})
	t.Append([]string{"left so far", strconv.Itoa(s.TotalEmployeesLeft)})
	t.Append([]string{"predicted to leave", strconv.Itoa(s.EmployeesPredictedToLeave)})
	t.Append([]string{"mean probability", pct(s.AverageTerminationProbability)})
	t.Append([]string{"threshold", strconv.FormatFloat(s.TerminationThreshold, 'f', 2, 64)})
	t.Render()
}

// printAtRisk prints the top employees by termination probability.
func printAtRisk(w io.Writer, r *report.Report, top int) {
	if top <= 0 || len(r.Predictions) == 0 {
		return
	}
	ps := make([]prediction.Prediction, len(r.Predictions))
	copy(ps, r.Predictions)
	sort.SliceStable(ps, func(i, j int) bool {
		return ps[i].TerminationProbability > ps[j].TerminationProbability
	})
	if len(ps) > top {
		ps = ps[:top]
	}

	t := tablewriter.NewWriter(w)
	t.SetHeader([]string{"employee", "probability", "predicted"})
	for _, p := range ps {
		t.Append([]string{p.EmployeeID, pct(p.TerminationProbability), strconv.FormatBool(p.PredictedTermination)})
	}
	t.Render()
}

func printReasons(w io.Writer, r *report.Report) {
	if len(r.TopQuittingReason) == 0 {
		return
	}
	t := tablewriter.NewWriter(w)
	t.SetHeader([]string{"reason", "impact", "action"})
	t.SetAutoWrapText(false)
	for _, im := range r.TopQuittingReason {
		t.Append([]string{im.FeatureName, fmt.Sprintf("%.1f%%", im.ImpactPercentage), im.RecommendationAction})
	}
	t.Render()
}
