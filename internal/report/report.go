// Package report joins per-student evaluations with data quality rule
// counts into the final grade table.
package report

import (
	"strconv"

	"redcapgrade/internal/grading"
)

// Columns is the grade table header, in output order.
var Columns = []string{
	"project_id",
	"project_name",
	"number_of_fields",
	"completion_pct",
	"number_of_records",
	"number_of_dqr",
}

// Assemble returns a copy of rows with NumberOfDQR taken from counts.
// Projects absent from counts get 0.
func Assemble(rows []grading.Evaluation, counts map[int]int) []grading.Evaluation {
	out := make([]grading.Evaluation, len(rows))
	for i, r := range rows {
		r.NumberOfDQR = counts[r.ProjectID]
		out[i] = r
	}
	return out
}

// ProjectIDs lists the project ids of rows, in row order.
func ProjectIDs(rows []grading.Evaluation) []int {
	ids := make([]int, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ProjectID)
	}
	return ids
}

// Record renders one row as CSV fields matching Columns.
func Record(r grading.Evaluation) []string {
	return []string{
		strconv.Itoa(r.ProjectID),
		r.ProjectName,
		strconv.Itoa(r.NumberOfFields),
		strconv.FormatFloat(r.CompletionPct, 'f', -1, 64),
		strconv.Itoa(r.NumberOfRecords),
		strconv.Itoa(r.NumberOfDQR),
	}
}

// Summary aggregates a finished grade table.
type Summary struct {
	Students          int     `json:"students"`
	MeanCompletionPct float64 `json:"mean_completion_pct"`
	Complete          int     `json:"complete"`
	TotalRecords      int     `json:"total_records"`
	TotalDQR          int     `json:"total_dqr"`
}

func Summarize(rows []grading.Evaluation) Summary {
	s := Summary{Students: len(rows)}
	if len(rows) == 0 {
		return s
	}
	var sum float64
	for _, r := range rows {
		sum += r.CompletionPct
		if r.CompletionPct == 1 {
			s.Complete++
		}
		s.TotalRecords += r.NumberOfRecords
		s.TotalDQR += r.NumberOfDQR
	}
	s.MeanCompletionPct = sum / float64(len(rows))
	return s
}
