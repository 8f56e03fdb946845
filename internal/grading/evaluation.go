package grading

import (
	"context"
	"fmt"
)

// Evaluation is one row of the grade table.
type Evaluation struct {
	ProjectID       int     `json:"project_id"`
	ProjectName     string  `json:"project_name"`
	NumberOfFields  int     `json:"number_of_fields"`
	CompletionPct   float64 `json:"completion_pct"`
	NumberOfRecords int     `json:"number_of_records"`
	NumberOfDQR     int     `json:"number_of_dqr"`
}

// Project identifies a REDCap project.
type Project struct {
	ID    int
	Title string
}

// Source supplies the per-project facts a student is graded on.
type Source interface {
	Project(ctx context.Context) (Project, error)
	FieldNames(ctx context.Context) ([]string, error)
	RecordCount(ctx context.Context) (int, error)
}

// Evaluate grades a single student project against the master field names.
// NumberOfDQR is left at zero; it is filled in by the report join.
func Evaluate(ctx context.Context, src Source, master []string) (Evaluation, error) {
	if src == nil {
		return Evaluation{}, fmt.Errorf("evaluate: nil source")
	}

	project, err := src.Project(ctx)
	if err != nil {
		return Evaluation{}, fmt.Errorf("project info: %w", err)
	}
	fields, err := src.FieldNames(ctx)
	if err != nil {
		return Evaluation{}, fmt.Errorf("data dictionary of %q: %w", project.Title, err)
	}
	pct, err := CompletionPct(master, fields)
	if err != nil {
		return Evaluation{}, err
	}
	records, err := src.RecordCount(ctx)
	if err != nil {
		return Evaluation{}, fmt.Errorf("records of %q: %w", project.Title, err)
	}

	return Evaluation{
		ProjectID:       project.ID,
		ProjectName:     project.Title,
		NumberOfFields:  len(fields),
		CompletionPct:   pct,
		NumberOfRecords: records,
	}, nil
}
