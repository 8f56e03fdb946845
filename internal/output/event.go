package output

import (
	"io"

	"redcapgrade/internal/grading"
	"redcapgrade/internal/report"
)

// Event types emitted over a grading run.
const (
	EventRunStarted    = "run.started"
	EventStudentGraded = "student.graded"
	EventRunFinished   = "run.finished"
)

// Event is a lifecycle record for NDJSON streaming output.
//
// Graded rows stream as student.graded events with the evaluation fields
// flattened into the object. JSON mode stays an aggregate of rows.
type Event struct {
	Type  string `json:"type"`
	RunID string `json:"run_id,omitempty"`
	*grading.Evaluation
	Students int             `json:"students,omitempty"`
	Summary  *report.Summary `json:"summary,omitempty"`
	ExitCode int             `json:"exit_code,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// succeeded reports whether v is a run.finished event for a clean run.
func succeeded(v any) (finished, ok bool) {
	e, isEvent := v.(Event)
	if !isEvent || e.Type != EventRunFinished {
		return false, false
	}
	return true, e.ExitCode == 0
}

func eventFromEvaluation(e grading.Evaluation) Event {
	return Event{Type: EventStudentGraded, Evaluation: &e}
}

type flusher interface {
	Flush() error
}

func flushIfPossible(w io.Writer) error {
	f, ok := w.(flusher)
	if !ok {
		return nil
	}
	return f.Flush()
}
