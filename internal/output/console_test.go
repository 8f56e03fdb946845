package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fatih/color"

	"redcapgrade/internal/grading"
	"redcapgrade/internal/report"
)

func init() {
	color.NoColor = true
}

var sampleRows = []grading.Evaluation{
	{ProjectID: 11, ProjectName: "Ana", NumberOfFields: 3, CompletionPct: 2.0 / 3.0, NumberOfRecords: 4, NumberOfDQR: 2},
	{ProjectID: 12, ProjectName: "Bruno Homework", NumberOfFields: 5, CompletionPct: 1, NumberOfRecords: 0, NumberOfDQR: 0},
}

func TestConsoleSink_Text(t *testing.T) {
	var buf bytes.Buffer
	s := NewConsoleSink(&buf, "text")

	_ = s.Write(Event{Type: EventRunStarted, Students: 2})
	for _, r := range sampleRows {
		if err := s.Write(r); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if buf.Len() != 0 {
		t.Fatalf("text output should be deferred to Close, got %q", buf.String())
	}
	sum := report.Summarize(sampleRows)
	_ = s.Write(Event{Type: EventRunFinished, Summary: &sum})
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if !strings.HasPrefix(lines[0], "project_id") || !strings.Contains(lines[0], "number_of_dqr") {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if !strings.Contains(lines[1], "Ana") || !strings.Contains(lines[1], "0.667") {
		t.Fatalf("unexpected first row %q", lines[1])
	}
	// Columns are aligned: project_name starts at the same offset everywhere.
	if strings.Index(lines[1], "Ana") != strings.Index(lines[0], "project_name") {
		t.Fatalf("columns not aligned:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "2 students, mean completion 0.833, 1 complete") {
		t.Fatalf("missing summary:\n%s", buf.String())
	}
}

func TestConsoleSink_TextEmpty(t *testing.T) {
	var buf bytes.Buffer
	s := NewConsoleSink(&buf, "")
	_ = s.Write(Event{Type: EventRunFinished})
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !strings.Contains(buf.String(), "No students graded.") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestConsoleSink_FailedRunPrintsNothing(t *testing.T) {
	for _, format := range []string{"text", "json"} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			s := NewConsoleSink(&buf, format)
			_ = s.Write(sampleRows[0])
			_ = s.Write(Event{Type: EventRunFinished, ExitCode: 1, Error: "boom"})
			if err := s.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
			if buf.Len() != 0 {
				t.Fatalf("expected no output for a failed run, got %q", buf.String())
			}
		})
	}
}

func TestConsoleSink_JSON(t *testing.T) {
	var buf bytes.Buffer
	s := NewConsoleSink(&buf, "json")
	_ = s.Write(Event{Type: EventRunStarted})
	for _, r := range sampleRows {
		_ = s.Write(r)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var got []grading.Evaluation
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON %q: %v", buf.String(), err)
	}
	if len(got) != 2 || got[1].ProjectName != "Bruno Homework" {
		t.Fatalf("unexpected rows: %+v", got)
	}

	buf.Reset()
	empty := NewConsoleSink(&buf, "json")
	_ = empty.Close()
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Fatalf("empty JSON should be [], got %q", buf.String())
	}
}

func TestConsoleSink_NDJSON(t *testing.T) {
	var buf bytes.Buffer
	s := NewConsoleSink(&buf, "ndjson")
	_ = s.Write(Event{Type: EventRunStarted, RunID: "run-1", Students: 2})
	_ = s.Write(sampleRows[0])
	_ = s.Write("ignored")
	_ = s.Write(Event{Type: EventRunFinished, RunID: "run-1"})
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), buf.String())
	}
	var graded map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &graded); err != nil {
		t.Fatalf("invalid JSON line: %v", err)
	}
	if graded["type"] != EventStudentGraded || graded["project_name"] != "Ana" {
		t.Fatalf("unexpected graded event: %v", graded)
	}
	if graded["project_id"].(float64) != 11 {
		t.Fatalf("evaluation fields should be flattened: %v", graded)
	}
	if !strings.Contains(lines[0], `"students":2`) || strings.Contains(lines[0], "project_id") {
		t.Fatalf("unexpected start event: %s", lines[0])
	}
}

func TestConsoleSink_UnsupportedFormat(t *testing.T) {
	s := NewConsoleSink(&bytes.Buffer{}, "xml")
	if err := s.Write(sampleRows[0]); err == nil {
		t.Fatalf("expected error")
	}
	if err := s.Close(); err == nil {
		t.Fatalf("expected error")
	}
}
