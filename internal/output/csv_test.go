package output

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return records
}

func TestCSVSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "downloads", "mgh_2020_grades.csv")
	s, err := NewCSVSink(path)
	if err != nil {
		t.Fatalf("NewCSVSink: %v", err)
	}
	_ = s.Write(Event{Type: EventRunStarted})
	for _, r := range sampleRows {
		_ = s.Write(r)
	}
	_ = s.Write(Event{Type: EventRunFinished})
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	want := [][]string{
		{"project_id", "project_name", "number_of_fields", "completion_pct", "number_of_records", "number_of_dqr"},
		{"11", "Ana", "3", "0.6666666666666666", "4", "2"},
		{"12", "Bruno Homework", "5", "1", "0", "0"},
	}
	if diff := cmp.Diff(want, readCSV(t, path)); diff != "" {
		t.Fatalf("CSV mismatch (-want +got):\n%s", diff)
	}

	if _, err := NewCSVSink(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestCSVSink_SkipsFailedRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grades.csv")
	s, _ := NewCSVSink(path)
	_ = s.Write(sampleRows[0])
	_ = s.Write(Event{Type: EventRunFinished, ExitCode: 1})
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected no file for a failed run, stat err = %v", err)
	}

	// No run.finished at all (aborted run) also writes nothing.
	s, _ = NewCSVSink(path)
	_ = s.Write(sampleRows[0])
	_ = s.Close()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected no file for an aborted run, stat err = %v", err)
	}
}

func TestWriteCSV_QuotesValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dqr.csv")
	records := [][]string{{"1", "age, range", `say "hi"`}}
	if err := WriteCSV(path, []string{"project_id", "rule_name", "rule_logic"}, records); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	got := readCSV(t, path)
	if diff := cmp.Diff(records[0], got[1]); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "Ana.csv")
	if err := WriteFile(path, []byte("field_name\nage\n")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "field_name\nage\n" {
		t.Fatalf("unexpected content %q", got)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"Homework Ana":        "Homework Ana",
		"S3/S4 homework":      "S3_S4 homework",
		`a\b:c*d?e"f<g>h|i`:   "a_b_c_d_e_f_g_h_i",
		"  ..hidden.  ":       "hidden",
		"":                    "untitled",
		"line\nbreak":         "linebreak",
		"Évaluation données": "Évaluation données",
	}
	for in, want := range tests {
		if got := SanitizeFilename(in); got != want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
