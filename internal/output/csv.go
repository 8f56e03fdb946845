package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"redcapgrade/internal/grading"
	"redcapgrade/internal/report"
)

// CSVSink writes the grade table to a CSV file on Close. The file is only
// written after a successful run.finished event, so a failed run never
// replaces a previous table with a partial one.
type CSVSink struct {
	path string
	mu   sync.Mutex
	rows []grading.Evaluation
	ok   bool
}

func NewCSVSink(path string) (*CSVSink, error) {
	if path == "" {
		return nil, fmt.Errorf("csv output path required")
	}
	return &CSVSink{path: path}, nil
}

func (s *CSVSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := v.(grading.Evaluation); ok {
		s.rows = append(s.rows, r)
	}
	if finished, ok := succeeded(v); finished {
		s.ok = ok
	}
	return nil
}

func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ok {
		return nil
	}
	records := make([][]string, 0, len(s.rows))
	for _, r := range s.rows {
		records = append(records, report.Record(r))
	}
	return WriteCSV(s.path, report.Columns, records)
}

// WriteCSV writes header and records to path, creating parent directories.
func WriteCSV(path string, header []string, records [][]string) error {
	f, err := create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.WriteAll(records); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// WriteFile stores a downloaded artifact verbatim.
func WriteFile(path string, data []byte) error {
	f, err := create(path)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

func create(path string) (*os.File, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}

// SanitizeFilename turns a project title into a safe file name stem.
// Path separators and characters Windows rejects become '_'.
func SanitizeFilename(title string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r < 0x20:
			return -1
		case strings.ContainsRune(`/\:*?"<>|`, r):
			return '_'
		}
		return r
	}, strings.TrimSpace(title))
	name = strings.Trim(name, ". ")
	if name == "" {
		return "untitled"
	}
	return name
}
