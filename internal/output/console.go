package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/fatih/color"

	"redcapgrade/internal/grading"
	"redcapgrade/internal/report"
)

// ConsoleSink prints the grade table for humans (text) or machines (json,
// ndjson). Text and json output are rendered on Close, once every row is
// known.
type ConsoleSink struct {
	writer  io.Writer
	format  string // "text", "json", "ndjson"
	mu      sync.Mutex
	rows    []grading.Evaluation
	summary *report.Summary
	failed  bool
}

func NewConsoleSink(w io.Writer, format string) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	if format == "" {
		format = "text"
	}
	return &ConsoleSink{writer: w, format: format}
}

func (s *ConsoleSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.format {
	case "text", "json":
		switch t := v.(type) {
		case grading.Evaluation:
			s.rows = append(s.rows, t)
		case Event:
			if finished, ok := succeeded(t); finished {
				s.failed = !ok
				s.summary = t.Summary
			}
		}
		return nil
	case "ndjson":
		encoder := json.NewEncoder(s.writer)
		switch t := v.(type) {
		case Event:
			if err := encoder.Encode(t); err != nil {
				return err
			}
		case grading.Evaluation:
			if err := encoder.Encode(eventFromEvaluation(t)); err != nil {
				return err
			}
		default:
			return nil
		}
		return flushIfPossible(s.writer)
	default:
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
}

func (s *ConsoleSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.format {
	case "json":
		if s.failed {
			return nil
		}
		encoder := json.NewEncoder(s.writer)
		encoder.SetIndent("", "  ")
		rows := s.rows
		if rows == nil {
			rows = []grading.Evaluation{}
		}
		if err := encoder.Encode(rows); err != nil {
			return err
		}
		return flushIfPossible(s.writer)
	case "text":
		if s.failed {
			return nil
		}
		if err := s.renderTable(); err != nil {
			return err
		}
		return flushIfPossible(s.writer)
	case "ndjson":
		return nil
	default:
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
}

func (s *ConsoleSink) renderTable() error {
	if len(s.rows) == 0 {
		_, err := fmt.Fprintln(s.writer, "No students graded.")
		return err
	}

	// Align first, then color: escape codes would skew tabwriter widths.
	var buf strings.Builder
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, strings.Join(report.Columns, "\t")); err != nil {
		return err
	}
	for _, r := range s.rows {
		if _, err := fmt.Fprintf(tw, "%d\t%s\t%d\t%.3f\t%d\t%d\n",
			r.ProjectID, r.ProjectName, r.NumberOfFields, r.CompletionPct, r.NumberOfRecords, r.NumberOfDQR); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	header, body, _ := strings.Cut(buf.String(), "\n")
	if _, err := color.New(color.Bold).Fprintln(s.writer, header); err != nil {
		return err
	}
	if _, err := io.WriteString(s.writer, body); err != nil {
		return err
	}

	if s.summary != nil {
		_, err := fmt.Fprintf(s.writer, "\n%d students, mean completion %.3f, %d complete, %d records, %d quality rules\n",
			s.summary.Students, s.summary.MeanCompletionPct, s.summary.Complete, s.summary.TotalRecords, s.summary.TotalDQR)
		return err
	}
	return nil
}
