// Package dqr reads REDCap data quality rules from the REDCap database and
// aggregates them per project.
package dqr

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// DefaultTable is where REDCap stores data quality rules.
const DefaultTable = "redcap_data_quality_rules"

const projectIDColumn = "project_id"

// ErrMissingProjectID is returned when the rules table has no project_id
// column.
var ErrMissingProjectID = errors.New("quality rules table has no project_id column")

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Table is an in-memory copy of the rules table with every value rendered as
// a string. NULL becomes "".
type Table struct {
	Columns []string
	Rows    [][]string

	projectCol int
}

// Load reads the whole table.
func Load(ctx context.Context, db *sql.DB, table string) (*Table, error) {
	if db == nil {
		return nil, fmt.Errorf("load quality rules: nil database")
	}
	if table == "" {
		table = DefaultTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("load quality rules: invalid table name %q", table)
	}

	rows, err := db.QueryContext(ctx, "SELECT * FROM "+table)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", table, err)
	}
	t, err := NewTable(cols, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", table, err)
	}

	for rows.Next() {
		raw := make([]sql.NullString, len(cols))
		dest := make([]any, len(cols))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		row := make([]string, len(cols))
		for i, v := range raw {
			if v.Valid {
				row[i] = v.String
			}
		}
		t.Rows = append(t.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}
	return t, nil
}

// NewTable builds a table from already loaded values.
func NewTable(columns []string, rows [][]string) (*Table, error) {
	t := &Table{Columns: columns, Rows: rows, projectCol: -1}
	for i, c := range columns {
		if strings.EqualFold(c, projectIDColumn) {
			t.projectCol = i
			break
		}
	}
	if t.projectCol < 0 {
		return nil, ErrMissingProjectID
	}
	return t, nil
}

// ProjectID parses the project id of row i. Rows with an unparsable id
// report ok=false.
func (t *Table) ProjectID(i int) (int, bool) {
	if i < 0 || i >= len(t.Rows) {
		return 0, false
	}
	row := t.Rows[i]
	if t.projectCol >= len(row) {
		return 0, false
	}
	id, err := strconv.Atoi(strings.TrimSpace(row[t.projectCol]))
	if err != nil {
		return 0, false
	}
	return id, true
}

// CountByProject counts rules per project id. Rows without a valid project
// id are not counted.
func (t *Table) CountByProject() map[int]int {
	counts := make(map[int]int)
	for i := range t.Rows {
		if id, ok := t.ProjectID(i); ok {
			counts[id]++
		}
	}
	return counts
}

// Filter keeps the rows belonging to the given projects, in table order.
func (t *Table) Filter(projectIDs []int) *Table {
	keep := make(map[int]struct{}, len(projectIDs))
	for _, id := range projectIDs {
		keep[id] = struct{}{}
	}
	out := &Table{Columns: t.Columns, projectCol: t.projectCol}
	for i, row := range t.Rows {
		id, ok := t.ProjectID(i)
		if !ok {
			continue
		}
		if _, want := keep[id]; want {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// ProjectIDs lists the distinct project ids present, ascending.
func (t *Table) ProjectIDs() []int {
	counts := t.CountByProject()
	ids := make([]int, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
