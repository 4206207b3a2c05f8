package trajplot

import (
	"errors"
	"fmt"
)

var (
	// ErrLoad wraps every failure to turn an input file into a Table.
	ErrLoad = errors.New("cannot load data")

	ErrNoTimeColumn = errors.New("time column not found")
	ErrNoSeries     = errors.New("no data columns to plot")
)

type Column struct {
	Name   string
	Values []float64
}

// Table is the in-memory form of a named CSV file. Columns are kept in header
// order and all have the same number of values. A Table is never mutated
// after it is loaded.
type Table struct {
	Columns []Column
}

func (t *Table) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		names = append(names, c.Name)
	}
	return names
}

func (t *Table) NumRows() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return len(t.Columns[0].Values)
}

func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

func newTable(header []string) (*Table, error) {
	if len(header) == 0 {
		return nil, fmt.Errorf("%w: empty header row", ErrLoad)
	}

	seen := make(map[string]struct{}, len(header))
	table := &Table{Columns: make([]Column, 0, len(header))}
	for i, name := range header {
		if name == "" {
			return nil, fmt.Errorf("%w: header column %d has no name", ErrLoad, i+1)
		}
		if _, ok := seen[name]; ok {
			return nil, fmt.Errorf("%w: duplicate column name %q", ErrLoad, name)
		}
		seen[name] = struct{}{}
		table.Columns = append(table.Columns, Column{Name: name})
	}

	return table, nil
}

func (t *Table) appendRow(values []float64) {
	for i := range t.Columns {
		t.Columns[i].Values = append(t.Columns[i].Values, values[i])
	}
}
