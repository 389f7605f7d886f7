package models

import "github.com/customeros/mailsync/internal/utils"

// Row maps a normalized column name to a cell value. A nil value, or a
// missing key, is written as NULL.
type Row map[string]any

// NormalizedTable is one table extracted from one file, with case-folded
// column names.
type NormalizedTable struct {
	Name       string
	SourceFile string
	Columns    []string
	Rows       []Row
}

// ConsolidatedTable is the union of every NormalizedTable sharing a
// logical name within one run.
type ConsolidatedTable struct {
	Name    string
	Columns []string
	Rows    []Row
	Sources []string
}

func (t *ConsolidatedTable) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Column describes a destination column as reported by the database.
type Column struct {
	Name         string
	DatabaseType string
	Nullable     bool
}

// TableDescriptor is a destination table as reported by introspection,
// with its actual (not normalized) name.
type TableDescriptor struct {
	Name    string
	Columns []Column
}

// ColumnByName finds a column by its normalized name, so "Customer ID"
// in the database answers to "customer_id".
func (d *TableDescriptor) ColumnByName(name string) (Column, bool) {
	for _, c := range d.Columns {
		if utils.NormalizeColumnName(c.Name) == name {
			return c, true
		}
	}
	return Column{}, false
}
