package parser

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"

	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/utils"
)

// buildTable turns a raw cell grid into a NormalizedTable. The first
// non-empty row is the header. It returns nil when the grid holds no header.
func buildTable(name, source string, grid [][]string) (*models.NormalizedTable, error) {
	headerIdx := -1
	for i, row := range grid {
		if !isEmptyRow(row) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, nil
	}

	columns, err := normalizeHeader(grid[headerIdx])
	if err != nil {
		return nil, errors.Wrapf(mserrors.ErrParse, "table %q: %v", name, err)
	}

	table := &models.NormalizedTable{
		Name:       name,
		SourceFile: source,
		Columns:    columns,
	}

	for i := headerIdx + 1; i < len(grid); i++ {
		record := grid[i]
		if isEmptyRow(record) {
			continue
		}
		row := make(models.Row, len(columns))
		for c, col := range columns {
			if c < len(record) {
				row[col] = cleanCell(record[c])
			} else {
				row[col] = nil
			}
		}
		for c := len(columns); c < len(record); c++ {
			if strings.TrimSpace(record[c]) != "" {
				return nil, errors.Wrapf(mserrors.ErrParse, "table %q line %d: value %q outside of the %d header columns", name, i+1, record[c], len(columns))
			}
		}
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

func normalizeHeader(header []string) ([]string, error) {
	last := len(header) - 1
	for last >= 0 && strings.TrimSpace(header[last]) == "" {
		last--
	}

	columns := make([]string, 0, last+1)
	seen := make(map[string]int, last+1)
	for i := 0; i <= last; i++ {
		col := utils.NormalizeColumnName(sanitizeUTF8(header[i]))
		if col == "" {
			col = fmt.Sprintf("unnamed_%d", i+1)
		}
		if prev, ok := seen[col]; ok {
			return nil, fmt.Errorf("columns %d and %d both normalize to %q", prev+1, i+1, col)
		}
		seen[col] = i
		columns = append(columns, col)
	}
	return columns, nil
}

// cleanCell maps blank cells to nil, which is written as NULL.
func cleanCell(v string) any {
	v = strings.TrimSpace(sanitizeUTF8(v))
	if v == "" {
		return nil
	}
	return v
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "�")
}
