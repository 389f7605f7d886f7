package merger

import (
	"github.com/customeros/mailsync/internal/models"
)

// Merge groups tables by logical name and concatenates their rows in
// encounter order. Columns are the union of every constituent, in
// first-seen order; a row lacking one of them holds no value for it.
// Column uniformity is not checked here.
func Merge(tables []models.NormalizedTable) *Tables {
	result := NewTables()

	for _, table := range tables {
		consolidated := result.getOrCreate(table.Name)

		for _, col := range table.Columns {
			if !consolidated.HasColumn(col) {
				consolidated.Columns = append(consolidated.Columns, col)
			}
		}
		consolidated.Rows = append(consolidated.Rows, table.Rows...)
		if table.SourceFile != "" && !containsString(consolidated.Sources, table.SourceFile) {
			consolidated.Sources = append(consolidated.Sources, table.SourceFile)
		}
	}

	return result
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
