package utils

import (
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

var fileNameUnsafeRegex = regexp.MustCompile(`[^\w\s.-]+`)

// FoldCase applies Unicode case folding, so "Straße" and "STRASSE" compare
// equal after folding.
func FoldCase(s string) string {
	return cases.Fold().String(s)
}

// NormalizeColumnName case-folds a header and collapses every run of
// whitespace into a single underscore. Leading and trailing whitespace is
// dropped.
func NormalizeColumnName(name string) string {
	return strings.Join(strings.Fields(FoldCase(name)), "_")
}

// NormalizeTableName folds a sheet or table name for case-insensitive
// matching.
func NormalizeTableName(name string) string {
	return strings.TrimSpace(FoldCase(name))
}

// SanitizeFileName strips characters that are unsafe in file names while
// keeping word characters, spaces, dots and dashes.
func SanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = fileNameUnsafeRegex.ReplaceAllString(name, "")
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "attachment"
	}
	return name
}
