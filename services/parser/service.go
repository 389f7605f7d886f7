package parser

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailsync/internal/enum"
	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
)

// CSVTableName is the logical name of every delimited file. Sheet names
// are case-folded, so a sheet named "CSV" lands in the same table.
const CSVTableName = "csv"

type ParserService struct {
	log logger.Logger
}

func NewParserService(log logger.Logger) *ParserService {
	return &ParserService{log: log}
}

// KindOf maps a file extension to the tabular format it holds.
func KindOf(path string) enum.FileKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return enum.FileKindCSV
	case ".xlsx", ".xlsm":
		return enum.FileKindXLSX
	case ".xls":
		return enum.FileKindXLS
	default:
		return enum.FileKindUnknown
	}
}

// IsTabular reports whether the file name has an extension the parser reads.
func IsTabular(name string) bool {
	return KindOf(name) != enum.FileKindUnknown
}

// ParseFile reads one file into normalized tables. Files with an unknown
// extension yield no tables and no error.
func (s *ParserService) ParseFile(ctx context.Context, path string) ([]models.NormalizedTable, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "ParserService.ParseFile")
	defer span.Finish()
	tracing.TagComponentService(span)
	span.SetTag("file", filepath.Base(path))

	var (
		tables []models.NormalizedTable
		err    error
	)
	switch KindOf(path) {
	case enum.FileKindCSV:
		tables, err = parseCSVFile(path)
	case enum.FileKindXLSX:
		tables, err = parseXLSXFile(path, s.log)
	case enum.FileKindXLS:
		tables, err = parseXLSFile(path, s.log)
	default:
		s.log.Debugf("Ignoring %s: unsupported extension", path)
		return nil, nil
	}
	if err != nil {
		if !errors.Is(err, mserrors.ErrParse) {
			err = errors.Wrapf(mserrors.ErrParse, "%s: %v", filepath.Base(path), err)
		}
		tracing.TraceErr(span, err)
		return nil, err
	}

	span.LogKV("tables", len(tables))
	return tables, nil
}

// ParseFiles parses every path in order. A failing file is logged and
// reported in the returned failures; it never prevents its siblings from
// being parsed.
func (s *ParserService) ParseFiles(ctx context.Context, paths []string) ([]models.NormalizedTable, []models.FileFailure) {
	var (
		tables   []models.NormalizedTable
		failures []models.FileFailure
	)
	for _, path := range paths {
		parsed, err := s.ParseFile(ctx, path)
		if err != nil {
			s.log.Errorf("Failed to parse %s: %v", path, err)
			failures = append(failures, models.FileFailure{Path: path, Reason: err.Error()})
			continue
		}
		tables = append(tables, parsed...)
	}
	return tables, failures
}
