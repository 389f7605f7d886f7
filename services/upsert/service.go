package upsert

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/enum"
	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
)

type UpsertService struct {
	destination interfaces.Destination
	mode        enum.SyncMode
	log         logger.Logger
}

func NewUpsertService(destination interfaces.Destination, mode enum.SyncMode, log logger.Logger) *UpsertService {
	if !mode.IsValid() {
		mode = enum.SyncModeUpsert
	}
	return &UpsertService{destination: destination, mode: mode, log: log}
}

// destinationColumn ties a normalized column name to the destination's
// actual column.
type destinationColumn struct {
	name string
	kind columnKind
}

type target struct {
	table    string
	columns  map[string]destinationColumn
	idColumn string
	idKind   columnKind
}

func newTarget(descriptor *models.TableDescriptor) *target {
	tgt := &target{table: descriptor.Name, columns: make(map[string]destinationColumn, len(descriptor.Columns))}
	for _, c := range descriptor.Columns {
		tgt.columns[utils.NormalizeColumnName(c.Name)] = destinationColumn{name: c.Name, kind: kindOf(c.DatabaseType)}
	}
	return tgt
}

type preparedRow struct {
	original models.Row
	values   map[string]any
	id       any
	key      string
}

// Sync reconciles one consolidated table with the destination table of the
// same name. Table and row level problems are reported in the result; the
// error is non-nil only when the destination could not be reached or
// introspected.
func (s *UpsertService) Sync(ctx context.Context, table *models.ConsolidatedTable, identifierColumn string) (*models.UpsertResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "UpsertService.Sync")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagTable(span, table.Name)
	span.LogKV("rows", len(table.Rows), "mode", s.mode.String())

	result := &models.UpsertResult{Table: table.Name}

	tgt, err := s.resolveTarget(ctx, table, identifierColumn, result)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if tgt == nil {
		s.log.Warnf("Skipping table %s: %s (%s)", table.Name, result.Condition, result.Detail)
		span.SetTag("condition", result.Condition.String())
		return result, nil
	}

	if s.mode == enum.SyncModeReplace {
		err = s.replace(ctx, table, tgt, result)
	} else {
		err = s.upsert(ctx, table, tgt, result)
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	s.log.Infof("Table %s synced: %d inserted, %d updated, %d failed", table.Name, result.Inserted, result.Updated, len(result.FailedRows))
	return result, nil
}

// resolveTarget runs the table lookup and schema checks. It returns a nil
// target with result.Condition set when the table cannot be synced.
func (s *UpsertService) resolveTarget(ctx context.Context, table *models.ConsolidatedTable, identifierColumn string, result *models.UpsertResult) (*target, error) {
	tables, err := s.destination.ListTables(ctx)
	if err != nil {
		if mserrors.IsConnectivity(err) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to list destination tables")
	}

	actual, found := matchTable(tables, table.Name)
	if !found {
		result.Condition = enum.TableConditionNotFound
		result.Detail = fmt.Sprintf("no destination table matches %q", table.Name)
		return nil, nil
	}

	columns, err := s.destination.ListColumns(ctx, actual)
	if err != nil {
		if mserrors.IsConnectivity(err) {
			return nil, err
		}
		return nil, errors.Wrapf(err, "failed to list columns of %s", actual)
	}

	descriptor := &models.TableDescriptor{Name: actual, Columns: columns}
	tgt := newTarget(descriptor)

	if missing, extra := diffColumns(table.Columns, tgt.columns); len(missing) > 0 || len(extra) > 0 {
		result.Condition = enum.TableConditionSchemaMismatch
		result.Detail = describeMismatch(missing, extra)
		return nil, nil
	}

	id := utils.NormalizeColumnName(identifierColumn)
	if !table.HasColumn(id) {
		result.Condition = enum.TableConditionIdentifierMissing
		result.Detail = fmt.Sprintf("identifier column %q not present", id)
		return nil, nil
	}
	idColumn, _ := descriptor.ColumnByName(id)
	tgt.idColumn = idColumn.Name
	tgt.idKind = kindOf(idColumn.DatabaseType)

	return tgt, nil
}

func (s *UpsertService) upsert(ctx context.Context, table *models.ConsolidatedTable, tgt *target, result *models.UpsertResult) error {
	rows, failed := prepareRows(table, tgt, true)
	result.FailedRows = append(result.FailedRows, failed...)

	existing, err := s.existingKeys(ctx, tgt)
	if err != nil {
		return err
	}

	existingRows, newRows := partition(rows, func(r preparedRow) string { return r.key }, existing)

	for _, row := range existingRows {
		values := make(map[string]any, len(row.values)-1)
		for col, v := range row.values {
			if col != tgt.idColumn {
				values[col] = v
			}
		}
		if err := s.destination.UpdateRow(ctx, tgt.table, tgt.idColumn, row.id, values); err != nil {
			if mserrors.IsConnectivity(err) {
				return err
			}
			s.log.Warnf("Update of %s row %s=%v failed: %v", tgt.table, tgt.idColumn, row.id, err)
			result.FailedRows = append(result.FailedRows, models.FailedRow{Values: row.original, Reason: rowReason(err)})
			continue
		}
		result.Updated++
	}

	if len(newRows) == 0 {
		return nil
	}

	inserts := make([]map[string]any, 0, len(newRows))
	for _, row := range newRows {
		inserts = append(inserts, row.values)
	}
	if err := s.destination.InsertRows(ctx, tgt.table, inserts); err != nil {
		if mserrors.IsConnectivity(err) {
			return err
		}
		s.log.Errorf("Bulk insert of %d rows into %s failed: %v", len(newRows), tgt.table, err)
		reason := errors.Wrap(mserrors.ErrBulkInsert, err.Error()).Error()
		for _, row := range newRows {
			result.FailedRows = append(result.FailedRows, models.FailedRow{Values: row.original, Reason: reason})
		}
		return nil
	}
	result.Inserted = len(newRows)
	return nil
}

// replace swaps the whole table content in one transaction. Any row that
// cannot be converted aborts the replace, leaving the table untouched.
func (s *UpsertService) replace(ctx context.Context, table *models.ConsolidatedTable, tgt *target, result *models.UpsertResult) error {
	rows, failed := prepareRows(table, tgt, false)
	if len(failed) > 0 {
		result.FailedRows = append(result.FailedRows, failed...)
		reason := fmt.Sprintf("replace aborted: %d rows could not be converted", len(failed))
		for _, row := range rows {
			result.FailedRows = append(result.FailedRows, models.FailedRow{Values: row.original, Reason: reason})
		}
		return nil
	}

	values := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		values = append(values, row.values)
	}
	if err := s.destination.ReplaceRows(ctx, tgt.table, values); err != nil {
		if mserrors.IsConnectivity(err) {
			return err
		}
		s.log.Errorf("Replace of %s failed: %v", tgt.table, err)
		reason := errors.Wrap(mserrors.ErrBulkInsert, err.Error()).Error()
		for _, row := range rows {
			result.FailedRows = append(result.FailedRows, models.FailedRow{Values: row.original, Reason: reason})
		}
		return nil
	}
	result.Inserted = len(rows)
	return nil
}

func (s *UpsertService) existingKeys(ctx context.Context, tgt *target) (map[string]struct{}, error) {
	rows, err := s.destination.Select(ctx, tgt.table, []string{tgt.idColumn}, "")
	if err != nil {
		if mserrors.IsConnectivity(err) {
			return nil, err
		}
		return nil, errors.Wrapf(err, "failed to read identifiers of %s", tgt.table)
	}

	keys := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if v, ok := row[tgt.idColumn]; ok && v != nil {
			keys[canonicalKey(v, tgt.idKind)] = struct{}{}
		}
	}
	return keys, nil
}

// prepareRows maps every row onto destination column names and types.
// Rows that fail conversion, or lack an identifier when one is required,
// are returned as failures.
func prepareRows(table *models.ConsolidatedTable, tgt *target, requireID bool) ([]preparedRow, []models.FailedRow) {
	prepared := make([]preparedRow, 0, len(table.Rows))
	var failed []models.FailedRow

	for _, row := range table.Rows {
		values := make(map[string]any, len(table.Columns))
		var convErr error
		for _, col := range table.Columns {
			dc := tgt.columns[col]
			v, err := coerce(row[col], dc.kind)
			if err != nil {
				convErr = errors.Wrapf(mserrors.ErrRowFailed, "column %s: %v", col, err)
				break
			}
			values[dc.name] = v
		}
		if convErr != nil {
			failed = append(failed, models.FailedRow{Values: row, Reason: convErr.Error()})
			continue
		}

		p := preparedRow{original: row, values: values}
		if tgt.idColumn != "" {
			p.id = values[tgt.idColumn]
			p.key = canonicalKey(p.id, tgt.idKind)
		}
		if requireID && p.id == nil {
			failed = append(failed, models.FailedRow{Values: row, Reason: errors.Wrap(mserrors.ErrRowFailed, "identifier value is empty").Error()})
			continue
		}
		prepared = append(prepared, p)
	}
	return prepared, failed
}

// Partition splits rows into those whose identifier already exists in the
// destination and those that are new, keeping row order in both.
func Partition(rows []models.Row, identifierColumn string, existing map[string]struct{}) (existingRows, newRows []models.Row) {
	return partition(rows, func(r models.Row) string { return canonicalKey(r[identifierColumn], kindText) }, existing)
}

func partition[T any](rows []T, key func(T) string, existing map[string]struct{}) (existingRows, newRows []T) {
	for _, row := range rows {
		if _, ok := existing[key(row)]; ok {
			existingRows = append(existingRows, row)
		} else {
			newRows = append(newRows, row)
		}
	}
	return existingRows, newRows
}

// matchTable finds the destination table for a logical name, preferring an
// exact match over a case-insensitive one.
func matchTable(tables []string, name string) (string, bool) {
	folded := utils.NormalizeTableName(name)
	match := ""
	for _, t := range tables {
		if t == name {
			return t, true
		}
		if match == "" && utils.NormalizeTableName(t) == folded {
			match = t
		}
	}
	return match, match != ""
}

func diffColumns(columns []string, destination map[string]destinationColumn) (missing, extra []string) {
	present := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		present[c] = struct{}{}
		if _, ok := destination[c]; !ok {
			extra = append(extra, c)
		}
	}
	for c := range destination {
		if _, ok := present[c]; !ok {
			missing = append(missing, c)
		}
	}
	sort.Strings(missing)
	return missing, extra
}

func describeMismatch(missing, extra []string) string {
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing columns: "+strings.Join(missing, ", "))
	}
	if len(extra) > 0 {
		parts = append(parts, "unknown columns: "+strings.Join(extra, ", "))
	}
	return strings.Join(parts, "; ")
}

func rowReason(err error) string {
	return errors.Wrap(mserrors.ErrRowFailed, err.Error()).Error()
}
