package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/customeros/mailsync/interfaces"
	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
)

// postgres caps a statement at 65535 bind parameters
const maxBindParameters = 60000

// bookkeeping tables owned by this service are never sync targets
var internalTables = map[string]struct{}{
	models.SyncState{}.TableName(): {},
	models.SyncRun{}.TableName():   {},
}

type destinationRepository struct {
	db *gorm.DB
}

func NewDestinationRepository(db *gorm.DB) interfaces.Destination {
	return &destinationRepository{db: db}
}

func (r *destinationRepository) Ping(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "destinationRepository.Ping")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	sqlDB, err := r.db.DB()
	if err != nil {
		tracing.TraceErr(span, err)
		return mserrors.Connectivity(err, "failed to get database handle")
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		tracing.TraceErr(span, err)
		return mserrors.Connectivity(err, "failed to reach destination database")
	}
	return nil
}

// ListTables returns the base tables of the current schema.
func (r *destinationRepository) ListTables(ctx context.Context) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "destinationRepository.ListTables")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	tables, err := r.db.WithContext(ctx).Migrator().GetTables()
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	result := make([]string, 0, len(tables))
	for _, t := range tables {
		if _, ok := internalTables[t]; ok || strings.HasPrefix(t, "sqlite_") {
			continue
		}
		result = append(result, t)
	}
	return result, nil
}

func (r *destinationRepository) ListColumns(ctx context.Context, table string) ([]models.Column, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "destinationRepository.ListColumns")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTable(span, table)

	columnTypes, err := r.db.WithContext(ctx).Migrator().ColumnTypes(table)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to list columns of %s: %w", table, err)
	}

	columns := make([]models.Column, 0, len(columnTypes))
	for _, ct := range columnTypes {
		nullable, ok := ct.Nullable()
		columns = append(columns, models.Column{
			Name:         ct.Name(),
			DatabaseType: strings.ToLower(ct.DatabaseTypeName()),
			Nullable:     nullable || !ok,
		})
	}
	return columns, nil
}

func (r *destinationRepository) Select(ctx context.Context, table string, columns []string, where string, args ...any) ([]models.Row, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "destinationRepository.Select")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTable(span, table)

	query := r.db.WithContext(ctx).Table(table)
	if len(columns) > 0 {
		query = query.Select(columns)
	}
	if where != "" {
		query = query.Where(where, args...)
	}

	var records []map[string]interface{}
	if err := query.Find(&records).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to select from %s: %w", table, err)
	}

	rows := make([]models.Row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, models.Row(rec))
	}
	return rows, nil
}

// UpdateRow sets values on the single row whose idColumn equals id.
func (r *destinationRepository) UpdateRow(ctx context.Context, table, idColumn string, id any, values map[string]any) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "destinationRepository.UpdateRow")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTable(span, table)

	if len(values) == 0 {
		return nil
	}

	result := r.db.WithContext(ctx).
		Table(table).
		Where(clause.Eq{Column: clause.Column{Name: idColumn}, Value: id}).
		Updates(values)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to update %s: %w", table, result.Error)
	}
	if result.RowsAffected == 0 {
		tracing.TraceErr(span, ErrRowNotFound)
		return ErrRowNotFound
	}
	return nil
}

// InsertRows writes all rows or none of them.
func (r *destinationRepository) InsertRows(ctx context.Context, table string, rows []map[string]any) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "destinationRepository.InsertRows")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTable(span, table)
	span.LogKV("rows", len(rows))

	if len(rows) == 0 {
		return nil
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return insertInBatches(tx, table, rows)
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return nil
}

// ReplaceRows deletes every row of the table and inserts rows, in one
// transaction.
func (r *destinationRepository) ReplaceRows(ctx context.Context, table string, rows []map[string]any) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "destinationRepository.ReplaceRows")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTable(span, table)
	span.LogKV("rows", len(rows))

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM ?", clause.Table{Name: table}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return insertInBatches(tx, table, rows)
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to replace rows of %s: %w", table, err)
	}
	return nil
}

func insertInBatches(tx *gorm.DB, table string, rows []map[string]any) error {
	columns := map[string]struct{}{}
	for _, row := range rows {
		for k := range row {
			columns[k] = struct{}{}
		}
	}
	batchSize := maxBindParameters / max(len(columns), 1)
	if batchSize < 1 {
		batchSize = 1
	}
	return tx.Table(table).CreateInBatches(rows, batchSize).Error
}
