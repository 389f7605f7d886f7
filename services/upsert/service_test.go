package upsert

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/enum"
	mserrors "github.com/customeros/mailsync/internal/errors"
	applogger "github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/repository"
)

func newDestination(t *testing.T, ddl ...string) (interfaces.Destination, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "dest.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	for _, stmt := range ddl {
		require.NoError(t, db.Exec(stmt).Error)
	}
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})
	return repository.NewDestinationRepository(db), db
}

func newService(dest interfaces.Destination, mode enum.SyncMode) *UpsertService {
	return NewUpsertService(dest, mode, applogger.NewNopLogger())
}

func ordersTable(rows ...models.Row) *models.ConsolidatedTable {
	return &models.ConsolidatedTable{Name: "orders", Columns: []string{"order_id", "status"}, Rows: rows}
}

func statusOf(t *testing.T, db *gorm.DB, orderID int) string {
	t.Helper()
	var status string
	require.NoError(t, db.Raw("SELECT status FROM orders WHERE order_id = ?", orderID).Scan(&status).Error)
	return status
}

const ordersDDL = `CREATE TABLE orders (order_id INTEGER PRIMARY KEY, status TEXT NOT NULL)`

func TestSync_UpdatesExistingAndInsertsNew(t *testing.T) {
	dest, db := newDestination(t, ordersDDL, `INSERT INTO orders (order_id, status) VALUES (1, 'open')`)

	result, err := newService(dest, enum.SyncModeUpsert).Sync(context.Background(), ordersTable(
		models.Row{"order_id": "1", "status": "closed"},
		models.Row{"order_id": "2", "status": "open"},
	), "order_id")

	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 1, result.Updated)
	assert.Empty(t, result.FailedRows)
	assert.Equal(t, enum.TableConditionNone, result.Condition)
	assert.Equal(t, "closed", statusOf(t, db, 1))
	assert.Equal(t, "open", statusOf(t, db, 2))
}

func TestSync_IsIdempotent(t *testing.T) {
	dest, _ := newDestination(t, ordersDDL)
	svc := newService(dest, enum.SyncModeUpsert)
	table := ordersTable(
		models.Row{"order_id": "1", "status": "open"},
		models.Row{"order_id": "2", "status": "open"},
		models.Row{"order_id": "3", "status": "closed"},
	)

	first, err := svc.Sync(context.Background(), table, "order_id")
	require.NoError(t, err)
	assert.Equal(t, 3, first.Inserted)

	second, err := svc.Sync(context.Background(), table, "order_id")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 3, second.Updated)
	assert.Empty(t, second.FailedRows)
}

func TestSync_TableNotFound(t *testing.T) {
	dest, _ := newDestination(t, ordersDDL)

	result, err := newService(dest, enum.SyncModeUpsert).Sync(context.Background(), &models.ConsolidatedTable{
		Name: "shipments", Columns: []string{"id"}, Rows: []models.Row{{"id": "1"}},
	}, "id")

	require.NoError(t, err)
	assert.Equal(t, enum.TableConditionNotFound, result.Condition)
	assert.Zero(t, result.Inserted)
	assert.Zero(t, result.Updated)
	assert.Empty(t, result.FailedRows)
	assert.True(t, result.Failed())
}

func TestSync_TableNameMatchesCaseInsensitively(t *testing.T) {
	dest, db := newDestination(t, `CREATE TABLE "Orders" (order_id INTEGER PRIMARY KEY, status TEXT NOT NULL)`)

	result, err := newService(dest, enum.SyncModeUpsert).Sync(context.Background(), ordersTable(
		models.Row{"order_id": "7", "status": "open"},
	), "order_id")

	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	var count int64
	require.NoError(t, db.Table("Orders").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSync_SchemaMismatch(t *testing.T) {
	dest, _ := newDestination(t, ordersDDL)

	result, err := newService(dest, enum.SyncModeUpsert).Sync(context.Background(), &models.ConsolidatedTable{
		Name:    "orders",
		Columns: []string{"order_id", "status", "carrier"},
		Rows:    []models.Row{{"order_id": "1", "status": "open", "carrier": "dhl"}},
	}, "order_id")

	require.NoError(t, err)
	assert.Equal(t, enum.TableConditionSchemaMismatch, result.Condition)
	assert.Contains(t, result.Detail, "carrier")
	assert.Zero(t, result.Inserted)
}

func TestSync_ColumnOrderDoesNotMatter(t *testing.T) {
	dest, _ := newDestination(t, ordersDDL)

	result, err := newService(dest, enum.SyncModeUpsert).Sync(context.Background(), &models.ConsolidatedTable{
		Name:    "orders",
		Columns: []string{"status", "order_id"},
		Rows:    []models.Row{{"order_id": "1", "status": "open"}},
	}, "order_id")

	require.NoError(t, err)
	assert.Equal(t, enum.TableConditionNone, result.Condition)
	assert.Equal(t, 1, result.Inserted)
}

func TestSync_IdentifierMissing(t *testing.T) {
	dest, _ := newDestination(t, ordersDDL)

	result, err := newService(dest, enum.SyncModeUpsert).Sync(context.Background(), ordersTable(
		models.Row{"order_id": "1", "status": "open"},
	), "customer_id")

	require.NoError(t, err)
	assert.Equal(t, enum.TableConditionIdentifierMissing, result.Condition)
}

func TestSync_RowFailureIsolation(t *testing.T) {
	dest, db := newDestination(t, ordersDDL)
	for i := 1; i <= 100; i++ {
		require.NoError(t, db.Exec("INSERT INTO orders (order_id, status) VALUES (?, 'open')", i).Error)
	}

	rows := make([]models.Row, 0, 100)
	for i := 1; i <= 100; i++ {
		row := models.Row{"order_id": strconv.Itoa(i), "status": "closed"}
		if i == 42 {
			row["status"] = nil
		}
		rows = append(rows, row)
	}

	result, err := newService(dest, enum.SyncModeUpsert).Sync(context.Background(), ordersTable(rows...), "order_id")

	require.NoError(t, err)
	assert.Equal(t, 99, result.Updated)
	assert.Equal(t, 0, result.Inserted)
	require.Len(t, result.FailedRows, 1)
	assert.Equal(t, "42", result.FailedRows[0].Values["order_id"])
	assert.Equal(t, "open", statusOf(t, db, 42))
	assert.Equal(t, "closed", statusOf(t, db, 43))
}

func TestSync_BulkInsertFailureMarksAllNewRows(t *testing.T) {
	dest, db := newDestination(t, ordersDDL, `INSERT INTO orders (order_id, status) VALUES (1, 'open')`)

	result, err := newService(dest, enum.SyncModeUpsert).Sync(context.Background(), ordersTable(
		models.Row{"order_id": "1", "status": "shipped"},
		models.Row{"order_id": "2", "status": "open"},
		models.Row{"order_id": "3", "status": nil},
	), "order_id")

	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 0, result.Inserted)
	require.Len(t, result.FailedRows, 2)
	for _, failed := range result.FailedRows {
		assert.Contains(t, failed.Reason, mserrors.ErrBulkInsert.Error())
	}

	var count int64
	require.NoError(t, db.Table("orders").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSync_UnconvertibleAndEmptyIdentifiers(t *testing.T) {
	dest, _ := newDestination(t, ordersDDL)

	result, err := newService(dest, enum.SyncModeUpsert).Sync(context.Background(), ordersTable(
		models.Row{"order_id": "abc", "status": "open"},
		models.Row{"order_id": nil, "status": "open"},
		models.Row{"order_id": "5", "status": "open"},
	), "order_id")

	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	require.Len(t, result.FailedRows, 2)
	assert.Contains(t, result.FailedRows[0].Reason, "not an integer")
	assert.Contains(t, result.FailedRows[1].Reason, "identifier value is empty")
}

func TestSync_ReplaceMode(t *testing.T) {
	dest, db := newDestination(t, ordersDDL,
		`INSERT INTO orders (order_id, status) VALUES (1, 'open')`,
		`INSERT INTO orders (order_id, status) VALUES (9, 'stale')`,
	)

	result, err := newService(dest, enum.SyncModeReplace).Sync(context.Background(), ordersTable(
		models.Row{"order_id": "1", "status": "closed"},
		models.Row{"order_id": "2", "status": "open"},
	), "order_id")

	require.NoError(t, err)
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 0, result.Updated)
	assert.Empty(t, result.FailedRows)

	var count int64
	require.NoError(t, db.Table("orders").Count(&count).Error)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, "closed", statusOf(t, db, 1))
}

func TestSync_ReplaceModeRollsBackOnFailure(t *testing.T) {
	dest, db := newDestination(t, ordersDDL, `INSERT INTO orders (order_id, status) VALUES (1, 'open')`)

	result, err := newService(dest, enum.SyncModeReplace).Sync(context.Background(), ordersTable(
		models.Row{"order_id": "2", "status": "open"},
		models.Row{"order_id": "3", "status": nil},
	), "order_id")

	require.NoError(t, err)
	assert.Equal(t, 0, result.Inserted)
	assert.Len(t, result.FailedRows, 2)
	assert.Equal(t, "open", statusOf(t, db, 1))
}

type unreachableDestination struct {
	interfaces.Destination
}

func (unreachableDestination) ListTables(context.Context) ([]string, error) {
	return nil, mserrors.Connectivity(fmt.Errorf("dial tcp 10.0.0.1:5432: connect: connection refused"), "list tables")
}

func TestSync_ConnectivityErrorIsReturned(t *testing.T) {
	result, err := newService(unreachableDestination{}, enum.SyncModeUpsert).Sync(context.Background(), ordersTable(), "order_id")

	assert.Nil(t, result)
	assert.True(t, mserrors.IsConnectivity(err))
}

func TestPartition_CompleteAndDisjoint(t *testing.T) {
	rows := []models.Row{
		{"id": "1"}, {"id": "2"}, {"id": "3"}, {"id": "4"}, {"id": " 5 "},
	}
	existing := map[string]struct{}{"2": {}, "5": {}, "99": {}}

	existingRows, newRows := Partition(rows, "id", existing)

	assert.Equal(t, len(rows), len(existingRows)+len(newRows))
	assert.Equal(t, []models.Row{{"id": "2"}, {"id": " 5 "}}, existingRows)
	assert.Equal(t, []models.Row{{"id": "1"}, {"id": "3"}, {"id": "4"}}, newRows)
	for _, e := range existingRows {
		for _, n := range newRows {
			assert.NotEqual(t, e["id"], n["id"])
		}
	}
}

func TestNewTarget_UsesActualColumnNames(t *testing.T) {
	descriptor := &models.TableDescriptor{Name: "Orders", Columns: []models.Column{
		{Name: "Order ID", DatabaseType: "INTEGER"},
		{Name: "Status", DatabaseType: "varchar(20)"},
	}}

	tgt := newTarget(descriptor)

	assert.Equal(t, "Orders", tgt.table)
	require.Contains(t, tgt.columns, "order_id")
	assert.Equal(t, destinationColumn{name: "Order ID", kind: kindInteger}, tgt.columns["order_id"])
	assert.Equal(t, destinationColumn{name: "Status", kind: kindText}, tgt.columns["status"])
}
