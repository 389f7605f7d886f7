package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/enum"
	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/repository"
	"github.com/customeros/mailsync/internal/utils"
	"github.com/customeros/mailsync/services/parser"
	"github.com/customeros/mailsync/services/storage"
	"github.com/customeros/mailsync/services/upsert"
	"github.com/customeros/mailsync/services/watermark"
)

const sender = `"Reports" <reports@example.com>`

var base = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type fakeSource struct {
	items []*models.RawItem
	err   error
	since []*time.Time
}

func (f *fakeSource) ListCandidateItems(_ context.Context, since *time.Time) ([]*models.RawItem, error) {
	f.since = append(f.since, since)
	return f.items, f.err
}

func (f *fakeSource) Close() error { return nil }

type fakeDestination struct {
	interfaces.Destination
	pingErr error
}

func (f *fakeDestination) Ping(context.Context) error { return f.pingErr }

type recordingSyncer struct {
	tables  []*models.ConsolidatedTable
	errs    map[string]error
	results map[string]*models.UpsertResult
}

func (r *recordingSyncer) Sync(_ context.Context, table *models.ConsolidatedTable, _ string) (*models.UpsertResult, error) {
	r.tables = append(r.tables, table)
	if err := r.errs[table.Name]; err != nil {
		return nil, err
	}
	if res, ok := r.results[table.Name]; ok {
		return res, nil
	}
	return &models.UpsertResult{Table: table.Name, Inserted: len(table.Rows)}, nil
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, summary *models.RunSummary) error {
	return m.Called(ctx, summary).Error(0)
}

type mockRuns struct {
	mock.Mock
}

func (m *mockRuns) Create(ctx context.Context, run *models.SyncRun) error {
	return m.Called(ctx, run).Error(0)
}

func (m *mockRuns) GetLatest(ctx context.Context) (*models.SyncRun, error) {
	args := m.Called(ctx)
	run, _ := args.Get(0).(*models.SyncRun)
	return run, args.Error(1)
}

func (m *mockRuns) List(ctx context.Context, limit int) ([]models.SyncRun, error) {
	args := m.Called(ctx, limit)
	runs, _ := args.Get(0).([]models.SyncRun)
	return runs, args.Error(1)
}

type failingSink struct{}

func (failingSink) Reset(context.Context, string) error { return nil }

func (failingSink) Store(context.Context, models.AttachmentBlob, string) (models.StoredFile, error) {
	return models.StoredFile{}, errors.New("disk full")
}

func csvItem(uid uint32, ts time.Time, from, subject, content string) *models.RawItem {
	return &models.RawItem{
		UID:       uid,
		Timestamp: ts,
		Sender:    from,
		Subject:   subject,
		Attachments: []models.AttachmentBlob{
			{Name: "export.csv", ContentType: "text/csv", Content: []byte(content)},
			{Name: "readme.pdf", Content: []byte("%PDF")},
		},
	}
}

type harness struct {
	source      *fakeSource
	syncer      *recordingSyncer
	notifier    *mockNotifier
	runs        *mockRuns
	watermark   interfaces.WatermarkStore
	workDir     string
	destination *fakeDestination
	sink        interfaces.BlobSink
}

func newHarness(t *testing.T, items ...*models.RawItem) *harness {
	t.Helper()
	workDir := t.TempDir()
	h := &harness{
		source:      &fakeSource{items: items},
		syncer:      &recordingSyncer{},
		notifier:    &mockNotifier{},
		runs:        &mockRuns{},
		watermark:   watermark.NewFileStore(filepath.Join(workDir, "latest.txt"), logger.NewNopLogger()),
		workDir:     workDir,
		destination: &fakeDestination{},
		sink:        storage.NewLocalBlobSink(logger.NewNopLogger()),
	}
	h.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil).Maybe()
	h.runs.On("Create", mock.Anything, mock.Anything).Return(nil).Maybe()
	return h
}

func (h *harness) service(opts Options) *SyncService {
	if opts.IdentifierColumn == "" {
		opts.IdentifierColumn = "order_id"
	}
	if opts.Mode == "" {
		opts.Mode = enum.SyncModeUpsert
	}
	opts.DownloadDir = filepath.Join(h.workDir, "file_downloads")
	return NewSyncService(opts, Dependencies{
		Source:      h.source,
		Sink:        h.sink,
		Parser:      parser.NewParserService(logger.NewNopLogger()),
		Syncer:      h.syncer,
		Watermark:   h.watermark,
		Destination: h.destination,
		Runs:        h.runs,
		Notifier:    h.notifier,
	}, logger.NewNopLogger())
}

func readWatermark(t *testing.T, h *harness) *time.Time {
	t.Helper()
	ts, err := h.watermark.Read(context.Background())
	require.NoError(t, err)
	return ts
}

func TestRun_FirstRunProcessesEverything(t *testing.T) {
	h := newHarness(t,
		csvItem(2, base.Add(2*time.Hour), sender, "Daily export", "order_id,status\n2,open\n"),
		csvItem(1, base, sender, "Daily export", "Order ID,Status\n1,closed\n"),
	)

	summary, err := h.service(Options{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.ItemsConsidered)
	assert.Equal(t, 0, summary.ItemsFailed)
	assert.Equal(t, 2, summary.FilesStored)
	assert.Equal(t, 2, summary.FilesParsed)
	assert.Regexp(t, `^run_`, summary.RunID)
	assert.Nil(t, h.source.since[0])

	require.Len(t, h.syncer.tables, 1)
	table := h.syncer.tables[0]
	assert.Equal(t, parser.CSVTableName, table.Name)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "2", table.Rows[0]["order_id"])
	assert.Equal(t, "1", table.Rows[1]["order_id"])
	assert.Equal(t, 2, summary.Inserted)

	wm := readWatermark(t, h)
	require.NotNil(t, wm)
	assert.True(t, wm.Equal(base.Add(2*time.Hour)))
	assert.True(t, summary.Watermark.Equal(*wm))

	h.notifier.AssertCalled(t, "Notify", mock.Anything, summary)
	h.runs.AssertCalled(t, "Create", mock.Anything, mock.MatchedBy(func(run *models.SyncRun) bool {
		return run.Status == enum.RunStatusCompleted && run.RunID == summary.RunID && run.Inserted == 2
	}))

	entries, err := os.ReadDir(filepath.Join(h.workDir, "file_downloads"))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "non tabular attachments are not stored")
}

func TestRun_SecondRunSkipsProcessedItems(t *testing.T) {
	h := newHarness(t, csvItem(1, base.Add(500*time.Millisecond), sender, "export", "order_id\n1\n"))
	svc := h.service(Options{})

	_, err := svc.Run(context.Background())
	require.NoError(t, err)
	first := readWatermark(t, h)

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.ItemsConsidered)
	assert.Equal(t, 1, summary.ItemsSkipped)
	assert.Len(t, h.syncer.tables, 1)
	assert.Equal(t, first, readWatermark(t, h))
	require.NotNil(t, h.source.since[1])
	assert.True(t, h.source.since[1].Equal(base))
}

func TestRun_NoItemsLeavesWatermarkAbsent(t *testing.T) {
	h := newHarness(t)

	summary, err := h.service(Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.ItemsConsidered)
	assert.Nil(t, readWatermark(t, h))
	assert.NoFileExists(t, filepath.Join(h.workDir, "latest.txt"))
	assert.NoDirExists(t, filepath.Join(h.workDir, "file_downloads"))
	h.notifier.AssertCalled(t, "Notify", mock.Anything, summary)
}

func TestRun_FiltersAndTransientItems(t *testing.T) {
	h := newHarness(t,
		csvItem(5, base.Add(5*time.Hour), "nobody", "export", "order_id\n5\n"),
		&models.RawItem{UID: 4, Timestamp: base.Add(4 * time.Hour), Sender: sender, Subject: "export", DecodeErr: errors.New("truncated")},
		csvItem(3, base.Add(3*time.Hour), "other@example.com", "export", "order_id\n3\n"),
		csvItem(2, base.Add(2*time.Hour), "REPORTS@example.com", "Weekly summary", "order_id\n2\n"),
		csvItem(1, base.Add(1*time.Hour), "Reports@Example.com", "Daily EXPORT for May", "order_id\n1\n"),
	)

	summary, err := h.service(Options{SenderFilter: "reports@example.com", SubjectFilter: "export"}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.ItemsConsidered)
	assert.Equal(t, 2, summary.ItemsFailed)
	assert.Equal(t, 2, summary.ItemsSkipped)
	require.Len(t, h.syncer.tables, 1)
	assert.Equal(t, "1", h.syncer.tables[0].Rows[0]["order_id"])

	wm := readWatermark(t, h)
	require.NotNil(t, wm)
	assert.True(t, wm.Equal(base.Add(time.Hour)), "failed and filtered items do not advance the watermark")
}

func TestRun_FailedItemHoldsBackWatermark(t *testing.T) {
	h := newHarness(t,
		csvItem(2, base.Add(time.Hour), sender, "export", "order_id\n2\n"),
		csvItem(1, base, "nobody", "export", "order_id\n1\n"),
	)
	svc := h.service(Options{SenderFilter: "reports@example.com"})

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ItemsConsidered)
	assert.Equal(t, 1, summary.ItemsFailed)

	wm := readWatermark(t, h)
	require.NotNil(t, wm)
	assert.True(t, wm.Equal(base.Add(-time.Second)), "watermark stops before the failed item, got %s", wm)

	// The sender is readable on the next fetch.
	h.source.items[1] = csvItem(1, base, sender, "export", "order_id\n1\n")

	summary, err = svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ItemsConsidered)
	assert.Equal(t, 0, summary.ItemsFailed)
	assert.Equal(t, 0, summary.ItemsSkipped)
	require.Len(t, h.syncer.tables, 2)
	assert.Len(t, h.syncer.tables[1].Rows, 2)

	wm = readWatermark(t, h)
	require.NotNil(t, wm)
	assert.True(t, wm.Equal(base.Add(time.Hour)))
}

func TestRun_WatermarkNeverRegresses(t *testing.T) {
	h := newHarness(t,
		csvItem(2, base.Add(time.Hour+300*time.Millisecond), sender, "export", "order_id\n2\n"),
		csvItem(1, base.Add(-time.Hour), sender, "export", "order_id\n1\n"),
	)
	require.NoError(t, h.watermark.Write(context.Background(), base.Add(time.Hour)))

	summary, err := h.service(Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.ItemsConsidered)
	assert.Equal(t, 2, summary.ItemsSkipped, "an item in the watermark's second counts as processed")

	wm := readWatermark(t, h)
	require.NotNil(t, wm)
	assert.True(t, wm.Equal(base.Add(time.Hour)))
}

func TestRun_ParseFailureIsolatedPerFile(t *testing.T) {
	item := csvItem(1, base, sender, "export", "order_id\n1\n")
	item.Attachments = append(item.Attachments, models.AttachmentBlob{Name: "broken.xlsx", Content: []byte("not a workbook")})
	h := newHarness(t, item)

	summary, err := h.service(Options{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.ItemsConsidered)
	assert.Equal(t, 2, summary.FilesStored)
	assert.Equal(t, 1, summary.FilesParsed)
	require.Len(t, summary.FilesFailed, 1)
	assert.Contains(t, summary.FilesFailed[0].Path, "broken")
	require.Len(t, h.syncer.tables, 1)
	assert.NotNil(t, readWatermark(t, h))
}

func TestRun_StoreFailureExcludesItem(t *testing.T) {
	h := newHarness(t, csvItem(1, base, sender, "export", "order_id\n1\n"))
	h.sink = failingSink{}

	summary, err := h.service(Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.ItemsConsidered)
	assert.Equal(t, 1, summary.ItemsFailed)
	assert.Empty(t, h.syncer.tables)
	assert.Nil(t, readWatermark(t, h))
}

func TestRun_TableErrorsAreReported(t *testing.T) {
	h := newHarness(t, csvItem(1, base, sender, "export", "order_id\n1\n"))
	h.syncer.errs = map[string]error{parser.CSVTableName: errors.New("permission denied for table csv")}

	summary, err := h.service(Options{}).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Tables, 1)
	assert.Equal(t, enum.TableConditionUnavailable, summary.Tables[0].Condition)
	assert.Equal(t, []string{parser.CSVTableName}, summary.FailedTables)
	assert.NotNil(t, readWatermark(t, h))
}

func TestRun_NotifierFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, csvItem(1, base, sender, "export", "order_id\n1\n"))
	h.notifier = &mockNotifier{}
	h.notifier.On("Notify", mock.Anything, mock.Anything).Return(errors.New("smtp down")).Once()

	summary, err := h.service(Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ItemsConsidered)
	assert.NotNil(t, readWatermark(t, h))
	h.notifier.AssertExpectations(t)
}

func TestRun_ConnectivityAbortsRun(t *testing.T) {
	unreachable := mserrors.Connectivity(errors.New("connection refused"), "destination unreachable")

	cases := map[string]func(h *harness){
		"mail source": func(h *harness) { h.source.err = errors.New("dial tcp: i/o timeout") },
		"destination": func(h *harness) { h.destination.pingErr = unreachable },
		"upsert":      func(h *harness) { h.syncer.errs = map[string]error{parser.CSVTableName: unreachable} },
	}
	for name, breakIt := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, csvItem(1, base, sender, "export", "order_id\n1\n"))
			breakIt(h)

			_, err := h.service(Options{}).Run(context.Background())
			require.Error(t, err)
			assert.True(t, mserrors.IsConnectivity(err))
			assert.Nil(t, readWatermark(t, h))
			h.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
			h.runs.AssertCalled(t, "Create", mock.Anything, mock.MatchedBy(func(run *models.SyncRun) bool {
				return run.Status == enum.RunStatusAborted && run.Error != ""
			}))
		})
	}
}

func workbook(t *testing.T, sheet string, rows ...[]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName("Sheet1", sheet))
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow(sheet, cell, &r))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestRun_EndToEndWithSqlite(t *testing.T) {
	workDir := t.TempDir()
	db, err := gorm.Open(sqlite.Open(filepath.Join(workDir, "dest.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})
	require.NoError(t, repository.MigrateDB(db))
	require.NoError(t, db.Exec(`CREATE TABLE inventory (sku TEXT PRIMARY KEY, qty INTEGER NOT NULL)`).Error)
	require.NoError(t, db.Exec(`INSERT INTO inventory (sku, qty) VALUES ('A-1', 1)`).Error)

	repos := repository.InitRepositories(db)
	log := logger.NewNopLogger()
	source := &fakeSource{items: []*models.RawItem{
		{UID: 2, Timestamp: base.Add(time.Hour), Sender: sender, Subject: "stock", Attachments: []models.AttachmentBlob{
			{Name: "b.xlsx", Content: workbook(t, "INVENTORY", []interface{}{"SKU", "Qty"}, []interface{}{"B-2", 7})},
		}},
		{UID: 1, Timestamp: base, Sender: sender, Subject: "stock", Attachments: []models.AttachmentBlob{
			{Name: "a.xlsx", Content: workbook(t, "Inventory", []interface{}{"sku", "QTY"}, []interface{}{"A-1", 5})},
		}},
	}}
	notifier := &mockNotifier{}
	notifier.On("Notify", mock.Anything, mock.Anything).Return(nil).Once()

	svc := NewSyncService(Options{
		IdentifierColumn: "sku",
		DownloadDir:      filepath.Join(workDir, "file_downloads"),
		Mode:             enum.SyncModeUpsert,
	}, Dependencies{
		Source:      source,
		Sink:        storage.NewLocalBlobSink(log),
		Parser:      parser.NewParserService(log),
		Syncer:      upsert.NewUpsertService(repos.Destination, enum.SyncModeUpsert, log),
		Watermark:   watermark.NewDatabaseStore("inbox", repos.SyncStateRepository),
		Destination: repos.Destination,
		Runs:        repos.SyncRunRepository,
		Notifier:    notifier,
	}, log)

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Inserted)
	assert.Equal(t, 1, summary.Updated)
	assert.Empty(t, summary.FailedTables)

	var qty int
	require.NoError(t, db.Raw(`SELECT qty FROM inventory WHERE sku = 'A-1'`).Scan(&qty).Error)
	assert.Equal(t, 5, qty)
	require.NoError(t, db.Raw(`SELECT qty FROM inventory WHERE sku = 'B-2'`).Scan(&qty).Error)
	assert.Equal(t, 7, qty)

	state, err := repos.SyncStateRepository.GetSyncState(context.Background(), "inbox")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, utils.FormatWatermark(base.Add(time.Hour)), utils.FormatWatermark(state.Watermark))

	latest, err := repos.SyncRunRepository.GetLatest(context.Background())
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, summary.RunID, latest.RunID)
	assert.Equal(t, enum.RunStatusCompleted, latest.Status)
	notifier.AssertExpectations(t)
}
