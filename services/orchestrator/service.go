package orchestrator

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/enum"
	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
	"github.com/customeros/mailsync/services/merger"
	"github.com/customeros/mailsync/services/parser"
)

// Options are the per-deployment inputs of a run.
type Options struct {
	SenderFilter     string
	SubjectFilter    string
	IdentifierColumn string
	DownloadDir      string
	Mode             enum.SyncMode
}

// FileParser turns one stored file into normalized tables.
type FileParser interface {
	ParseFile(ctx context.Context, path string) ([]models.NormalizedTable, error)
}

type Dependencies struct {
	Source      interfaces.MailSource
	Sink        interfaces.BlobSink
	Parser      FileParser
	Syncer      interfaces.TableSyncer
	Watermark   interfaces.WatermarkStore
	Destination interfaces.Destination
	// Runs is optional; when nil runs are not persisted.
	Runs     interfaces.SyncRunRepository
	Notifier interfaces.Notifier
}

type SyncService struct {
	opts Options
	deps Dependencies
	log  logger.Logger
}

func NewSyncService(opts Options, deps Dependencies, log logger.Logger) *SyncService {
	return &SyncService{opts: opts, deps: deps, log: log}
}

var _ interfaces.SyncService = (*SyncService)(nil)

// run holds the state of one Run call.
type run struct {
	summary      *models.RunSummary
	watermark    *time.Time
	newest       *time.Time
	// oldestFailed is the timestamp of the oldest item that failed and must
	// be retried by the next run.
	oldestFailed *time.Time
	tables       []models.NormalizedTable
	sinkReady    bool
	log          logger.Logger
}

// Run executes one end-to-end synchronization. The returned error is non-nil
// only when the run was aborted, in which case the watermark is untouched.
func (s *SyncService) Run(ctx context.Context) (*models.RunSummary, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SyncService.Run")
	defer span.Finish()
	tracing.TagComponentService(span)

	r := &run{
		summary: &models.RunSummary{
			RunID:     utils.GenerateNanoIDWithPrefix("run", 12),
			StartedAt: time.Now().UTC(),
			Mode:      s.opts.Mode,
		},
	}
	r.log = s.log.With(zap.String("run_id", r.summary.RunID))
	tracing.TagRunId(span, r.summary.RunID)
	r.log.Infof("Starting sync run in %s mode", s.opts.Mode)

	if err := s.execute(ctx, r); err != nil {
		tracing.TraceErr(span, err)
		r.summary.FinishedAt = time.Now().UTC()
		r.log.Errorf("Sync run aborted: %v", err)
		s.persistRun(ctx, r, enum.RunStatusAborted, err)
		return r.summary, err
	}

	r.summary.FinishedAt = time.Now().UTC()
	s.persistRun(ctx, r, enum.RunStatusCompleted, nil)

	if s.deps.Notifier != nil {
		if err := s.deps.Notifier.Notify(ctx, r.summary); err != nil {
			tracing.TraceErr(span, err)
			r.log.Errorf("Failed to send sync notification: %v", err)
		}
	}

	r.log.Infof("Sync run finished: %d considered, %d skipped, %d failed items; %d inserted, %d updated, %d failed rows",
		r.summary.ItemsConsidered, r.summary.ItemsSkipped, r.summary.ItemsFailed,
		r.summary.Inserted, r.summary.Updated, r.summary.FailedRowCount)
	return r.summary, nil
}

func (s *SyncService) execute(ctx context.Context, r *run) error {
	watermark, err := s.deps.Watermark.Read(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to read watermark")
	}
	r.watermark = watermark
	r.summary.Watermark = watermark
	if watermark != nil {
		r.log.Infof("Processing items newer than %s", utils.FormatWatermark(*watermark))
	}

	if err := s.deps.Destination.Ping(ctx); err != nil {
		return err
	}

	items, err := s.deps.Source.ListCandidateItems(ctx, watermark)
	if err != nil {
		if !mserrors.IsConnectivity(err) {
			err = mserrors.Connectivity(err, "failed to list candidate items")
		}
		return err
	}
	r.log.Infof("Mail source returned %d candidate items", len(items))

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.processItem(ctx, r, item); err != nil {
			if mserrors.IsConnectivity(err) {
				return err
			}
			r.summary.ItemsFailed++
			r.recordFailure(item)
			r.log.Warnf("Skipping item uid %d from %q: %v", item.UID, item.Sender, err)
		}
	}

	if err := s.syncTables(ctx, r); err != nil {
		return err
	}

	return s.advanceWatermark(ctx, r)
}

// processItem filters one item and, when it passes, stores and parses its
// attachments. Its tables and timestamp are only committed to the run once
// every attachment was stored.
func (s *SyncService) processItem(ctx context.Context, r *run, item *models.RawItem) error {
	if !utils.IsAfterWatermark(item.Timestamp, r.watermark) {
		r.summary.ItemsSkipped++
		r.log.Debugf("Skipping item uid %d at or before the watermark: %s", item.UID, item.Timestamp)
		return nil
	}
	if item.DecodeErr != nil {
		return errors.Wrap(mserrors.ErrTransientItem, item.DecodeErr.Error())
	}

	address, ok := utils.ExtractSenderAddress(item.Sender)
	if !ok {
		return errors.Wrapf(mserrors.ErrTransientItem, "%v: %q", mserrors.ErrSenderInvalid, item.Sender)
	}
	if !utils.SenderMatches(address, s.opts.SenderFilter) {
		r.summary.ItemsSkipped++
		r.log.Debugf("Skipping sender mismatch: expected %s, got %s", s.opts.SenderFilter, address)
		return nil
	}
	if !utils.SubjectMatches(item.Subject, s.opts.SubjectFilter) {
		r.summary.ItemsSkipped++
		r.log.Debugf("Skipping subject mismatch: %s", item.Subject)
		return nil
	}

	var stored []models.StoredFile
	for _, attachment := range item.Attachments {
		if !parser.IsTabular(attachment.Name) {
			r.log.Debugf("Ignoring non tabular attachment %s", attachment.Name)
			continue
		}
		if err := s.ensureSink(ctx, r); err != nil {
			return err
		}
		attachment.ItemTimestamp = item.Timestamp
		file, err := s.deps.Sink.Store(ctx, attachment, s.opts.DownloadDir)
		if err != nil {
			return errors.Wrapf(mserrors.ErrTransientItem, "failed to store %s: %v", attachment.Name, err)
		}
		stored = append(stored, file)
	}

	var tables []models.NormalizedTable
	parsed := 0
	for _, file := range stored {
		fileTables, err := s.deps.Parser.ParseFile(ctx, file.Path)
		if err != nil {
			r.log.Errorf("Failed to parse %s (attachment %s): %v", file.Path, file.OriginalName, err)
			r.summary.FilesFailed = append(r.summary.FilesFailed, models.FileFailure{Path: file.Path, Reason: err.Error()})
			continue
		}
		parsed++
		tables = append(tables, fileTables...)
	}

	r.tables = append(r.tables, tables...)
	r.summary.ItemsConsidered++
	r.summary.FilesStored += len(stored)
	r.summary.FilesParsed += parsed
	if r.newest == nil || item.Timestamp.After(*r.newest) {
		ts := item.Timestamp
		r.newest = &ts
	}
	r.log.Infof("Processed item uid %d from %s: %d file(s), %d table(s)", item.UID, address, len(stored), len(tables))
	return nil
}

func (r *run) recordFailure(item *models.RawItem) {
	if item.Timestamp.IsZero() {
		return
	}
	if r.oldestFailed == nil || item.Timestamp.Before(*r.oldestFailed) {
		ts := item.Timestamp
		r.oldestFailed = &ts
	}
}

// ensureSink clears the download directory before the run's first store.
func (s *SyncService) ensureSink(ctx context.Context, r *run) error {
	if r.sinkReady {
		return nil
	}
	if err := s.deps.Sink.Reset(ctx, s.opts.DownloadDir); err != nil {
		return errors.Wrap(mserrors.ErrTransientItem, err.Error())
	}
	r.sinkReady = true
	return nil
}

// syncTables merges the run's tables and upserts each in first-seen order.
func (s *SyncService) syncTables(ctx context.Context, r *run) error {
	merged := merger.Merge(r.tables)
	for _, table := range merged.All() {
		result, err := s.deps.Syncer.Sync(ctx, table, s.opts.IdentifierColumn)
		if err != nil {
			if mserrors.IsConnectivity(err) {
				return err
			}
			r.log.Errorf("Table %s could not be synced: %v", table.Name, err)
			result = &models.UpsertResult{
				Table:     table.Name,
				Condition: enum.TableConditionUnavailable,
				Detail:    err.Error(),
			}
		}
		r.summary.AddResult(result)
	}
	return nil
}

// advanceWatermark writes the newest considered item time, never moving the
// watermark backwards and never writing when nothing was considered. When an
// item failed, the watermark stops one second before it so the next run
// picks it up again; considered items after it are synced again, which the
// upsert tolerates.
func (s *SyncService) advanceWatermark(ctx context.Context, r *run) error {
	if r.summary.ItemsConsidered == 0 || r.newest == nil {
		r.log.Info("No items considered, watermark unchanged")
		return nil
	}

	next := utils.TruncateToSecond(*r.newest)
	if r.oldestFailed != nil {
		limit := utils.TruncateToSecond(*r.oldestFailed).Add(-time.Second)
		if next.After(limit) {
			r.log.Warnf("Holding watermark at %s, a failed item from %s will be retried",
				utils.FormatWatermark(limit), utils.FormatWatermark(*r.oldestFailed))
			next = limit
		}
	}
	if r.watermark != nil && !next.After(utils.TruncateToSecond(*r.watermark)) {
		return nil
	}

	if err := s.deps.Watermark.Write(ctx, next); err != nil {
		return errors.Wrap(err, "failed to write watermark")
	}
	r.summary.Watermark = &next
	r.log.Infof("Watermark advanced to %s", utils.FormatWatermark(next))
	return nil
}

func (s *SyncService) persistRun(ctx context.Context, r *run, status enum.RunStatus, runErr error) {
	if s.deps.Runs == nil {
		return
	}
	if err := s.deps.Runs.Create(ctx, toSyncRun(r.summary, status, runErr)); err != nil {
		r.log.Errorf("Failed to record sync run: %v", err)
	}
}

func toSyncRun(summary *models.RunSummary, status enum.RunStatus, runErr error) *models.SyncRun {
	tables := make([]map[string]any, 0, len(summary.Tables))
	for _, t := range summary.Tables {
		tables = append(tables, map[string]any{
			"table":     t.Table,
			"inserted":  t.Inserted,
			"updated":   t.Updated,
			"failed":    len(t.FailedRows),
			"condition": t.Condition.String(),
		})
	}

	run := &models.SyncRun{
		RunID:           summary.RunID,
		Status:          status,
		StartedAt:       summary.StartedAt,
		FinishedAt:      summary.FinishedAt,
		ItemsConsidered: summary.ItemsConsidered,
		ItemsSkipped:    summary.ItemsSkipped,
		ItemsFailed:     summary.ItemsFailed,
		FilesParsed:     summary.FilesParsed,
		FilesFailed:     len(summary.FilesFailed),
		Inserted:        summary.Inserted,
		Updated:         summary.Updated,
		FailedRows:      summary.FailedRowCount,
		FailedTables:    summary.FailedTables,
		Watermark:       summary.Watermark,
		Details: models.JSONMap{
			"mode":        summary.Mode.String(),
			"tables":      tables,
			"filesStored": summary.FilesStored,
			"filesFailed": summary.FilesFailed,
		},
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	return run
}
