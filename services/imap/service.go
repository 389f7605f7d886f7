package imap

import (
	"context"
	"sort"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
)

const (
	dialTimeout    = 30 * time.Second
	commandTimeout = 30 * time.Second
	fetchTimeout   = 120 * time.Second
	logoutTimeout  = 5 * time.Second
	fetchBatchSize = 20
)

// IMAPService is the mail source of a single mailbox folder. Every call to
// ListCandidateItems opens its own connection and logs out afterwards.
type IMAPService struct {
	cfg *config.ImapConfig
	log logger.Logger
}

func NewIMAPService(cfg *config.ImapConfig, log logger.Logger) *IMAPService {
	return &IMAPService{cfg: cfg, log: log}
}

var _ interfaces.MailSource = (*IMAPService)(nil)

// ListCandidateItems returns the messages of the configured folder received
// on or after the day of since, newest first. When more than MaxItems match,
// only the oldest MaxItems are returned and the rest are left for the next
// run. Messages are opened read-only and never marked as seen.
func (s *IMAPService) ListCandidateItems(ctx context.Context, since *time.Time) ([]*models.RawItem, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPService.ListCandidateItems")
	defer span.Finish()
	tracing.TagComponentService(span)
	span.SetTag("folder.name", s.cfg.Folder)

	c, err := s.connect(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	defer s.disconnect(c)

	if _, err := s.selectFolder(ctx, c); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	uids, err := s.searchSince(ctx, c, since)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	span.SetTag("messages.found", len(uids))
	if len(uids) == 0 {
		s.log.Infof("[%s] No candidate messages", s.cfg.Folder)
		return nil, nil
	}

	total := len(uids)
	uids = oldestUIDs(uids, s.cfg.MaxItems)
	if len(uids) < total {
		s.log.Warnf("[%s] Limiting run to the oldest %d of %d messages, the rest follow on the next run", s.cfg.Folder, len(uids), total)
	}

	items, err := s.fetchItems(ctx, c, uids)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	sortNewestFirst(items)
	span.SetTag("messages.fetched", len(items))
	s.log.Infof("[%s] Fetched %d candidate messages", s.cfg.Folder, len(items))
	return items, nil
}

// Close is a no-op, connections do not outlive a ListCandidateItems call.
func (s *IMAPService) Close() error {
	return nil
}

// oldestUIDs sorts uids ascending and keeps at most max of them, so the
// watermark of a capped run never passes a message that was left out. A max
// of zero or less keeps everything.
func oldestUIDs(uids []uint32, max int) []uint32 {
	sorted := make([]uint32, len(uids))
	copy(sorted, uids)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})
	if max > 0 && len(sorted) > max {
		return sorted[:max]
	}
	return sorted
}

func sortNewestFirst(items []*models.RawItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Timestamp.Equal(items[j].Timestamp) {
			return items[i].UID > items[j].UID
		}
		return items[i].Timestamp.After(items[j].Timestamp)
	})
}
