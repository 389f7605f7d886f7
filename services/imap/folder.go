package imap

import (
	"context"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
)

// fullMessageSection fetches the raw message without setting \Seen.
var fullMessageSection = &imap.BodySectionName{Peek: true}

func (s *IMAPService) selectFolder(ctx context.Context, c *client.Client) (*imap.MailboxStatus, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "IMAPService.selectFolder")
	defer span.Finish()
	tracing.TagComponentService(span)
	span.SetTag("folder.name", s.cfg.Folder)

	c.Timeout = commandTimeout
	mbox, err := c.Select(s.cfg.Folder, true)
	c.Timeout = 0
	if err != nil {
		err = mserrors.Connectivity(err, "failed to select folder "+s.cfg.Folder)
		tracing.TraceErr(span, err)
		return nil, err
	}

	span.SetTag("messages.total", mbox.Messages)
	s.log.Debugf("[%s] Selected folder, %d messages", s.cfg.Folder, mbox.Messages)
	return mbox, nil
}

// searchSince returns the UIDs of messages received on or after the day of
// since, or every UID when since is nil. IMAP SINCE has day granularity.
func (s *IMAPService) searchSince(ctx context.Context, c *client.Client, since *time.Time) ([]uint32, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "IMAPService.searchSince")
	defer span.Finish()
	tracing.TagComponentService(span)

	criteria := searchCriteria(since)

	c.Timeout = commandTimeout
	uids, err := c.UidSearch(criteria)
	c.Timeout = 0
	if err != nil {
		err = mserrors.Connectivity(err, "failed to search folder "+s.cfg.Folder)
		tracing.TraceErr(span, err)
		return nil, err
	}
	return uids, nil
}

func searchCriteria(since *time.Time) *imap.SearchCriteria {
	criteria := imap.NewSearchCriteria()
	if since != nil {
		// one day of slack covers the server's timezone
		criteria.Since = since.UTC().AddDate(0, 0, -1).Truncate(24 * time.Hour)
	}
	return criteria
}

// fetchItems downloads the messages in batches. Messages that cannot be
// decoded are still returned, with DecodeErr set.
func (s *IMAPService) fetchItems(ctx context.Context, c *client.Client, uids []uint32) ([]*models.RawItem, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPService.fetchItems")
	defer span.Finish()
	tracing.TagComponentService(span)

	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchInternalDate,
		imap.FetchUid,
		fullMessageSection.FetchItem(),
	}

	result := make([]*models.RawItem, 0, len(uids))
	for start := 0; start < len(uids); start += fetchBatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := start + fetchBatchSize
		if end > len(uids) {
			end = len(uids)
		}

		seqSet := new(imap.SeqSet)
		seqSet.AddNum(uids[start:end]...)

		messages := make(chan *imap.Message, fetchBatchSize)
		done := make(chan error, 1)

		c.Timeout = fetchTimeout
		go func() {
			done <- c.UidFetch(seqSet, items, messages)
		}()

		for msg := range messages {
			item := toRawItem(msg)
			if item.DecodeErr != nil {
				s.log.Warnf("[%s] Unable to decode message uid %d: %v", s.cfg.Folder, msg.Uid, item.DecodeErr)
			}
			result = append(result, item)
		}
		c.Timeout = 0

		if err := <-done; err != nil {
			err = mserrors.Connectivity(errors.Wrapf(err, "uids %d-%d", start+1, end), "failed to fetch messages")
			tracing.TraceErr(span, err)
			return nil, err
		}
	}

	span.SetTag("messages.fetched", len(result))
	return result, nil
}
