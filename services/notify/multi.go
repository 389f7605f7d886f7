package notify

import (
	"context"
	stderrors "errors"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
)

// Multi delivers a summary to every notifier, even when an earlier one
// fails. The returned error joins all failures.
type Multi []interfaces.Notifier

func (m Multi) Notify(ctx context.Context, summary *models.RunSummary) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, summary); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// Log writes the summary to the application log.
type Log struct {
	Logger logger.Logger
}

func (l Log) Notify(_ context.Context, s *models.RunSummary) error {
	l.Logger.Infof("Sync run %s: %d updated, %d inserted, %d failed rows, failed tables %v",
		s.RunID, s.Updated, s.Inserted, s.FailedRowCount, s.FailedTables)
	return nil
}
