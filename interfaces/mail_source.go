package interfaces

import (
	"context"
	"time"

	"github.com/customeros/mailsync/internal/models"
)

// MailSource lists candidate items, newest first. since is a search hint
// only; callers re-apply the exact watermark comparison.
type MailSource interface {
	ListCandidateItems(ctx context.Context, since *time.Time) ([]*models.RawItem, error)
	Close() error
}
