package interfaces

import (
	"context"

	"github.com/customeros/mailsync/internal/models"
)

type Notifier interface {
	Notify(ctx context.Context, summary *models.RunSummary) error
}

type EventPublisher interface {
	PublishRunSummary(ctx context.Context, summary *models.RunSummary) error
	Close() error
}
