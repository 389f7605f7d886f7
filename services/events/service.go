package events

import (
	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/internal/logger"
)

type EventsService struct {
	Publisher *RabbitMQPublisher
}

// NewEventsService connects the run publisher. It returns nil without error
// when no broker is configured.
func NewEventsService(cfg *config.EventsConfig, log logger.Logger) (*EventsService, error) {
	if cfg.RabbitMQURL == "" {
		return nil, nil
	}

	publisher, err := NewRabbitMQPublisher(cfg.RabbitMQURL, log, PublisherConfig{
		Exchange:   cfg.Exchange,
		RoutingKey: cfg.RoutingKey,
	})
	if err != nil {
		return nil, err
	}

	return &EventsService{
		Publisher: publisher,
	}, nil
}

func (s *EventsService) Close() error {
	if s == nil || s.Publisher == nil {
		return nil
	}
	return s.Publisher.Close()
}
