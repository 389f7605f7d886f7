package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/dto"
	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
)

func TestNewRunEvent(t *testing.T) {
	wm := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	summary := &models.RunSummary{
		RunID:           "run_1",
		Mode:            enum.SyncModeReplace,
		ItemsConsidered: 3,
		FilesFailed:     []models.FileFailure{{Path: "a.csv"}},
		Watermark:       &wm,
	}
	summary.AddResult(&models.UpsertResult{Table: "orders", Inserted: 4})

	span := opentracing.NoopTracer{}.StartSpan("test")
	event := newRunEvent(span, summary)

	assert.Equal(t, "run_1", event.Event.EntityId)
	assert.Equal(t, EntityTypeSyncRun, event.Event.EntityType)
	assert.Equal(t, "SyncRunCompleted", event.Event.EventType)
	assert.Regexp(t, `^event_[a-z0-9]{21}$`, event.Event.Id)
	assert.Equal(t, AppSource, event.Metadata.AppSource)

	data, ok := event.Event.Data.(dto.SyncRunCompleted)
	require.True(t, ok)
	assert.Equal(t, "replace", data.Mode)
	assert.Equal(t, 4, data.Inserted)
	assert.Equal(t, 1, data.FilesFailed)
	assert.Equal(t, []string{}, data.FailedTables)

	raw, err := json.Marshal(event)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"failedTables":[]`)
	assert.Contains(t, string(raw), `"watermark":"2024-05-01T09:00:00Z"`)
}

func TestQueueArgs(t *testing.T) {
	args := queueArgs(time.Minute)
	assert.Equal(t, ExchangeDeadLetter, args["x-dead-letter-exchange"])
	assert.Equal(t, int64(60000), args["x-message-ttl"])
}

func TestNewRabbitMQPublisher_RequiresExchange(t *testing.T) {
	_, err := NewRabbitMQPublisher("amqp://localhost", logger.NewNopLogger(), PublisherConfig{})
	assert.Error(t, err)
}

func TestNewEventsService_Disabled(t *testing.T) {
	svc, err := NewEventsService(&config.EventsConfig{}, logger.NewNopLogger())
	require.NoError(t, err)
	assert.Nil(t, svc)
	assert.NoError(t, svc.Close())
}
