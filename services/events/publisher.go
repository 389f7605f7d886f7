package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/rabbitmq/amqp091-go"

	"github.com/customeros/mailsync/dto"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
)

const (
	ExchangeDeadLetter = "mailsync-dead-letter"

	QueueSyncRuns = "mailsync-sync-runs"
	DLQSyncRuns   = QueueSyncRuns + "-dlq"

	RoutingKeyDeadLetter = "dead-letter"

	EntityTypeSyncRun = "SYNC_RUN"
	AppSource         = "mailsync"

	DefaultMessageTTL     = 240 * time.Hour // after TTL message moves to DLQ
	DefaultMaxRetries     = 3
	DefaultPublishTimeout = 5 * time.Second
)

type PublisherConfig struct {
	Exchange       string
	RoutingKey     string
	MessageTTL     time.Duration
	MaxRetries     int
	PublishTimeout time.Duration
}

type RabbitMQPublisher struct {
	connection      *amqp091.Connection
	connectionMutex sync.Mutex
	publishChannel  *amqp091.Channel
	publishMutex    sync.Mutex
	url             string
	logger          logger.Logger
	confirms        chan amqp091.Confirmation
	config          PublisherConfig
}

var (
	_ interfaces.EventPublisher = (*RabbitMQPublisher)(nil)
	_ interfaces.Notifier       = (*RabbitMQPublisher)(nil)
)

func NewRabbitMQPublisher(rabbitmqURL string, logger logger.Logger, config PublisherConfig) (*RabbitMQPublisher, error) {
	if config.Exchange == "" {
		return nil, errors.New("exchange is required")
	}
	if config.MessageTTL == 0 {
		config.MessageTTL = DefaultMessageTTL
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = DefaultMaxRetries
	}
	if config.PublishTimeout == 0 {
		config.PublishTimeout = DefaultPublishTimeout
	}

	publisher := &RabbitMQPublisher{
		url:    rabbitmqURL,
		logger: logger,
		config: config,
	}

	if err := publisher.connect(); err != nil {
		return nil, err
	}
	return publisher, nil
}

// PublishRunSummary publishes the summary of a finished run on the
// configured exchange and routing key.
func (r *RabbitMQPublisher) PublishRunSummary(ctx context.Context, summary *models.RunSummary) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RabbitMQPublisher.PublishRunSummary")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagRunId(span, summary.RunID)

	event := newRunEvent(span, summary)
	tracing.LogObjectAsJson(span, "event", event)

	err := r.publishMessageOnExchange(ctx, event, r.config.Exchange, r.config.RoutingKey)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	span.LogKV("result.published", true)
	return nil
}

// Notify lets the publisher act as a run notifier.
func (r *RabbitMQPublisher) Notify(ctx context.Context, summary *models.RunSummary) error {
	return r.PublishRunSummary(ctx, summary)
}

func newRunEvent(span opentracing.Span, summary *models.RunSummary) dto.Event {
	var traceId string
	if carrier, err := tracing.InjectTextMapCarrier(span.Context()); err == nil {
		traceId = carrier["uber-trace-id"]
	}

	return dto.Event{
		Event: dto.EventDetails{
			Id:         utils.GenerateNanoIDWithPrefix("event", 21),
			EntityId:   summary.RunID,
			EntityType: EntityTypeSyncRun,
			EventType:  "SyncRunCompleted",
			Data:       toSyncRunCompleted(summary),
		},
		Metadata: dto.EventMetadata{
			UberTraceId: traceId,
			AppSource:   AppSource,
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
		},
	}
}

func toSyncRunCompleted(summary *models.RunSummary) dto.SyncRunCompleted {
	failedTables := summary.FailedTables
	if failedTables == nil {
		failedTables = []string{}
	}
	return dto.SyncRunCompleted{
		RunID:           summary.RunID,
		Mode:            summary.Mode.String(),
		StartedAt:       summary.StartedAt,
		FinishedAt:      summary.FinishedAt,
		ItemsConsidered: summary.ItemsConsidered,
		FilesParsed:     summary.FilesParsed,
		FilesFailed:     len(summary.FilesFailed),
		Inserted:        summary.Inserted,
		Updated:         summary.Updated,
		FailedRowCount:  summary.FailedRowCount,
		FailedTables:    failedTables,
		Watermark:       summary.Watermark,
	}
}

func (r *RabbitMQPublisher) setupPublishChannel() error {
	channel, err := r.connection.Channel()
	if err != nil {
		return errors.Wrap(err, "Failed to open publish channel")
	}

	// Enable publisher confirms
	err = channel.Confirm(false)
	if err != nil {
		channel.Close()
		return errors.Wrap(err, "Failed to enable publisher confirms")
	}

	r.confirms = channel.NotifyPublish(make(chan amqp091.Confirmation, 1))
	r.publishChannel = channel
	return nil
}

func (r *RabbitMQPublisher) setupExchangesAndQueues() error {
	channel, err := r.connection.Channel()
	if err != nil {
		return errors.Wrap(err, "Failed to open channel for exchange/queue setup")
	}
	defer channel.Close()

	err = channel.ExchangeDeclare(
		ExchangeDeadLetter,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return errors.Wrap(err, "Failed to declare dead letter exchange")
	}

	err = channel.ExchangeDeclare(
		r.config.Exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return errors.Wrapf(err, "Failed to declare exchange %s", r.config.Exchange)
	}

	if err = r.declareQueueWithDLQ(channel, QueueSyncRuns, DLQSyncRuns); err != nil {
		return err
	}
	err = channel.QueueBind(
		QueueSyncRuns,
		r.config.RoutingKey,
		r.config.Exchange,
		false,
		nil,
	)
	if err != nil {
		return errors.Wrapf(err, "Failed to bind queue %s to exchange %s", QueueSyncRuns, r.config.Exchange)
	}

	return nil
}

func (r *RabbitMQPublisher) declareQueueWithDLQ(channel *amqp091.Channel, queueName string, dlqName string) error {
	_, err := channel.QueueDeclare(
		dlqName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return errors.Wrapf(err, "Failed to declare DLQ %s", dlqName)
	}

	err = channel.QueueBind(
		dlqName,
		RoutingKeyDeadLetter,
		ExchangeDeadLetter,
		false,
		nil,
	)
	if err != nil {
		return errors.Wrapf(err, "Failed to bind DLQ %s to exchange", dlqName)
	}

	_, err = channel.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		queueArgs(r.config.MessageTTL),
	)
	if err != nil {
		return errors.Wrapf(err, "Failed to declare queue %s", queueName)
	}

	return nil
}

func queueArgs(ttl time.Duration) amqp091.Table {
	return amqp091.Table{
		"x-dead-letter-exchange":    ExchangeDeadLetter,
		"x-dead-letter-routing-key": RoutingKeyDeadLetter,
		"x-message-ttl":             ttl.Milliseconds(),
	}
}

func (r *RabbitMQPublisher) connect() error {
	r.connectionMutex.Lock()
	defer r.connectionMutex.Unlock()

	var err error
	r.connection, err = amqp091.Dial(r.url)
	if err != nil {
		return errors.Wrap(err, "Failed to connect to RabbitMQ")
	}

	err = r.setupExchangesAndQueues()
	if err != nil {
		return errors.Wrap(err, "Failed to setup exchanges and queues")
	}

	err = r.setupPublishChannel()
	if err != nil {
		return errors.Wrap(err, "Failed to setup publish channel")
	}

	return nil
}

// ensureConnectionAndChannel reconnects lazily; a run publishes at most once,
// so there is no background reconnect loop.
func (r *RabbitMQPublisher) ensureConnectionAndChannel() error {
	if r.connection == nil || r.connection.IsClosed() {
		if err := r.connect(); err != nil {
			return errors.Wrap(err, "Failed to establish connection")
		}
	}

	if r.publishChannel == nil || r.publishChannel.IsClosed() {
		if err := r.setupPublishChannel(); err != nil {
			return errors.Wrap(err, "Failed to establish channel")
		}
	}

	return nil
}

func (r *RabbitMQPublisher) publishMessageOnExchange(ctx context.Context, message interface{}, exchange, routingKey string) error {
	var lastErr error
	for attempt := 0; attempt < r.config.MaxRetries; attempt++ {
		lastErr = r.publishWithConfirm(ctx, message, exchange, routingKey)
		if lastErr == nil {
			return nil
		}

		r.logger.Warnf("Publish attempt %d failed: %v", attempt+1, lastErr)
		if attempt < r.config.MaxRetries-1 {
			time.Sleep(time.Millisecond * 100 * time.Duration(attempt+1))
		}
	}

	return errors.Wrap(lastErr, "Failed to publish message after all retries")
}

func (r *RabbitMQPublisher) publishWithConfirm(ctx context.Context, message interface{}, exchange, routingKey string) error {
	r.publishMutex.Lock()
	defer r.publishMutex.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := r.ensureConnectionAndChannel(); err != nil {
		return err
	}

	jsonBody, err := json.Marshal(message)
	if err != nil {
		return errors.Wrap(err, "Failed to marshal message")
	}

	err = r.publishChannel.PublishWithContext(
		ctx,
		exchange,
		routingKey,
		true,  // mandatory - ensure message is routed
		false, // immediate
		amqp091.Publishing{
			DeliveryMode: amqp091.Persistent,
			ContentType:  "application/json",
			Body:         jsonBody,
			Timestamp:    time.Now(),
		})
	if err != nil {
		return errors.Wrap(err, "Failed to publish message")
	}

	select {
	case confirm := <-r.confirms:
		if !confirm.Ack {
			return errors.New("Message was not confirmed by server")
		}
	case <-time.After(r.config.PublishTimeout):
		return errors.New("Publish confirmation timeout")
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}

// Close gracefully shuts down the publisher
func (r *RabbitMQPublisher) Close() error {
	r.connectionMutex.Lock()
	defer r.connectionMutex.Unlock()

	var err error
	if r.publishChannel != nil {
		err = r.publishChannel.Close()
		if err != nil {
			r.logger.Errorf("Error closing publish channel: %v", err)
		}
	}

	if r.connection != nil {
		if closeErr := r.connection.Close(); closeErr != nil {
			r.logger.Errorf("Error closing connection: %v", closeErr)
			if err == nil {
				err = closeErr
			}
		}
	}

	return err
}
