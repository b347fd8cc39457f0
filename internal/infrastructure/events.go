package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/sheet-tracker/backend/internal/domain"
)

// MessageWriter is the subset of *kafka.Writer the publisher needs
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// CatalogEventPublisher forwards committed catalog changes to a Kafka topic.
// Publishing is best effort: a failed write is logged and never fails the change.
type CatalogEventPublisher struct {
	writer  MessageWriter
	topic   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewKafkaWriter builds the producer for the configured brokers. The topic is
// set per message so the writer can be shared.
func NewKafkaWriter(config *KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(config.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireOne,
		MaxAttempts:            5,
		AllowAutoTopicCreation: true,
	}
}

// NewCatalogEventPublisher creates a publisher writing to topic
func NewCatalogEventPublisher(writer MessageWriter, topic string, logger *zap.Logger) *CatalogEventPublisher {
	return &CatalogEventPublisher{
		writer:  writer,
		topic:   topic,
		timeout: 5 * time.Second,
		logger:  logger,
	}
}

// OnCatalogEvent implements domain.CatalogObserver
func (p *CatalogEventPublisher) OnCatalogEvent(ctx context.Context, event domain.CatalogEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to encode catalog event", zap.Error(err))
		return
	}

	// the request may already be done by the time observers run
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	err = p.writer.WriteMessages(writeCtx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.Type),
		Value: payload,
		Time:  event.At,
	})
	if err != nil {
		p.logger.Warn("Failed to publish catalog event",
			zap.String("type", string(event.Type)),
			zap.Int("count", event.Count),
			zap.Error(err),
		)
	}
}

// Close flushes and closes the underlying writer
func (p *CatalogEventPublisher) Close() error {
	return p.writer.Close()
}
