package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// DeadLetterProducer parks webhook payloads that can never be processed
// automatically. Publishing is best-effort on top of the log entry the
// caller already wrote; a dead-letter publish failure must not turn an
// unprocessable event back into a retrying one.
type DeadLetterProducer struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewDeadLetterProducer(brokers string, topic string, logger *zap.Logger) *DeadLetterProducer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}

	return &DeadLetterProducer{
		writer: writer,
		logger: logger,
	}
}

func (p *DeadLetterProducer) DeadLetter(ctx context.Context, source, reason string, payload []byte, requestID string) {
	event := DeadLetterEvent{
		EventID:   uuid.New().String(),
		Reason:    reason,
		Source:    source,
		Payload:   string(payload),
		Timestamp: time.Now(),
		RequestID: requestID,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to marshal dead letter event", zap.Error(err))
		return
	}

	wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := p.writer.WriteMessages(wctx, kafka.Message{
		Key:   []byte(event.EventID),
		Value: data,
	}); err != nil {
		p.logger.Error("failed to publish dead letter event",
			zap.String("event_id", event.EventID),
			zap.String("reason", reason),
			zap.Error(err))
		return
	}

	p.logger.Info("event dead-lettered",
		zap.String("event_id", event.EventID),
		zap.String("source", source),
		zap.String("reason", reason))
}

func (p *DeadLetterProducer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}
