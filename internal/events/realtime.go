package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// RealtimePublisher is the live-update channel: one message per order state
// change, keyed by order id so a consumer bridging to websocket clients sees
// per-order updates in order.
type RealtimePublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewRealtimePublisher(brokers string, topic string, logger *zap.Logger) *RealtimePublisher {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}

	return &RealtimePublisher{
		writer: writer,
		logger: logger,
	}
}

func (p *RealtimePublisher) Publish(ctx context.Context, orderID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err = p.writer.WriteMessages(wctx, kafka.Message{
		Key:   []byte(orderID),
		Value: data,
	})
	if err != nil {
		p.logger.Error("failed to publish realtime update",
			zap.String("order_id", orderID),
			zap.Error(err))
		return err
	}
	return nil
}

func (p *RealtimePublisher) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}
