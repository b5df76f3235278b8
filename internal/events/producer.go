package events

import (
	"encoding/json"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"
	"github.com/shopfront/order-reconciler/internal/domain"
	"go.uber.org/zap"
)

const lifecycleTopic = "order-events"

// KafkaProducer publishes order lifecycle events. Delivery failures surface
// through the event channel and are logged; callers treat publishing as
// eventually consistent.
type KafkaProducer struct {
	producer *kafka.Producer
	logger   *zap.Logger
}

func NewKafkaProducer(brokers string, logger *zap.Logger) (*KafkaProducer, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"acks":              "all",
		"retries":           10,
	})
	if err != nil {
		return nil, err
	}

	go func() {
		for e := range p.Events() {
			switch ev := e.(type) {
			case *kafka.Message:
				if ev.TopicPartition.Error != nil {
					logger.Error("lifecycle event delivery failed",
						zap.String("key", string(ev.Key)),
						zap.Error(ev.TopicPartition.Error))
				}
			}
		}
	}()

	return &KafkaProducer{producer: p, logger: logger}, nil
}

func (p *KafkaProducer) PublishOrderCreated(order *domain.Order, requestID string) error {
	event := OrderCreatedEvent{
		EventID:   uuid.New().String(),
		OrderID:   order.OrderID,
		SessionID: order.ExternalSessionID,
		UserID:    order.UserID,
		Total:     order.Total,
		Items:     order.Items,
		Status:    string(order.Status),
		Timestamp: time.Now(),
		RequestID: requestID,
	}
	return p.publish(order.OrderID, event)
}

func (p *KafkaProducer) PublishStatusChanged(order *domain.Order, update domain.StatusUpdate, requestID string) error {
	event := StatusChangedEvent{
		EventID:     uuid.New().String(),
		OrderID:     order.OrderID,
		Status:      string(update.Status),
		Description: update.Description,
		Location:    update.Location,
		Timestamp:   update.Timestamp,
		RequestID:   requestID,
	}
	return p.publish(order.OrderID, event)
}

func (p *KafkaProducer) publish(orderID string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	topic := lifecycleTopic
	return p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte("ORDER#" + orderID),
		Value: data,
	}, nil)
}

func (p *KafkaProducer) HealthCheck() error {
	_, err := p.producer.GetMetadata(nil, false, 2000)
	return err
}

func (p *KafkaProducer) Close() {
	p.producer.Flush(5000)
	p.producer.Close()
}
