package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
)

// Ledger event topics
const (
	TopicPaymentCompleted = "storefront.payment.completed"
	TopicPaymentFailed    = "storefront.payment.failed"
	TopicPaymentRefunded  = "storefront.payment.refunded"
	TopicOrderPlaced      = "storefront.order.placed"
)

// Publisher emits ledger events after the database write they describe has committed
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload interface{}) error
	Close() error
}

// PaymentEvent is the payload of storefront.payment.* topics
type PaymentEvent struct {
	TransactionID     uint      `json:"transactionId"`
	InternalOrderID   string    `json:"internalOrderId"`
	GatewayOrderID    string    `json:"gatewayOrderId,omitempty"`
	GatewayPaymentID  string    `json:"gatewayPaymentId,omitempty"`
	TenantID          uint      `json:"tenantId"`
	Status            string    `json:"status"`
	Reason            string    `json:"reason,omitempty"`
	TotalAmount       int64     `json:"totalAmount"`
	CommissionAmount  int64     `json:"commissionAmount"`
	SellerAmount      int64     `json:"sellerAmount"`
	CommissionPercent string    `json:"commissionPercent"`
	Currency          string    `json:"currency"`
	Source            string    `json:"source"`
	OccurredAt        time.Time `json:"occurredAt"`
}

// OrderPlacedEvent is the payload of storefront.order.placed
type OrderPlacedEvent struct {
	TenantID      uint      `json:"tenantId"`
	OrderID       string    `json:"orderId"`
	TransactionID *uint     `json:"transactionId,omitempty"`
	PaymentMethod string    `json:"paymentMethod"`
	TotalAmount   int64     `json:"totalAmount"`
	ItemCount     int       `json:"itemCount"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// KafkaPublisher publishes JSON events with a sarama SyncProducer
type KafkaPublisher struct {
	producer sarama.SyncProducer
	logger   *slog.Logger
}

// NewKafkaPublisher connects to the brokers, retrying while Kafka starts up
func NewKafkaPublisher(brokers []string, attempts int) (*KafkaPublisher, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3

	var producer sarama.SyncProducer
	var err error
	for i := 1; i <= attempts; i++ {
		producer, err = sarama.NewSyncProducer(brokers, config)
		if err == nil {
			return NewKafkaPublisherWithProducer(producer), nil
		}
		slog.Warn("waiting for kafka", "attempt", i, "attempts", attempts, "err", err)
		time.Sleep(2 * time.Second)
	}
	return nil, fmt.Errorf("kafka producer unavailable: %w", err)
}

// NewKafkaPublisherWithProducer wraps an existing producer
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, logger: slog.Default()}
}

func (p *KafkaPublisher) SetLogger(logger *slog.Logger) {
	p.logger = logger
}

func (p *KafkaPublisher) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", topic, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "event published", "topic", topic, "key", key, "partition", partition, "offset", offset)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// LogPublisher writes events to the log when no brokers are configured
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	p.logger.InfoContext(ctx, "event", "topic", topic, "key", key, "payload", string(data))
	return nil
}

func (p *LogPublisher) Close() error {
	return nil
}

// publishBestEffort logs publish failures; the committed ledger write stands either way
func publishBestEffort(ctx context.Context, logger *slog.Logger, pub Publisher, topic, key string, payload interface{}) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, topic, key, payload); err != nil {
		logger.ErrorContext(ctx, "failed to publish event", "topic", topic, "key", key, "err", err)
	}
}
