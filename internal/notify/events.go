package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/GeorgeAndreouGA/libero-sub000/internal/domain"
	"github.com/GeorgeAndreouGA/libero-sub000/pkg/logger"
)

const (
	TopicSubscriptionActivated = "subscription.activated"
	TopicSubscriptionCancelled = "subscription.cancelled"
	TopicSubscriptionExpired   = "subscription.expired"
	TopicPaymentFailed         = "payment.failed"
)

// SubscriptionEvent is the lifecycle event published to Kafka consumers
// (analytics, CRM) on every subscription transition.
type SubscriptionEvent struct {
	SubscriptionID string                    `json:"subscription_id"`
	UserID         string                    `json:"user_id"`
	PackID         string                    `json:"pack_id"`
	Status         domain.SubscriptionStatus `json:"status"`
	PeriodStart    time.Time                 `json:"period_start"`
	PeriodEnd      time.Time                 `json:"period_end"`
	Timestamp      time.Time                 `json:"timestamp"`
}

// PaymentFailedEvent is published when a provider charge or invoice fails.
type PaymentFailedEvent struct {
	UserID          string    `json:"user_id,omitempty"`
	PaymentIntentID string    `json:"payment_intent_id,omitempty"`
	Amount          float64   `json:"amount"`
	Currency        string    `json:"currency"`
	Reason          string    `json:"reason,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// EventProducer publishes subscription lifecycle events. Publishing is best
// effort: callers log failures and move on.
type EventProducer interface {
	PublishSubscriptionActivated(ctx context.Context, sub domain.Subscription) error
	PublishSubscriptionCancelled(ctx context.Context, sub domain.Subscription) error
	PublishSubscriptionExpired(ctx context.Context, sub domain.Subscription) error
	PublishPaymentFailed(ctx context.Context, event PaymentFailedEvent) error
	Close() error
}

type kafkaEventProducer struct {
	producer sarama.SyncProducer
	log      *logger.Logger
}

// NewKafkaEventProducer wraps a sarama sync producer.
func NewKafkaEventProducer(producer sarama.SyncProducer, log *logger.Logger) EventProducer {
	return &kafkaEventProducer{
		producer: producer,
		log:      log,
	}
}

// NewSyncProducer creates a sarama sync producer with acks from all replicas.
func NewSyncProducer(brokers []string, log *logger.Logger) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Version = sarama.V3_3_0_0
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	log.Infow("Kafka producer initialized", "brokers", brokers)
	return producer, nil
}

func (p *kafkaEventProducer) PublishSubscriptionActivated(ctx context.Context, sub domain.Subscription) error {
	return p.publishSubscriptionEvent(TopicSubscriptionActivated, sub)
}

func (p *kafkaEventProducer) PublishSubscriptionCancelled(ctx context.Context, sub domain.Subscription) error {
	return p.publishSubscriptionEvent(TopicSubscriptionCancelled, sub)
}

func (p *kafkaEventProducer) PublishSubscriptionExpired(ctx context.Context, sub domain.Subscription) error {
	return p.publishSubscriptionEvent(TopicSubscriptionExpired, sub)
}

func (p *kafkaEventProducer) PublishPaymentFailed(ctx context.Context, event PaymentFailedEvent) error {
	event.Timestamp = time.Now()
	return p.publish(TopicPaymentFailed, event.PaymentIntentID, event)
}

func (p *kafkaEventProducer) publishSubscriptionEvent(topic string, sub domain.Subscription) error {
	event := SubscriptionEvent{
		SubscriptionID: sub.ID.String(),
		UserID:         sub.UserID.String(),
		PackID:         sub.PackID.String(),
		Status:         sub.Status,
		PeriodStart:    sub.CurrentPeriodStart,
		PeriodEnd:      sub.CurrentPeriodEnd,
		Timestamp:      time.Now(),
	}
	return p.publish(topic, sub.UserID.String(), event)
}

func (p *kafkaEventProducer) publish(topic, key string, payload interface{}) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("event_type"),
				Value: []byte(topic),
			},
		},
		Timestamp: time.Now(),
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		return fmt.Errorf("failed to publish event to %s: %w", topic, err)
	}

	p.log.Debugw("Published event", "topic", topic, "partition", partition, "offset", offset)
	return nil
}

func (p *kafkaEventProducer) Close() error {
	return p.producer.Close()
}

// NoopEventProducer discards all events. Used when Kafka is not configured
// and in tests.
type NoopEventProducer struct{}

func (NoopEventProducer) PublishSubscriptionActivated(context.Context, domain.Subscription) error {
	return nil
}
func (NoopEventProducer) PublishSubscriptionCancelled(context.Context, domain.Subscription) error {
	return nil
}
func (NoopEventProducer) PublishSubscriptionExpired(context.Context, domain.Subscription) error {
	return nil
}
func (NoopEventProducer) PublishPaymentFailed(context.Context, PaymentFailedEvent) error { return nil }
func (NoopEventProducer) Close() error                                                   { return nil }
