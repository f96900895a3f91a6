package event_publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"go.uber.org/zap"
	"walletauth/apps/walletauth/internal/events"
	"walletauth/apps/walletauth/internal/model"
)

type OutboxStore interface {
	GetUnsentEventsForProcessing(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkEventAsSent(ctx context.Context, eventID string) error
	MarkEventAsFailed(ctx context.Context, eventID string) error
}

type messageProducer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Close()
}

type EventPublisher struct {
	logger       *zap.Logger
	producer     messageProducer
	kafkaTopic   string
	repository   OutboxStore
	batchSize    int
	pollInterval time.Duration
	mu           sync.Mutex // Protects concurrent access to publishing operations
}

func NewEventPublisher(kafkaBroker, kafkaTopic string, batchSize int, pollInterval time.Duration, logger *zap.Logger, repository OutboxStore) (*EventPublisher, error) {
	// Setup Kafka producer
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": kafkaBroker,
		"acks":              "all",
		"retries":           3,
		"retry.backoff.ms":  100,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return newEventPublisher(producer, kafkaTopic, batchSize, pollInterval, logger, repository), nil
}

func newEventPublisher(producer messageProducer, kafkaTopic string, batchSize int, pollInterval time.Duration, logger *zap.Logger, repository OutboxStore) *EventPublisher {
	return &EventPublisher{
		logger:       logger,
		producer:     producer,
		kafkaTopic:   kafkaTopic,
		repository:   repository,
		batchSize:    batchSize,
		pollInterval: pollInterval,
	}
}

// StartPublishing drains the outbox every poll interval until ctx is cancelled
func (ep *EventPublisher) StartPublishing(ctx context.Context) {
	ticker := time.NewTicker(ep.pollInterval)
	defer ticker.Stop()

	ep.logger.Info("Starting outbox publisher", zap.String("topic", ep.kafkaTopic), zap.Duration("poll_interval", ep.pollInterval))

	for {
		select {
		case <-ctx.Done():
			ep.logger.Info("Outbox publisher stopped")
			return
		case <-ticker.C:
			if err := ep.publishUnsentEvents(ctx); err != nil {
				ep.logger.Error("Error publishing events to Kafka", zap.Error(err))
			}
		}
	}
}

func (ep *EventPublisher) publishUnsentEvents(ctx context.Context) error {
	// Use mutex to ensure only one publishing operation at a time per instance
	ep.mu.Lock()
	defer ep.mu.Unlock()

	outboxEvents, err := ep.repository.GetUnsentEventsForProcessing(ctx, ep.batchSize)
	if err != nil {
		return err
	}

	successCount := 0
	for _, event := range outboxEvents {
		if err := ep.publishEventToKafka(event); err != nil {
			ep.logger.Error("Failed to publish event to Kafka", zap.String("event_id", event.EventID), zap.String("event_type", event.EventType), zap.Error(err))
			// Returns status to 'unsent' for retry
			if markErr := ep.repository.MarkEventAsFailed(ctx, event.EventID); markErr != nil {
				ep.logger.Error("Failed to mark event as failed", zap.String("event_id", event.EventID), zap.Error(markErr))
			}
			continue
		}

		if err := ep.repository.MarkEventAsSent(ctx, event.EventID); err != nil {
			// Stays 'processing' until its claim lease expires and it is published again; the materializer dedupes on event_id
			ep.logger.Error("Failed to mark event as sent", zap.String("event_id", event.EventID), zap.Error(err))
		} else {
			successCount++
		}
	}

	if successCount > 0 {
		ep.logger.Info("Published events to Kafka", zap.Int("success_count", successCount), zap.Int("attempted", len(outboxEvents)))
	}

	return nil
}

func (ep *EventPublisher) publishEventToKafka(event model.OutboxEvent) error {
	kafkaMsg := events.LoginEvent{
		EventID:       event.EventID,
		EventType:     event.EventType,
		UserID:        event.UserID,
		WalletAddress: event.WalletAddress,
		OccurredAt:    event.OccurredAt,
		EventData:     event.EventBlob,
		Timestamp:     time.Now().UTC(),
	}

	msgBytes, err := json.Marshal(kafkaMsg)
	if err != nil {
		return err
	}

	deliveryChan := make(chan kafka.Event, 1)
	defer close(deliveryChan)

	err = ep.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &ep.kafkaTopic, Partition: kafka.PartitionAny},
		Key:            []byte(event.WalletAddress), // Use wallet address as key for partition consistency
		Value:          msgBytes,
	}, deliveryChan)
	if err != nil {
		return err
	}

	// Wait for delivery confirmation
	e := <-deliveryChan
	switch ev := e.(type) {
	case *kafka.Message:
		if ev.TopicPartition.Error != nil {
			return ev.TopicPartition.Error
		}
		return nil
	default:
		return fmt.Errorf("unexpected kafka event type: %T", e)
	}
}

func (ep *EventPublisher) Close() error {
	if ep.producer != nil {
		ep.producer.Close()
	}
	return nil
}
