package login_materializer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"go.uber.org/zap"
	"walletauth/apps/walletauth/internal/events"
	"walletauth/apps/walletauth/internal/model"
)

type LoginWriter interface {
	InsertLogin(ctx context.Context, record model.LoginRecord) error
}

type messageConsumer interface {
	Subscribe(topic string, rebalanceCb kafka.RebalanceCb) error
	ReadMessage(timeout time.Duration) (*kafka.Message, error)
	Close() error
}

// LoginMaterializer consumes login events and projects them into login_history
type LoginMaterializer struct {
	logger      *zap.Logger
	consumer    messageConsumer
	loginWriter LoginWriter
	kafkaTopic  string
}

func NewLoginMaterializer(kafkaBroker, kafkaTopic, groupID string, logger *zap.Logger, loginWriter LoginWriter) (*LoginMaterializer, error) {
	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers": kafkaBroker,
		"group.id":          groupID,
		"auto.offset.reset": "earliest",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}

	return &LoginMaterializer{
		logger:      logger,
		consumer:    consumer,
		loginWriter: loginWriter,
		kafkaTopic:  kafkaTopic,
	}, nil
}

// Start blocks consuming messages until ctx is cancelled
func (lm *LoginMaterializer) Start(ctx context.Context) error {
	lm.logger.Info("Starting login materializer...", zap.String("topic", lm.kafkaTopic))

	if err := lm.consumer.Subscribe(lm.kafkaTopic, nil); err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", lm.kafkaTopic, err)
	}

	for {
		select {
		case <-ctx.Done():
			lm.logger.Info("Login materializer stopped")
			return nil
		default:
		}

		msg, err := lm.consumer.ReadMessage(time.Second)
		if err != nil {
			var kafkaErr kafka.Error
			if errors.As(err, &kafkaErr) && kafkaErr.Code() == kafka.ErrTimedOut {
				continue
			}
			lm.logger.Error("Error reading message from Kafka", zap.Error(err))
			continue
		}

		if err := lm.processMessage(ctx, msg); err != nil {
			lm.logger.Error("Error processing message",
				zap.Int32("partition", msg.TopicPartition.Partition),
				zap.String("key", string(msg.Key)),
				zap.Error(err))
		}
	}
}

func (lm *LoginMaterializer) processMessage(ctx context.Context, msg *kafka.Message) error {
	var loginEvent events.LoginEvent
	if err := json.Unmarshal(msg.Value, &loginEvent); err != nil {
		return fmt.Errorf("failed to unmarshal login event: %w", err)
	}

	switch loginEvent.EventType {
	case model.EventWalletCreated, model.EventWalletConnected:
	default:
		lm.logger.Warn("Skipping unknown event type", zap.String("event_type", loginEvent.EventType))
		return nil
	}

	if loginEvent.EventID == "" || loginEvent.UserID == 0 || loginEvent.WalletAddress == "" {
		return fmt.Errorf("incomplete login event %q", loginEvent.EventID)
	}

	lm.logger.Debug("Processing login event",
		zap.String("event_id", loginEvent.EventID),
		zap.String("event_type", loginEvent.EventType),
		zap.String("wallet_address", loginEvent.WalletAddress))

	return lm.loginWriter.InsertLogin(ctx, model.LoginRecord{
		EventID:       loginEvent.EventID,
		UserID:        loginEvent.UserID,
		WalletAddress: loginEvent.WalletAddress,
		EventType:     loginEvent.EventType,
		OccurredAt:    loginEvent.OccurredAt,
	})
}

func (lm *LoginMaterializer) Close() error {
	if lm.consumer != nil {
		return lm.consumer.Close()
	}
	return nil
}
