package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Audit event types published on session transitions.
const (
	EventUserRegistered   = "user.registered"
	EventUserLoggedIn     = "user.logged_in"
	EventLoginFailed      = "user.login_failed"
	EventSessionRefreshed = "session.refreshed"
	EventSessionRevoked   = "session.revoked"
	EventTokenReuse       = "session.token_mismatch"
	EventProfileUpdated   = "user.profile_updated"
)

// AuthEvent is the audit record for one session transition. It never carries
// passwords or tokens.
type AuthEvent struct {
	Type   string    `json:"type"`
	UserID string    `json:"userId,omitempty"`
	Role   string    `json:"role,omitempty"`
	At     time.Time `json:"at"`
}

// EventPublisher delivers audit events. Publish must not block the request
// path for long; failures are logged by the caller and never fail a flow.
type EventPublisher interface {
	Publish(ctx context.Context, ev AuthEvent) error
	Close() error
}

// KafkaPublisher writes audit events to a Kafka topic keyed by user id.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string, log *zap.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		Async:                  true,
		AllowAutoTopicCreation: true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Warn("kafka: audit delivery failed", zap.Int("messages", len(messages)), zap.Error(err))
			}
		},
	}
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev AuthEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("kafka: marshal event: %w", err)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(ev.UserID), Value: data}); err != nil {
		return fmt.Errorf("kafka: write event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher writes audit events to the application log. It is used when
// no broker is configured.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, ev AuthEvent) error {
	p.log.Info("audit event",
		zap.String("type", ev.Type),
		zap.String("user_id", ev.UserID),
		zap.String("role", ev.Role),
		zap.Time("at", ev.At),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
