package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Stagehand/internal/domain"
)

// MessageType — тип сообщения.
type MessageType string

// MessageTypeRun — событие о run.
const MessageTypeRun MessageType = "run"

// Publisher публикует события запусков.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — конверт события.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// RunPayload — состояние run в событии.
type RunPayload struct {
	RunID        uuid.UUID            `json:"run_id"`
	Flavor       string               `json:"flavor"`
	Version      string               `json:"version,omitempty"`
	Status       domain.RunStatus     `json:"status"`
	FailedStage  domain.StageName     `json:"failed_stage,omitempty"`
	Error        string               `json:"error,omitempty"`
	CleanupError string               `json:"cleanup_error,omitempty"`
	Stages       []domain.StageResult `json:"stages,omitempty"`
	DurationMs   int64                `json:"duration_ms"`
}

// RoutingKey возвращает ключ маршрутизации для статуса: run.<status>.
func RoutingKey(status domain.RunStatus) string {
	return "run." + strings.ToLower(string(status))
}

// NewRunMessage собирает событие о run.
func NewRunMessage(run *domain.Run) *Message {
	return &Message{
		ID:   uuid.New().String(),
		Type: MessageTypeRun,
		Payload: RunPayload{
			RunID:        run.ID,
			Flavor:       run.Flavor,
			Version:      run.Version,
			Status:       run.Status,
			FailedStage:  run.FailedStage,
			Error:        run.Error,
			CleanupError: run.CleanupError,
			Stages:       run.Stages,
			DurationMs:   run.Duration().Milliseconds(),
		},
		Timestamp: time.Now().UTC(),
	}
}

// PublishRun публикует текущее состояние run.
func (p *Publisher) PublishRun(ctx context.Context, run *domain.Run) error {
	return p.Publish(ctx, ExchangeRuns, RoutingKey(run.Status), NewRunMessage(run))
}

// Publish публикует сообщение в exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey string, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),
			routingKey,
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Type:         string(msg.Type),
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
		)

		return nil
	})
}
