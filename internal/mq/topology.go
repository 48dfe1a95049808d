package mq

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrClosed — соединение уже закрыто.
var ErrClosed = errors.New("amqp connection is closed")

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

const (
	// ExchangeRuns — события запусков (topic).
	ExchangeRuns Exchange = "stagehand.runs"

	// QueueRunHistory — очередь финальных событий для внешних
	// потребителей (дашборды, уведомления).
	QueueRunHistory Queue = "stagehand.runs.history"
)

// historyBindings — ключи, которые попадают в QueueRunHistory.
var historyBindings = []string{"run.succeeded", "run.failed", "run.skipped"}

// SetupTopology объявляет exchange и очередь истории.
// Объявления идемпотентны, вызывать можно при каждом старте.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.ExchangeDeclare(
			string(ExchangeRuns), // name
			"topic",              // type
			true,                 // durable
			false,                // auto-deleted
			false,                // internal
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ExchangeRuns, err)
		}

		_, err = ch.QueueDeclare(
			string(QueueRunHistory), // name
			true,                    // durable
			false,                   // delete when unused
			false,                   // exclusive
			false,                   // no-wait
			amqp.Table{"x-max-length": int32(10000)},
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", QueueRunHistory, err)
		}

		for _, key := range historyBindings {
			if err := ch.QueueBind(string(QueueRunHistory), key, string(ExchangeRuns), false, nil); err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", QueueRunHistory, key, err)
			}
		}

		return nil
	})
}
