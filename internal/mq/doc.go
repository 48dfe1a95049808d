// Package mq публикует события о запусках flavors в RabbitMQ.
//
// Структура:
//   - connection.go — соединение и канал AMQP
//   - topology.go   — объявление exchange и очереди истории
//   - publisher.go  — публикация событий run
//
// Exchange stagehand.runs (topic), routing key run.<status>:
//   - run.running   — пайплайн начал выполнение
//   - run.succeeded, run.failed, run.skipped — финальный статус
package mq
