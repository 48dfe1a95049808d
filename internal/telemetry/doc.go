// Package telemetry обеспечивает наблюдаемость stagehand.
//
// Включает:
//   - logging.go — structured logging через slog
//   - section.go — баннеры стадий и уведомления для человека
//   - metrics.go — Prometheus метрики
//
// stagehand — короткоживущий процесс, поэтому метрики не отдаются через
// /metrics, а выгружаются в конце запуска: в Pushgateway или в textfile
// для node_exporter.
package telemetry
