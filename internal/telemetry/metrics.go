package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics — набор метрик одного процесса stagehand.
//
// Метрики регистрируются в собственном реестре, а не в глобальном,
// чтобы тесты могли создавать независимые экземпляры.
type Metrics struct {
	Registry *prometheus.Registry

	// RunsTotal — завершённые запуски flavor по статусу.
	RunsTotal *prometheus.CounterVec

	// StageDuration — длительность стадий.
	StageDuration *prometheus.HistogramVec

	// WaitDuration — длительность ожидания готовности сервисов.
	WaitDuration *prometheus.HistogramVec

	// CacheOps — операции с кэшем артефактов по результату.
	CacheOps *prometheus.CounterVec

	// CacheBytes — объём переданных данных кэша.
	CacheBytes *prometheus.CounterVec
}

// NewMetrics создаёт и регистрирует метрики.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stagehand_runs_total",
			Help: "Flavor runs by final status",
		}, []string{"flavor", "status"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stagehand_stage_duration_seconds",
			Help:    "Duration of pipeline stages",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"flavor", "stage", "status"}),
		WaitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stagehand_wait_duration_seconds",
			Help:    "Time spent waiting for services to become ready",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"kind", "outcome"}),
		CacheOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stagehand_cache_operations_total",
			Help: "Artifact cache operations by outcome",
		}, []string{"op", "outcome"}),
		CacheBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stagehand_cache_bytes_total",
			Help: "Bytes transferred to and from the artifact cache",
		}, []string{"op"}),
	}

	m.Registry.MustRegister(m.RunsTotal, m.StageDuration, m.WaitDuration, m.CacheOps, m.CacheBytes)
	return m
}

// ObserveStage записывает длительность стадии.
func (m *Metrics) ObserveStage(flavor, stage, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(flavor, stage, status).Observe(d.Seconds())
}

// ObserveWait записывает длительность ожидания.
func (m *Metrics) ObserveWait(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.WaitDuration.WithLabelValues(kind, outcome).Observe(d.Seconds())
}

// CountRun увеличивает счётчик запусков.
func (m *Metrics) CountRun(flavor, status string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(flavor, status).Inc()
}

// CountCache увеличивает счётчик операций кэша.
func (m *Metrics) CountCache(op, outcome string, bytes int64) {
	if m == nil {
		return
	}
	m.CacheOps.WithLabelValues(op, outcome).Inc()
	if bytes > 0 {
		m.CacheBytes.WithLabelValues(op).Add(float64(bytes))
	}
}

// Export выгружает метрики: в Pushgateway (если задан pushURL)
// и/или в textfile (если задан path).
func (m *Metrics) Export(ctx context.Context, pushURL, path, job string) error {
	if m == nil {
		return nil
	}

	if pushURL != "" {
		err := push.New(pushURL, job).
			Gatherer(m.Registry).
			PushContext(ctx)
		if err != nil {
			return fmt.Errorf("push metrics: %w", err)
		}
	}

	if path != "" {
		if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
			return fmt.Errorf("write metrics textfile: %w", err)
		}
	}

	return nil
}
