package orchestrator

import (
	"context"

	"github.com/shaiso/Stagehand/internal/domain"
	"github.com/shaiso/Stagehand/internal/telemetry"
)

// Recorder сохраняет run (история запусков). Реализуется *repo.RunRepo.
type Recorder interface {
	Record(ctx context.Context, run *domain.Run) error
}

// Notifier публикует события о run. Реализуется *mq.Publisher.
type Notifier interface {
	PublishRun(ctx context.Context, run *domain.Run) error
}

// started вызывается после перевода run в RUNNING.
func (d *Driver) started(ctx context.Context, run *domain.Run) {
	d.report(ctx, run)
}

// finished вызывается после перевода run в финальный статус.
func (d *Driver) finished(ctx context.Context, run *domain.Run) {
	d.metrics.CountRun(run.Flavor, string(run.Status))
	d.report(ctx, run)
}

// report передаёт run в историю и в брокер.
//
// Ошибки побочных каналов только логируются: они не меняют результат
// запуска.
func (d *Driver) report(ctx context.Context, run *domain.Run) {
	if d.recorder == nil && d.notifier == nil {
		return
	}

	logger := telemetry.FromContext(ctx)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.reportTimeout)
	defer cancel()

	if d.recorder != nil {
		if err := d.recorder.Record(ctx, run); err != nil {
			logger.Warn("failed to record run", "status", run.Status, "error", err)
		}
	}

	if d.notifier != nil {
		if err := d.notifier.PublishRun(ctx, run); err != nil {
			logger.Warn("failed to publish run event", "status", run.Status, "error", err)
		}
	}
}
