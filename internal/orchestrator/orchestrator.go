package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/shaiso/Stagehand/internal/changes"
	"github.com/shaiso/Stagehand/internal/config"
	"github.com/shaiso/Stagehand/internal/domain"
	"github.com/shaiso/Stagehand/internal/telemetry"
)

// Значения по умолчанию.
const (
	defaultCleanupTimeout = 10 * time.Minute
	defaultReportTimeout  = 10 * time.Second
)

// Stages — пайплайн, стадии которого запускает драйвер.
// Реализуется *flavor.Pipeline.
type Stages interface {
	Run(ctx context.Context, stage domain.StageName) error
}

// ImpactDetector определяет, какие flavors затронуты изменениями.
type ImpactDetector interface {
	Impact(ctx context.Context) (changes.Impact, error)
}

// Driver выполняет пайплайны flavors.
//
// Один Driver обслуживает несколько flavors подряд: результат анализа
// изменений вычисляется один раз.
type Driver struct {
	pullRequest    bool
	fullCI         bool
	skipCleanup    bool
	cleanupTimeout time.Duration
	reportTimeout  time.Duration

	detector ImpactDetector
	recorder Recorder
	notifier Notifier
	metrics  *telemetry.Metrics
	console  *telemetry.Console
	logger   *slog.Logger

	impactOnce sync.Once
	impact     changes.Impact
	impactErr  error
}

// Config — конфигурация Driver.
type Config struct {
	// PullRequest — сборка pull request'а: разрешён пропуск flavors.
	PullRequest bool

	// FullCI — полный CI-контекст: выполняются before_cache и cache.
	FullCI bool

	// SkipCleanup — не выполнять cleanup.
	SkipCleanup bool

	// CleanupTimeout — ограничение на cleanup (default: 10m).
	// cleanup выполняется даже после отмены основного контекста.
	CleanupTimeout time.Duration

	// Detector — анализ изменений. Nil — flavors не пропускаются.
	Detector ImpactDetector

	// Side channels (optional)
	Recorder Recorder
	Notifier Notifier
	Metrics  *telemetry.Metrics

	// Console — вывод для человека (default: stdout).
	Console *telemetry.Console

	// Logger
	Logger *slog.Logger
}

// ConfigFrom заполняет флаги драйвера из настроек процесса.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		PullRequest: cfg.IsPullRequest(),
		FullCI:      cfg.CI,
		SkipCleanup: cfg.SkipCleanup,
	}
}

// New создаёт новый Driver.
func New(cfg Config) *Driver {
	cleanupTimeout := cfg.CleanupTimeout
	if cleanupTimeout <= 0 {
		cleanupTimeout = defaultCleanupTimeout
	}

	console := cfg.Console
	if console == nil {
		console = telemetry.NewConsole(os.Stdout)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Driver{
		pullRequest:    cfg.PullRequest,
		fullCI:         cfg.FullCI,
		skipCleanup:    cfg.SkipCleanup,
		cleanupTimeout: cleanupTimeout,
		reportTimeout:  defaultReportTimeout,
		detector:       cfg.Detector,
		recorder:       cfg.Recorder,
		notifier:       cfg.Notifier,
		metrics:        cfg.Metrics,
		console:        console,
		logger:         logger,
	}
}

// Execute выполняет пайплайн flavor'а: before_install, install,
// before_script, script и, в полном CI, before_cache и cache.
// cleanup выполняется в конце всегда, кроме SKIP_CLEANUP.
//
// Возвращает run даже при ошибке. Пропущенный flavor — run в статусе
// SKIPPED и nil.
func (d *Driver) Execute(ctx context.Context, f domain.Flavor, stages Stages) (*domain.Run, error) {
	if stages == nil {
		return nil, ErrNoStages
	}

	run := domain.NewRun(f.Name, f.Version)
	logger := telemetry.WithRunID(telemetry.WithFlavor(d.logger, f.Name), run.ID.String())
	ctx = telemetry.WithLogger(ctx, logger)

	if d.canSkip(ctx, &f) {
		msg := fmt.Sprintf("Skipping %s tests, not affected by the change", f.Name)
		d.console.Notice("%s", msg)
		logger.Info(msg)
		run.MarkSkipped()
		d.finished(ctx, run)
		return run, nil
	}

	logger.Info("executing flavor", "version", f.Version, "full_ci", d.fullCI)
	run.MarkRunning()
	d.started(ctx, run)

	err := d.run(ctx, run, stages)
	if err == nil {
		run.MarkSucceeded()
	}

	d.finished(ctx, run)

	logger.Info("flavor finished",
		"status", run.Status,
		"duration", run.Duration(),
	)
	return run, err
}

// run выполняет стадии по порядку и откладывает cleanup.
func (d *Driver) run(ctx context.Context, run *domain.Run, stages Stages) (err error) {
	logger := telemetry.FromContext(ctx)

	defer func() {
		cerr := d.cleanup(ctx, run, stages)
		if cerr == nil {
			return
		}

		run.CleanupError = cerr.Error()
		if err != nil {
			logger.Warn("cleanup failed after stage failure", "error", cerr)
			return
		}

		d.console.Failure("Failed task: %v", cerr)
		logger.Error("cleanup failed", "type", rootType(cerr), "error", cerr)
		run.MarkFailed(domain.StageCleanup, cerr.Error())
		err = cerr
	}()

	for _, stage := range domain.PipelineOrder(d.fullCI) {
		if err = d.runStage(ctx, run, stages, stage); err != nil {
			d.console.Failure("Failed task: %v", err)
			logger.Error("stage failed",
				"stage", stage,
				"type", rootType(err),
				"error", err,
			)
			run.MarkFailed(stage, err.Error())
			return err
		}
	}

	return nil
}

// cleanup выполняет стадию cleanup на контексте без отмены:
// прерванная сборка всё равно должна освободить ресурсы.
func (d *Driver) cleanup(ctx context.Context, run *domain.Run, stages Stages) error {
	logger := telemetry.FromContext(ctx)

	if d.skipCleanup {
		run.CleanupSkipped = true
		d.console.Notice("Skipping cleanup, disposable environments are great")
		logger.Info("cleanup skipped")
		return nil
	}

	logger.Info("Cleaning up")

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cleanupTimeout)
	defer cancel()

	return d.runStage(cctx, run, stages, domain.StageCleanup)
}

// runStage выполняет одну стадию и записывает её результат.
func (d *Driver) runStage(ctx context.Context, run *domain.Run, stages Stages, stage domain.StageName) error {
	start := time.Now()
	err := stages.Run(ctx, stage)
	elapsed := time.Since(start)

	res := domain.StageResult{
		Name:     stage,
		Status:   domain.StageStatusSucceeded,
		Duration: elapsed,
	}
	if err != nil {
		res.Status = domain.StageStatusFailed
		res.Error = err.Error()
		err = &StageError{Flavor: run.Flavor, Stage: stage, Err: err}
	}

	run.RecordStage(res)
	d.metrics.ObserveStage(run.Flavor, string(stage), string(res.Status), elapsed)

	return err
}

// canSkip решает, можно ли пропустить flavor.
//
// Пропуск возможен только в pull request'е, для flavor'а не из
// always-run набора и только если анализ изменений однозначен.
func (d *Driver) canSkip(ctx context.Context, f *domain.Flavor) bool {
	if !d.pullRequest || f.IsAlwaysRun() || d.detector == nil {
		return false
	}

	logger := telemetry.FromContext(ctx)

	impact, err := d.changeImpact(ctx)
	if err != nil {
		logger.Warn("change analysis failed, running flavor", "error", err)
		return false
	}
	if !impact.Decidable {
		logger.Debug("change set is not decidable, running flavor", "path", impact.Undecided)
		return false
	}

	return !impact.Affects(f.Name)
}

func (d *Driver) changeImpact(ctx context.Context) (changes.Impact, error) {
	d.impactOnce.Do(func() {
		d.impact, d.impactErr = d.detector.Impact(ctx)
		if d.impactErr == nil {
			d.logger.Info("change impact analyzed",
				"decidable", d.impact.Decidable,
				"flavors", d.impact.Flavors,
			)
		}
	})
	return d.impact, d.impactErr
}
