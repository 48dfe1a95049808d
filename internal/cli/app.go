package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/shaiso/Stagehand/internal/changes"
	"github.com/shaiso/Stagehand/internal/config"
	"github.com/shaiso/Stagehand/internal/domain"
	"github.com/shaiso/Stagehand/internal/flavor"
	"github.com/shaiso/Stagehand/internal/mq"
	"github.com/shaiso/Stagehand/internal/orchestrator"
	"github.com/shaiso/Stagehand/internal/repo"
	"github.com/shaiso/Stagehand/internal/steps"
	"github.com/shaiso/Stagehand/internal/telemetry"
	"github.com/shaiso/Stagehand/internal/wait"
)

// metricsJob — имя job'а в Pushgateway.
const metricsJob = "stagehand"

// App — окружение одной команды.
type App struct {
	Config  *config.Config
	Catalog *flavor.Catalog
	Logger  *slog.Logger
	Metrics *telemetry.Metrics
	Console *telemetry.Console
	Out     *Output

	stdout  io.Writer
	closers []func() error
}

// AppOptions — параметры NewApp.
type AppOptions struct {
	// Getenv — источник настроек (default: os.Getenv).
	Getenv func(string) string

	// Stdout / Stderr — потоки вывода (default: os.Stdout / os.Stderr).
	Stdout io.Writer
	Stderr io.Writer

	// JSON — вывод данных в JSON.
	JSON bool

	// Logger (default: slog.Default()).
	Logger *slog.Logger
}

// NewApp читает настройки и каталог flavors.
func NewApp(opts AppOptions) (*App, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := config.Load(getenv)
	if err != nil {
		return nil, err
	}

	catalog, err := flavor.Load(cfg.FlavorsDir)
	if err != nil {
		return nil, fmt.Errorf("load flavors: %w", err)
	}

	return &App{
		Config:  cfg,
		Catalog: catalog,
		Logger:  logger,
		Metrics: telemetry.NewMetrics(),
		Console: telemetry.NewConsole(stdout),
		Out:     NewOutput(opts.JSON, stdout, stderr),
		stdout:  stdout,
	}, nil
}

// Registry создаёт реестр действий с настройками процесса.
func (a *App) Registry() *steps.Registry {
	return steps.DefaultRegistry(steps.Deps{
		Waiter: wait.New(wait.WithLogger(a.Logger), wait.WithMetrics(a.Metrics)),
		Test: steps.TestOptions{
			Skip:       a.Config.SkipTest,
			NoseFilter: a.Config.NoseFilter,
		},
	})
}

// Compile компилирует flavor из каталога.
func (a *App) Compile(name string) (*flavor.Pipeline, error) {
	return a.Catalog.Compile(name, flavor.Options{
		Config:   a.Config,
		Registry: a.Registry(),
		Output:   a.stdout,
		Console:  a.Console,
		Metrics:  a.Metrics,
		Logger:   a.Logger,
	})
}

// Driver создаёт драйвер с побочными каналами, заданными в окружении.
//
// Недоступные Postgres и RabbitMQ только логируются: история и события
// не должны ронять сборку.
func (a *App) Driver(ctx context.Context) *orchestrator.Driver {
	cfg := orchestrator.ConfigFrom(a.Config)
	cfg.Console = a.Console
	cfg.Logger = a.Logger
	cfg.Metrics = a.Metrics

	if cfg.PullRequest {
		cfg.Detector = a.Detector()
	}

	if runs, err := a.RunRepo(ctx); err == nil {
		cfg.Recorder = runs
	} else if a.Config.DatabaseURL != "" {
		a.Logger.Warn("run history disabled", "error", err)
	}

	if a.Config.RabbitMQURL != "" {
		if pub, err := a.publisher(ctx); err == nil {
			cfg.Notifier = pub
		} else {
			a.Logger.Warn("run events disabled", "error", err)
		}
	}

	return orchestrator.New(cfg)
}

// Detector создаёт анализатор изменений сборки с шаблонами путей из
// описаний flavors.
func (a *App) Detector() *changes.Detector {
	globs := make(map[string][]string)
	for _, name := range a.Catalog.Names() {
		spec, err := a.Catalog.Get(name)
		if err != nil || len(spec.Paths) == 0 {
			continue
		}
		globs[name] = spec.Paths
	}

	return &changes.Detector{
		Source: &changes.GitSource{
			Dir:    a.Config.BuildDir,
			Commit: a.Config.Commit,
			Branch: a.Config.Branch,
		},
		Analyzer: changes.NewAnalyzer(globs),
	}
}

// RunRepo открывает историю запусков (DB_URL).
func (a *App) RunRepo(ctx context.Context) (*repo.RunRepo, error) {
	pool, err := repo.NewPool(ctx, a.Config.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { pool.Close(); return nil })

	if err := repo.EnsureSchema(ctx, pool); err != nil {
		return nil, err
	}
	return repo.NewRunRepo(pool), nil
}

// ScheduleRepo открывает хранилище расписаний прогрева (DB_URL).
func (a *App) ScheduleRepo(ctx context.Context) (*repo.ScheduleRepo, error) {
	pool, err := repo.NewPool(ctx, a.Config.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { pool.Close(); return nil })

	if err := repo.EnsureSchema(ctx, pool); err != nil {
		return nil, err
	}
	return repo.NewScheduleRepo(pool), nil
}

func (a *App) publisher(ctx context.Context) (*mq.Publisher, error) {
	conn, err := mq.Dial(a.Config.RabbitMQURL, a.Logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, conn.Close)

	if err := mq.SetupTopology(ctx, conn); err != nil {
		return nil, err
	}
	return mq.NewPublisher(conn, a.Logger), nil
}

// Warm прогревает кэш flavor'а: before_install и install, затем
// загрузка снимка директорий кэша.
func (a *App) Warm(ctx context.Context, name string) (*domain.Run, error) {
	p, err := a.Compile(name)
	if err != nil {
		return nil, err
	}

	run := domain.NewRun(p.Flavor.Name, p.Flavor.Version)
	run.MarkRunning()

	for _, stage := range []domain.StageName{domain.StageBeforeInstall, domain.StageInstall} {
		if err := p.Run(ctx, stage); err != nil {
			run.MarkFailed(stage, err.Error())
			return run, err
		}
		run.RecordStage(domain.StageResult{Name: stage, Status: domain.StageStatusSucceeded})
	}

	p.Cache().Add(p.Flavor.CacheDirs...)
	if err := p.Cache().Push(ctx); err != nil {
		run.MarkFailed(domain.StageCache, err.Error())
		return run, err
	}

	run.MarkSucceeded()
	return run, nil
}

// Close выгружает метрики и закрывает соединения.
func (a *App) Close(ctx context.Context) {
	if err := a.Metrics.Export(ctx, a.Config.PushgatewayURL, a.Config.MetricsTextfile, metricsJob); err != nil {
		a.Logger.Warn("failed to export metrics", "error", err)
	}

	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("failed to close connection", "error", err)
		}
	}
	a.closers = nil
}
