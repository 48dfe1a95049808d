package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Stagehand/internal/domain"
	"github.com/shaiso/Stagehand/internal/repo"
)

const defaultTickInterval = 30 * time.Second

// ErrWarmFailed — прогрев хотя бы одного flavor'а завершился ошибкой.
var ErrWarmFailed = errors.New("warm failed")

// WarmFunc прогревает кэш одного flavor'а.
type WarmFunc func(ctx context.Context, flavor string) (*domain.Run, error)

// Store сохраняет состояние расписания между перезапусками.
// Реализуется *repo.ScheduleRepo.
type Store interface {
	Get(ctx context.Context, name string) (*domain.WarmSchedule, error)
	Save(ctx context.Context, sched *domain.WarmSchedule) error
}

// Warmer — планировщик прогрева кэша.
type Warmer struct {
	sched        *domain.WarmSchedule
	warm         WarmFunc
	store        Store
	tickInterval time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// Config — конфигурация Warmer.
type Config struct {
	Schedule     *domain.WarmSchedule
	Warm         WarmFunc
	Store        Store         // опционально
	TickInterval time.Duration // как часто проверять next_due_at (default: 30s)
	Logger       *slog.Logger
}

// New создаёт Warmer и проверяет расписание.
func New(cfg Config) (*Warmer, error) {
	if cfg.Schedule == nil || cfg.Warm == nil {
		return nil, errors.New("scheduler: schedule and warm func are required")
	}
	if len(cfg.Schedule.Flavors) == 0 {
		return nil, errors.New("scheduler: schedule has no flavors")
	}
	if cfg.Schedule.IsCron() {
		if err := ValidateCronExpr(cfg.Schedule.CronExpr); err != nil {
			return nil, err
		}
	} else if !cfg.Schedule.IsInterval() {
		return nil, ErrNoTrigger
	}

	tick := cfg.TickInterval
	if tick <= 0 {
		tick = defaultTickInterval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Warmer{
		sched:        cfg.Schedule,
		warm:         cfg.Warm,
		store:        cfg.Store,
		tickInterval: tick,
		logger:       logger.With("schedule", cfg.Schedule.Name),
		now:          time.Now,
	}, nil
}

// Schedule возвращает текущее состояние расписания.
func (w *Warmer) Schedule() *domain.WarmSchedule {
	return w.sched
}

// Init восстанавливает next_due_at из хранилища или вычисляет его
// заново.
func (w *Warmer) Init(ctx context.Context) error {
	if w.store != nil {
		saved, err := w.store.Get(ctx, w.sched.Name)
		switch {
		case err == nil:
			w.sched.NextDueAt = saved.NextDueAt
			w.sched.LastRunAt = saved.LastRunAt
			w.sched.LastRunIDs = saved.LastRunIDs
		case errors.Is(err, repo.ErrNotFound):
		default:
			w.logger.Warn("failed to load schedule state", "error", err)
		}
	}

	if w.sched.NextDueAt == nil {
		next, err := CalculateNextDue(w.sched, w.now())
		if err != nil {
			return err
		}
		w.sched.NextDueAt = &next
	}

	w.logger.Info("warmer initialized", "next_due_at", w.sched.NextDueAt)
	return nil
}

// Tick прогревает кэш, если расписание наступило.
// Возвращает true, если прогрев выполнялся.
func (w *Warmer) Tick(ctx context.Context) (bool, error) {
	now := w.now()
	if !w.sched.IsDue(now) {
		return false, nil
	}
	return true, w.WarmNow(ctx)
}

// WarmNow прогревает все flavors расписания сразу.
//
// Ошибка одного flavor'а не останавливает остальные: расписание всё
// равно сдвигается, а в конце возвращается ErrWarmFailed.
func (w *Warmer) WarmNow(ctx context.Context) error {
	now := w.now()

	var runIDs []uuid.UUID
	var failed int
	for _, flavor := range w.sched.Flavors {
		if err := ctx.Err(); err != nil {
			return err
		}

		run, err := w.warm(ctx, flavor)
		if run != nil {
			runIDs = append(runIDs, run.ID)
		}
		if err != nil {
			failed++
			w.logger.Error("failed to warm flavor", "flavor", flavor, "error", err)
			continue
		}
		w.logger.Info("flavor warmed", "flavor", flavor)
	}

	next, err := CalculateNextDue(w.sched, now)
	if err != nil {
		return fmt.Errorf("calculate next due: %w", err)
	}
	w.sched.RecordRun(runIDs, now, next)

	if w.store != nil {
		if err := w.store.Save(ctx, w.sched); err != nil {
			w.logger.Warn("failed to save schedule state", "error", err)
		}
	}

	w.logger.Info("warm completed",
		"flavors", len(w.sched.Flavors),
		"failed", failed,
		"next_due_at", next,
	)
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d flavor(s)", ErrWarmFailed, failed, len(w.sched.Flavors))
	}
	return nil
}

// Run выполняет Init и проверяет расписание каждые TickInterval до
// отмены контекста.
func (w *Warmer) Run(ctx context.Context) error {
	if err := w.Init(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(w.tickInterval)
	defer ticker.Stop()

	for {
		if _, err := w.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrWarmFailed) {
			w.logger.Error("warmer tick failed", "error", err)
		}

		select {
		case <-ctx.Done():
			w.logger.Info("warmer stopped")
			return nil
		case <-ticker.C:
		}
	}
}
