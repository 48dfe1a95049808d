package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Stagehand/internal/domain"
)

// ScheduleRepo хранит состояние расписаний прогрева кэша, чтобы
// перезапуск warmer'а не сбивал next_due_at.
type ScheduleRepo struct {
	pool *pgxpool.Pool
}

// NewScheduleRepo создаёт новый ScheduleRepo.
func NewScheduleRepo(pool *pgxpool.Pool) *ScheduleRepo {
	return &ScheduleRepo{pool: pool}
}

// Get возвращает расписание по имени.
func (r *ScheduleRepo) Get(ctx context.Context, name string) (*domain.WarmSchedule, error) {
	query := `
		SELECT name, flavors, cron_expr, interval_sec, timezone,
		       next_due_at, last_run_at, last_run_ids
		FROM stagehand_warm_schedules
		WHERE name = $1
	`

	var s domain.WarmSchedule
	var cronExpr *string
	var intervalSec *int

	err := r.pool.QueryRow(ctx, query, name).Scan(
		&s.Name,
		&s.Flavors,
		&cronExpr,
		&intervalSec,
		&s.Timezone,
		&s.NextDueAt,
		&s.LastRunAt,
		&s.LastRunIDs,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan schedule: %w", err)
	}

	s.CronExpr = deref(cronExpr)
	if intervalSec != nil {
		s.IntervalSec = *intervalSec
	}
	return &s, nil
}

// Save создаёт или обновляет расписание.
func (r *ScheduleRepo) Save(ctx context.Context, s *domain.WarmSchedule) error {
	timezone := s.Timezone
	if timezone == "" {
		timezone = "UTC"
	}

	query := `
		INSERT INTO stagehand_warm_schedules (name, flavors, cron_expr, interval_sec, timezone,
		                                      next_due_at, last_run_at, last_run_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (name) DO UPDATE
		SET flavors = EXCLUDED.flavors, cron_expr = EXCLUDED.cron_expr,
		    interval_sec = EXCLUDED.interval_sec, timezone = EXCLUDED.timezone,
		    next_due_at = EXCLUDED.next_due_at, last_run_at = EXCLUDED.last_run_at,
		    last_run_ids = EXCLUDED.last_run_ids
	`
	_, err := r.pool.Exec(ctx, query,
		s.Name,
		s.Flavors,
		nullString(s.CronExpr),
		nullInt(s.IntervalSec),
		timezone,
		s.NextDueAt,
		s.LastRunAt,
		s.LastRunIDs,
	)
	if err != nil {
		return fmt.Errorf("save schedule: %w", err)
	}
	return nil
}

// nullInt возвращает nil для нулевого int.
func nullInt(i int) *int {
	if i == 0 {
		return nil
	}
	return &i
}
