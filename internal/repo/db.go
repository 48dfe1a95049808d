// Package repo хранит историю запусков и состояние расписаний прогрева
// в Postgres.
//
// База необязательна: без DB_URL stagehand работает без истории.
package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool открывает пул соединений и проверяет его ping'ом.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, ErrNoDatabase
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 4
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS stagehand_runs (
	id              uuid PRIMARY KEY,
	flavor          text NOT NULL,
	version         text,
	status          text NOT NULL,
	stages          jsonb,
	error           text,
	failed_stage    text,
	cleanup_error   text,
	cleanup_skipped boolean NOT NULL DEFAULT false,
	started_at      timestamptz,
	finished_at     timestamptz,
	created_at      timestamptz NOT NULL
);

CREATE INDEX IF NOT EXISTS stagehand_runs_flavor_created_idx
	ON stagehand_runs (flavor, created_at DESC);

CREATE TABLE IF NOT EXISTS stagehand_warm_schedules (
	name         text PRIMARY KEY,
	flavors      text[] NOT NULL,
	cron_expr    text,
	interval_sec integer,
	timezone     text NOT NULL DEFAULT 'UTC',
	next_due_at  timestamptz,
	last_run_at  timestamptz,
	last_run_ids uuid[]
);
`

// EnsureSchema создаёт таблицы, если их ещё нет.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
