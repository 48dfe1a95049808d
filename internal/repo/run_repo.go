package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Stagehand/internal/domain"
)

// RunRepo — репозиторий истории запусков flavors.
type RunRepo struct {
	pool *pgxpool.Pool
}

// NewRunRepo создаёт новый RunRepo.
func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

// Record сохраняет run. Повторная запись того же run обновляет его.
func (r *RunRepo) Record(ctx context.Context, run *domain.Run) error {
	stagesJSON, err := json.Marshal(run.Stages)
	if err != nil {
		return fmt.Errorf("marshal stages: %w", err)
	}

	query := `
		INSERT INTO stagehand_runs (id, flavor, version, status, stages, error, failed_stage,
		                            cleanup_error, cleanup_skipped, started_at, finished_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, stages = EXCLUDED.stages, error = EXCLUDED.error,
		    failed_stage = EXCLUDED.failed_stage, cleanup_error = EXCLUDED.cleanup_error,
		    cleanup_skipped = EXCLUDED.cleanup_skipped, started_at = EXCLUDED.started_at,
		    finished_at = EXCLUDED.finished_at
	`
	_, err = r.pool.Exec(ctx, query,
		run.ID,
		run.Flavor,
		nullString(run.Version),
		string(run.Status),
		stagesJSON,
		nullString(run.Error),
		nullString(string(run.FailedStage)),
		nullString(run.CleanupError),
		run.CleanupSkipped,
		run.StartedAt,
		run.FinishedAt,
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// GetByID возвращает run по ID.
func (r *RunRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM stagehand_runs
		WHERE id = $1
	`
	run, err := scanRun(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

// List возвращает runs с фильтрацией, новые первыми.
func (r *RunRepo) List(ctx context.Context, filter RunFilter) ([]domain.Run, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT ` + runColumns + `
		FROM stagehand_runs
		WHERE ($1::text IS NULL OR flavor = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(filter.Flavor),
		nullString(string(filter.Status)),
		limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// --- Helpers ---

// RunFilter — параметры фильтрации runs.
type RunFilter struct {
	Flavor string
	Status domain.RunStatus
	Limit  int
	Offset int
}

const runColumns = `id, flavor, version, status, stages, error, failed_stage,
		       cleanup_error, cleanup_skipped, started_at, finished_at, created_at`

// scanRun сканирует строку (pgx.Row или pgx.Rows) в Run.
func scanRun(row pgx.Row) (*domain.Run, error) {
	var run domain.Run
	var version, runError, failedStage, cleanupError *string
	var status string
	var stagesJSON []byte

	err := row.Scan(
		&run.ID,
		&run.Flavor,
		&version,
		&status,
		&stagesJSON,
		&runError,
		&failedStage,
		&cleanupError,
		&run.CleanupSkipped,
		&run.StartedAt,
		&run.FinishedAt,
		&run.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}

	run.Status = domain.ParseRunStatus(status)
	run.Version = deref(version)
	run.Error = deref(runError)
	run.FailedStage = domain.StageName(deref(failedStage))
	run.CleanupError = deref(cleanupError)

	if stagesJSON != nil {
		if err := json.Unmarshal(stagesJSON, &run.Stages); err != nil {
			return nil, fmt.Errorf("unmarshal stages: %w", err)
		}
	}

	return &run, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
