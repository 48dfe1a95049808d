package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run — результат выполнения пайплайна одного flavor'а.
//
// Инвариант: Error содержит первую фатальную ошибку стадии и никогда
// не перезаписывается ошибкой cleanup — та хранится отдельно в
// CleanupError.
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// Flavor — имя flavor'а.
	Flavor string `json:"flavor"`

	// Version — версия сервиса (FLAVOR_VERSION или из описания).
	Version string `json:"version,omitempty"`

	// Status — текущий статус выполнения.
	Status RunStatus `json:"status"`

	// Stages — результаты выполненных стадий в порядке запуска.
	Stages []StageResult `json:"stages,omitempty"`

	// Error — текст первой фатальной ошибки.
	Error string `json:"error,omitempty"`

	// FailedStage — стадия, на которой произошла ошибка.
	FailedStage StageName `json:"failed_stage,omitempty"`

	// CleanupError — ошибка стадии cleanup (не заменяет Error).
	CleanupError string `json:"cleanup_error,omitempty"`

	// CleanupSkipped — cleanup не выполнялся (SKIP_CLEANUP).
	CleanupSkipped bool `json:"cleanup_skipped,omitempty"`

	// StartedAt — время начала выполнения (когда статус стал RUNNING).
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// CreatedAt — время создания run.
	CreatedAt time.Time `json:"created_at"`
}

// StageResult — результат одной стадии.
type StageResult struct {
	Name     StageName     `json:"name"`
	Status   StageStatus   `json:"status"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// NewRun создаёт run в статусе PENDING.
func NewRun(flavor, version string) *Run {
	return &Run{
		ID:        uuid.New(),
		Flavor:    flavor,
		Version:   version,
		Status:    RunStatusPending,
		CreatedAt: time.Now(),
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// IsFinished возвращает true, если run завершён (в любом статусе).
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}

// MarkRunning переводит run в статус RUNNING.
func (r *Run) MarkRunning() {
	now := time.Now()
	r.Status = RunStatusRunning
	r.StartedAt = &now
}

// MarkSucceeded переводит run в статус SUCCEEDED.
func (r *Run) MarkSucceeded() {
	now := time.Now()
	r.Status = RunStatusSucceeded
	r.FinishedAt = &now
}

// MarkFailed переводит run в статус FAILED.
//
// Повторный вызов не перезаписывает первую ошибку.
func (r *Run) MarkFailed(stage StageName, err string) {
	now := time.Now()
	r.Status = RunStatusFailed
	r.FinishedAt = &now
	if r.Error == "" {
		r.Error = err
		r.FailedStage = stage
	}
}

// MarkSkipped переводит run в статус SKIPPED.
func (r *Run) MarkSkipped() {
	now := time.Now()
	r.Status = RunStatusSkipped
	if r.StartedAt == nil {
		r.StartedAt = &now
	}
	r.FinishedAt = &now
}

// RecordStage добавляет результат стадии.
func (r *Run) RecordStage(res StageResult) {
	r.Stages = append(r.Stages, res)
}

// Stage возвращает результат стадии по имени.
func (r *Run) Stage(name StageName) (StageResult, bool) {
	for _, s := range r.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageResult{}, false
}
