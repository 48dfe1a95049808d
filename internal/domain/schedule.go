package domain

import (
	"time"

	"github.com/google/uuid"
)

// WarmSchedule — расписание прогрева кэша артефактов.
//
// Прогрев выполняет before_install/install flavor'а и загружает снимок
// в кэш, чтобы сборки pull request'ов начинались с готовыми сервисами.
type WarmSchedule struct {
	// Name — имя расписания для логов.
	Name string `json:"name"`

	// Flavors — flavors для прогрева.
	Flavors []string `json:"flavors"`

	// CronExpr — cron-выражение ("0 3 * * *", "@daily").
	// Если задан CronExpr, IntervalSec игнорируется.
	CronExpr string `json:"cron_expr,omitempty"`

	// IntervalSec — интервал в секундах между прогревами.
	IntervalSec int `json:"interval_sec,omitempty"`

	// Timezone — часовой пояс для cron. По умолчанию: "UTC".
	Timezone string `json:"timezone,omitempty"`

	// NextDueAt — время следующего прогрева.
	NextDueAt *time.Time `json:"next_due_at,omitempty"`

	// LastRunAt — время последнего прогрева.
	LastRunAt *time.Time `json:"last_run_at,omitempty"`

	// LastRunIDs — run'ы последнего прогрева.
	LastRunIDs []uuid.UUID `json:"last_run_ids,omitempty"`
}

// IsCron возвращает true, если расписание использует cron-выражение.
func (s *WarmSchedule) IsCron() bool {
	return s.CronExpr != ""
}

// IsInterval возвращает true, если расписание использует интервал.
func (s *WarmSchedule) IsInterval() bool {
	return s.CronExpr == "" && s.IntervalSec > 0
}

// IsDue проверяет, пора ли запускать.
func (s *WarmSchedule) IsDue(now time.Time) bool {
	if s.NextDueAt == nil {
		return false
	}
	return !now.Before(*s.NextDueAt)
}

// RecordRun записывает информацию о прогреве.
func (s *WarmSchedule) RecordRun(runIDs []uuid.UUID, at, nextDue time.Time) {
	s.LastRunAt = &at
	s.LastRunIDs = runIDs
	s.NextDueAt = &nextDue
}
