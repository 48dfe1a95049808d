package domain

// RunStatus — статус запуска flavor.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → SUCCEEDED
//	                  ↘ FAILED
//	        ↘ SKIPPED (изменения не затрагивают flavor)
type RunStatus string

const (
	// RunStatusPending — run создан, стадии ещё не запускались.
	RunStatusPending RunStatus = "PENDING"

	// RunStatusRunning — стадии выполняются.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusSucceeded — все стадии завершились успешно.
	RunStatusSucceeded RunStatus = "SUCCEEDED"

	// RunStatusFailed — одна из стадий (или cleanup) завершилась с ошибкой.
	RunStatusFailed RunStatus = "FAILED"

	// RunStatusSkipped — запуск пропущен: изменения pull request'а
	// не затрагивают flavor.
	RunStatusSkipped RunStatus = "SKIPPED"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusSkipped:
		return true
	default:
		return false
	}
}

// IsSuccess возвращает true для статусов, при которых процесс
// завершается с кодом 0.
func (s RunStatus) IsSuccess() bool {
	return s == RunStatusSucceeded || s == RunStatusSkipped
}

// ParseRunStatus парсит строку в RunStatus.
func ParseRunStatus(s string) RunStatus {
	switch s {
	case "RUNNING":
		return RunStatusRunning
	case "SUCCEEDED":
		return RunStatusSucceeded
	case "FAILED":
		return RunStatusFailed
	case "SKIPPED":
		return RunStatusSkipped
	default:
		return RunStatusPending
	}
}

// StageStatus — статус выполнения стадии.
type StageStatus string

const (
	// StageStatusSucceeded — действия стадии выполнены.
	StageStatusSucceeded StageStatus = "SUCCEEDED"

	// StageStatusFailed — стадия завершилась с ошибкой.
	StageStatusFailed StageStatus = "FAILED"

	// StageStatusSkipped — постусловие стадии уже выполнено
	// (например, сервис уже установлен), действия не запускались.
	StageStatusSkipped StageStatus = "SKIPPED"
)
