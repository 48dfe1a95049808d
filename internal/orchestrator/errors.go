package orchestrator

import (
	"errors"
	"fmt"

	"github.com/shaiso/Stagehand/internal/domain"
)

// Ошибки драйвера.
var (
	// ErrNoStages — не передан пайплайн.
	ErrNoStages = errors.New("pipeline has no stages")
)

// StageError — ошибка стадии пайплайна.
type StageError struct {
	Flavor string
	Stage  domain.StageName
	Err    error
}

// Error реализует интерфейс error.
func (e *StageError) Error() string {
	return fmt.Sprintf("%s: stage %s: %v", e.Flavor, e.Stage, e.Err)
}

// Unwrap возвращает исходную ошибку.
func (e *StageError) Unwrap() error {
	return e.Err
}

// IsStageError проверяет, что ошибка пришла из стадии.
func IsStageError(err error) bool {
	var sErr *StageError
	return errors.As(err, &sErr)
}

// rootType возвращает тип самой глубокой ошибки в цепочке.
func rootType(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return fmt.Sprintf("%T", err)
		}
		err = next
	}
}
