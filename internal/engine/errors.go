package engine

import "errors"

// Ошибки валидации описания flavor'а.
var (
	// ErrInvalidSpec — описание не удалось разобрать.
	ErrInvalidSpec = errors.New("invalid flavor spec")

	// ErrEmptyName — у flavor'а нет имени.
	ErrEmptyName = errors.New("flavor spec has no name")

	// ErrUnknownStage — стадия с неизвестным именем.
	ErrUnknownStage = errors.New("unknown stage")

	// ErrEmptyAction — действие без настроек.
	ErrEmptyAction = errors.New("empty action")

	// ErrUnknownActionType — у действия нет ключа известного типа.
	ErrUnknownActionType = errors.New("unknown action type")

	// ErrAmbiguousAction — у действия несколько ключей-типов.
	ErrAmbiguousAction = errors.New("action has several types")

	// ErrMissingDependency — стадия зависит от неизвестной стадии.
	ErrMissingDependency = errors.New("stage depends on unknown stage")

	// ErrCyclicDependency — обнаружен цикл в зависимостях.
	ErrCyclicDependency = errors.New("cyclic dependency detected")

	// ErrSelfDependency — стадия зависит от самой себя.
	ErrSelfDependency = errors.New("stage depends on itself")
)

// Ошибки рендеринга шаблонов.
var (
	// ErrTemplateRender — ошибка рендеринга шаблона.
	ErrTemplateRender = errors.New("template render failed")

	// ErrTemplateParse — ошибка парсинга шаблона.
	ErrTemplateParse = errors.New("template parse failed")
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	Flavor  string // flavor, в описании которого ошибка
	Stage   string // стадия, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	msg := e.Message
	if e.Stage != "" {
		msg = "stage " + e.Stage + ": " + msg
	}
	if e.Flavor != "" {
		msg = e.Flavor + ": " + msg
	}
	return msg
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(stage, field, message string, err error) *ValidationError {
	return &ValidationError{
		Stage:   stage,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
