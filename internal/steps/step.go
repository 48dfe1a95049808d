package steps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/shaiso/Stagehand/internal/engine"
)

// Ошибки шагов.
var (
	// ErrStepNotFound — тип шага не найден в реестре.
	ErrStepNotFound = errors.New("step type not found")

	// ErrInvalidConfig — невалидная конфигурация шага.
	ErrInvalidConfig = errors.New("invalid step config")

	// ErrStepTimeout — шаг превысил таймаут.
	ErrStepTimeout = errors.New("step execution timeout")

	// ErrStepCancelled — выполнение шага отменено.
	ErrStepCancelled = errors.New("step execution cancelled")
)

// Step — интерфейс для типов действий стадии.
//
// Каждый тип действия (run, wait, delay, kill, http, test, cache)
// реализует этот интерфейс.
type Step interface {
	// Type возвращает тип шага.
	Type() string

	// Execute выполняет шаг и возвращает результат.
	// Шаг должен проверять ctx.Done() для graceful shutdown.
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// Cache — кэш артефактов текущего запуска, доступный действию cache.
type Cache interface {
	Setup(ctx context.Context) error
	Push(ctx context.Context) error
	Add(paths ...string)
}

// Request — входные данные для выполнения шага.
type Request struct {
	// StepID — идентификатор действия: "redis/install#0".
	StepID string

	// Config — конфигурация действия (уже отрендеренная через
	// engine.RenderConfig). Ключ типа тоже присутствует.
	Config map[string]any

	// TemplateContext — контекст flavor'а: имя, версия, пути.
	TemplateContext *engine.Context

	// Timeout — таймаут выполнения шага.
	// Если 0, используется таймаут по умолчанию.
	Timeout time.Duration

	// Env — окружение для внешних команд ("KEY=VALUE").
	Env []string

	// Dir — рабочая директория команд по умолчанию.
	Dir string

	// Output — куда пишется вывод команд. Nil — вывод отбрасывается.
	Output io.Writer

	// Cache — кэш артефактов запуска. Может быть nil.
	Cache Cache
}

// Response — результат выполнения шага.
type Response struct {
	// Outputs — выходные данные шага (код выхода, статус ответа...).
	Outputs map[string]any
}

// NewRequest создаёт новый Request.
func NewRequest(stepID string, config map[string]any, tmplCtx *engine.Context, timeout time.Duration) *Request {
	if config == nil {
		config = make(map[string]any)
	}
	return &Request{
		StepID:          stepID,
		Config:          config,
		TemplateContext: tmplCtx,
		Timeout:         timeout,
	}
}

// NewResponse создаёт новый Response с outputs.
func NewResponse(outputs map[string]any) *Response {
	if outputs == nil {
		outputs = make(map[string]any)
	}
	return &Response{
		Outputs: outputs,
	}
}

// EmptyResponse возвращает пустой Response.
func EmptyResponse() *Response {
	return &Response{
		Outputs: make(map[string]any),
	}
}

// GetConfigString извлекает строковое значение из конфига.
func GetConfigString(config map[string]any, key string) string {
	if v, ok := config[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetConfigInt извлекает числовое значение из конфига.
func GetConfigInt(config map[string]any, key string) int {
	if v, ok := config[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return 0
}

// GetConfigBool извлекает булево значение из конфига.
func GetConfigBool(config map[string]any, key string, defaultVal bool) bool {
	if v, ok := config[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return defaultVal
}

// GetConfigMap извлекает map из конфига.
func GetConfigMap(config map[string]any, key string) map[string]any {
	if v, ok := config[key]; ok {
		if m, ok := v.(map[string]any); ok {
			return m
		}
	}
	return nil
}

// GetConfigMapString извлекает map[string]string из конфига.
// Нестроковые значения (числа из YAML) приводятся к строке.
func GetConfigMapString(config map[string]any, key string) map[string]string {
	if v, ok := config[key]; ok {
		switch m := v.(type) {
		case map[string]string:
			return m
		case map[string]any:
			result := make(map[string]string)
			for k, val := range m {
				switch s := val.(type) {
				case string:
					result[k] = s
				case nil:
					result[k] = ""
				default:
					result[k] = fmt.Sprint(s)
				}
			}
			return result
		}
	}
	return nil
}

// GetConfigStrings извлекает список строк из конфига.
// Одиночная строка превращается в список из одного элемента.
func GetConfigStrings(config map[string]any, key string) []string {
	v, ok := config[key]
	if !ok {
		return nil
	}
	switch s := v.(type) {
	case string:
		return []string{s}
	case []string:
		return s
	case []any:
		result := make([]string, 0, len(s))
		for _, item := range s {
			result = append(result, fmt.Sprint(item))
		}
		return result
	}
	return nil
}

// GetConfigDuration извлекает длительность из конфига.
//
// Строка разбирается time.ParseDuration ("3s", "500ms"), строка из цифр
// и числа считаются секундами. Если ключа нет, возвращается defaultVal.
func GetConfigDuration(config map[string]any, key string, defaultVal time.Duration) (time.Duration, error) {
	v, ok := config[key]
	if !ok || v == nil {
		return defaultVal, nil
	}

	var d time.Duration
	switch t := v.(type) {
	case string:
		if n, err := strconv.ParseFloat(t, 64); err == nil {
			d = time.Duration(n * float64(time.Second))
			break
		}
		parsed, err := time.ParseDuration(t)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
		}
		d = parsed
	case int:
		d = time.Duration(t) * time.Second
	case int64:
		d = time.Duration(t) * time.Second
	case float64:
		d = time.Duration(t * float64(time.Second))
	default:
		return 0, fmt.Errorf("%w: %s: unsupported duration %T", ErrInvalidConfig, key, v)
	}

	if d < 0 {
		return 0, fmt.Errorf("%w: %s: negative duration", ErrInvalidConfig, key)
	}
	return d, nil
}

// contextError переводит ошибку отменённого контекста в ошибку шага.
func contextError(ctx context.Context) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrStepTimeout, ctx.Err())
	case ctx.Err() != nil:
		return fmt.Errorf("%w: %v", ErrStepCancelled, ctx.Err())
	}
	return nil
}
