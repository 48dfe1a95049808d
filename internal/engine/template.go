package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/Masterminds/semver/v3"
)

// Context — контекст для рендеринга шаблонов описания flavor'а.
//
// Используется в Go templates для доступа к данным:
//   - {{ .Name }}, {{ .Version }}, {{ .MajorMinor }}
//   - {{ .RootDir }}, {{ .IntegrationsDir }}, {{ .VolatileDir }}
//   - {{ .Env.VAR_NAME }}
type Context struct {
	// Name — имя flavor'а.
	Name string `json:"name"`

	// Version — версия сервиса.
	Version string `json:"version"`

	// MajorMinor — версия в виде "X.Y" (для URL дистрибутивов).
	MajorMinor string `json:"major_minor"`

	// RootDir — корень установки flavor'а (уже отрендеренный).
	RootDir string `json:"root_dir"`

	IntegrationsDir string `json:"integrations_dir"`
	VolatileDir     string `json:"volatile_dir"`
	BuildDir        string `json:"build_dir"`
	PipCache        string `json:"pip_cache"`
	PythonVersion   string `json:"python_version"`

	// Concurrency — количество параллельных job'ов make.
	Concurrency int `json:"concurrency"`

	// Provides — теги flavor'а.
	Provides []string `json:"provides"`

	// Env — переменные окружения.
	Env map[string]string `json:"env"`
}

// NewContext создаёт контекст для flavor'а name версии version.
func NewContext(name, version string) *Context {
	return &Context{
		Name:       name,
		Version:    version,
		MajorMinor: MajorMinor(version),
		Env:        make(map[string]string),
	}
}

// SetEnv устанавливает переменную окружения.
func (c *Context) SetEnv(key, value string) {
	c.Env[key] = value
}

// LoadEnv заполняет Env из списка "KEY=VALUE".
func (c *Context) LoadEnv(environ []string) {
	for _, kv := range environ {
		if key, val, ok := strings.Cut(kv, "="); ok {
			c.Env[key] = val
		}
	}
}

// MajorMinor возвращает "X.Y" для семантической версии.
// Для нераспознанных версий возвращает строку как есть.
func MajorMinor(version string) string {
	if version == "" {
		return ""
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return version
	}
	return strconv.FormatUint(v.Major(), 10) + "." + strconv.FormatUint(v.Minor(), 10)
}

// templateFuncs — дополнительные функции для шаблонов.
var templateFuncs = template.FuncMap{
	// json — сериализует значение в JSON строку
	"json": func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("error: %v", err)
		}
		return string(b)
	},

	// default — возвращает значение по умолчанию, если первый аргумент пустой
	"default": func(def, val any) any {
		if val == nil {
			return def
		}
		if s, ok := val.(string); ok && s == "" {
			return def
		}
		return val
	},

	// coalesce — возвращает первое непустое значение
	"coalesce": func(values ...any) any {
		for _, v := range values {
			if v != nil {
				if s, ok := v.(string); ok && s == "" {
					continue
				}
				return v
			}
		}
		return nil
	},

	// majorMinor — "3.2.1" → "3.2"
	"majorMinor": MajorMinor,

	// semverAtLeast — версия не ниже constraint ("3.0")
	"semverAtLeast": func(min, version string) bool {
		c, err := semver.NewConstraint(">= " + min)
		if err != nil {
			return false
		}
		v, err := semver.NewVersion(version)
		if err != nil {
			return false
		}
		return c.Check(v)
	},

	// join — объединяет слайс строк
	"join": func(sep string, items []string) string {
		return strings.Join(items, sep)
	},

	// split — разбивает строку на слайс
	"split": func(sep, s string) []string {
		return strings.Split(s, sep)
	},

	// quote — экранирует строку для sh
	"quote": func(s string) string {
		return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
	},

	"contains":  strings.Contains,
	"hasPrefix": strings.HasPrefix,
	"hasSuffix": strings.HasSuffix,
	"lower":     strings.ToLower,
	"upper":     strings.ToUpper,
	"trim":      strings.TrimSpace,
	"replace":   strings.ReplaceAll,
}

// Render рендерит строковый шаблон с контекстом.
//
// Шаблон может содержать Go template выражения:
//
//	{{ .RootDir }}/bin/redis-server
//	{{ .Env.HOME }}
//	{{ if semverAtLeast "3.0" .Version }}...{{ end }}
//
// Отсутствующие ключи Env рендерятся пустой строкой.
func Render(tmpl string, ctx *Context) (string, error) {
	// Проверяем, содержит ли строка шаблонные выражения
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	t, err := template.New("").Funcs(templateFuncs).Option("missingkey=zero").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}

	return buf.String(), nil
}

// RenderValue рендерит произвольное значение.
// Рекурсивно обрабатывает map и slice.
func RenderValue(value any, ctx *Context) (any, error) {
	if value == nil {
		return nil, nil
	}

	switch v := value.(type) {
	case string:
		return Render(v, ctx)

	case map[string]any:
		result := make(map[string]any, len(v))
		for key, val := range v {
			rendered, err := RenderValue(val, ctx)
			if err != nil {
				return nil, err
			}
			result[key] = rendered
		}
		return result, nil

	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			rendered, err := RenderValue(val, ctx)
			if err != nil {
				return nil, err
			}
			result[i] = rendered
		}
		return result, nil

	case map[string]string:
		result := make(map[string]string, len(v))
		for key, val := range v {
			rendered, err := Render(val, ctx)
			if err != nil {
				return nil, err
			}
			result[key] = rendered
		}
		return result, nil

	case []string:
		result := make([]string, len(v))
		for i, val := range v {
			rendered, err := Render(val, ctx)
			if err != nil {
				return nil, err
			}
			result[i] = rendered
		}
		return result, nil

	default:
		// Для остальных типов (int, float, bool) возвращаем как есть
		return value, nil
	}
}

// RenderConfig рендерит конфигурацию действия.
// Это обёртка над RenderValue для map[string]any.
func RenderConfig(config map[string]any, ctx *Context) (map[string]any, error) {
	if config == nil {
		return make(map[string]any), nil
	}

	rendered, err := RenderValue(config, ctx)
	if err != nil {
		return nil, err
	}

	result, ok := rendered.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected map, got %T", ErrTemplateRender, rendered)
	}

	return result, nil
}

// RenderStrings рендерит список строк.
func RenderStrings(items []string, ctx *Context) ([]string, error) {
	if len(items) == 0 {
		return nil, nil
	}
	rendered, err := RenderValue(items, ctx)
	if err != nil {
		return nil, err
	}
	return rendered.([]string), nil
}
