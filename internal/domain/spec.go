package domain

import "sort"

// FlavorSpec — описание flavor'а (YAML-файл в каталоге определений).
//
// Это "программа" для stagehand: какие стадии есть у flavor'а и какие
// действия они выполняют.
type FlavorSpec struct {
	// Name — имя flavor'а.
	Name string `yaml:"name" validate:"required,flavorname"`

	// Version — версия сервиса по умолчанию.
	Version string `yaml:"version,omitempty"`

	// Description — описание для `stagehand list`.
	Description string `yaml:"description,omitempty"`

	// RootDir — шаблон корня установки.
	// Например: "{{ .IntegrationsDir }}/redis_{{ .Version }}"
	RootDir string `yaml:"root_dir,omitempty"`

	// Provides — теги для фильтра тестов.
	Provides []string `yaml:"provides,omitempty"`

	// Paths — glob-шаблоны путей для анализа изменений.
	Paths []string `yaml:"paths,omitempty"`

	// AlwaysRun — не пропускать flavor в pull request'ах.
	AlwaysRun bool `yaml:"always_run,omitempty"`

	// CacheDirs — шаблоны директорий для кэша артефактов.
	CacheDirs []string `yaml:"cache_dirs,omitempty"`

	// Env — переменные окружения для всех команд flavor'а (шаблоны).
	Env map[string]string `yaml:"env,omitempty"`

	// Stages — стадии flavor'а. Ключ — имя стадии.
	Stages map[StageName]StageDef `yaml:"stages,omitempty" validate:"dive,keys,stagename,endkeys"`
}

// StageDef — описание стадии.
type StageDef struct {
	// SkipIfExists — если путь существует, действия стадии не выполняются.
	// Делает install идемпотентным.
	SkipIfExists string `yaml:"skip_if_exists,omitempty"`

	// SkipIfFound — если команда найдена в PATH, действия не выполняются.
	SkipIfFound string `yaml:"skip_if_found,omitempty"`

	// DependsOn — дополнительные стадии-предпосылки этого же flavor'а.
	// Например, before_cache: [cleanup].
	DependsOn []StageName `yaml:"depends_on,omitempty"`

	// Actions — действия стадии, выполняются последовательно.
	Actions []ActionDef `yaml:"actions,omitempty" validate:"dive,required"`
}

// Типы действий.
const (
	ActionRun   = "run"
	ActionWait  = "wait"
	ActionDelay = "delay"
	ActionKill  = "kill"
	ActionHTTP  = "http"
	ActionTest  = "test"
	ActionCache = "cache"
)

// ActionTypes — все известные типы действий.
var ActionTypes = []string{
	ActionRun,
	ActionWait,
	ActionDelay,
	ActionKill,
	ActionHTTP,
	ActionTest,
	ActionCache,
}

// ActionDef — одно действие стадии.
//
// Тип задаётся ключом: `{run: "make", dir: "..."}` — действие run,
// остальные ключи — его настройки. Значение ключа типа тоже остаётся
// в конфигурации под своим именем.
type ActionDef map[string]any

// Types возвращает ключи действия, совпадающие с известными типами
// (в отсортированном порядке).
func (a ActionDef) Types() []string {
	var types []string
	for _, t := range ActionTypes {
		if _, ok := a[t]; ok {
			types = append(types, t)
		}
	}
	sort.Strings(types)
	return types
}

// Type возвращает тип действия или пустую строку, если тип не
// определён однозначно.
func (a ActionDef) Type() string {
	types := a.Types()
	if len(types) != 1 {
		return ""
	}
	return types[0]
}

// HasStage возвращает true, если в описании есть стадия с действиями
// или зависимостями.
func (s *FlavorSpec) HasStage(name StageName) bool {
	_, ok := s.Stages[name]
	return ok
}
