package domain

// Flavor — набор тестовых фикстур для одного внешнего сервиса
// (cassandra, redis, postgres...).
//
// Создаётся при компиляции описания и не меняется во время запуска.
type Flavor struct {
	// Name — имя flavor'а, оно же имя команды CLI.
	Name string `json:"name"`

	// Version — версия сервиса (FLAVOR_VERSION переопределяет значение
	// из описания).
	Version string `json:"version,omitempty"`

	// RootDir — корень установки сервиса.
	RootDir string `json:"root_dir,omitempty"`

	// Provides — теги для фильтра тестов nose (requires in [...]).
	Provides []string `json:"provides,omitempty"`

	// Paths — glob-шаблоны файлов, изменение которых затрагивает flavor.
	Paths []string `json:"paths,omitempty"`

	// AlwaysRun — flavor не пропускается в pull request'ах.
	AlwaysRun bool `json:"always_run,omitempty"`

	// CacheDirs — директории, которые сохраняются в кэш артефактов.
	CacheDirs []string `json:"cache_dirs,omitempty"`

	// DefinitionHash — md5 описания (часть slug кэша).
	DefinitionHash string `json:"definition_hash,omitempty"`
}

// AlwaysRunFlavors — flavors, которые запускаются при любых изменениях.
var AlwaysRunFlavors = []string{"default", "core_integration", "checks_mock"}

// IsAlwaysRun возвращает true, если flavor нельзя пропускать.
func (f *Flavor) IsAlwaysRun() bool {
	if f.AlwaysRun {
		return true
	}
	for _, name := range AlwaysRunFlavors {
		if f.Name == name {
			return true
		}
	}
	return false
}
