// Package config собирает настройки Stagehand из переменных окружения.
//
// Все настройки читаются один раз при старте процесса и дальше
// передаются явно (в Driver, Cache, реестр шагов). Глобального
// состояния нет.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// Значения по умолчанию.
const (
	DefaultCacheBucket = "dd-agent-travis-cache"
	DefaultCacheRegion = "us-east-1"
	DefaultCacheScheme = "https"
	DefaultCacheBranch = "master"
)

// Config — настройки одного запуска stagehand.
type Config struct {
	// FlavorVersion — переопределение версии сервиса (FLAVOR_VERSION).
	FlavorVersion string

	// IntegrationsDir — корень установки сервисов (INTEGRATIONS_DIR).
	IntegrationsDir string

	// VolatileDir — временная директория (VOLATILE_DIR).
	VolatileDir string

	// PipCache — кэш pip (PIP_CACHE).
	PipCache string

	// BuildDir — корень репозитория с тестами (TRAVIS_BUILD_DIR).
	BuildDir string

	// PythonVersion — версия python для тестов (TRAVIS_PYTHON_VERSION).
	PythonVersion string

	// Travis — запуск внутри Travis (TRAVIS).
	Travis bool

	// CI — полный CI-контекст (CI). Включает стадии before_cache/cache.
	CI bool

	// EventType, Commit, Branch — контекст сборки Travis.
	EventType string
	Commit    string
	Branch    string

	// Cache — настройки удалённого кэша артефактов.
	Cache CacheConfig

	// SkipCleanup — не выполнять cleanup (SKIP_CLEANUP).
	SkipCleanup bool

	// SkipTest — не запускать тесты (SKIP_TEST).
	SkipTest bool

	// NoseFilter — дополнительный фильтр атрибутов nose (NOSE_FILTER).
	NoseFilter string

	// Concurrency — количество параллельных job'ов make (CONCURRENCY).
	Concurrency int

	// FlavorsDir — директория с переопределёнными описаниями flavors.
	FlavorsDir string

	// DatabaseURL — Postgres для истории запусков (DB_URL). Пусто — отключено.
	DatabaseURL string

	// RabbitMQURL — брокер для событий запусков (RABBITMQ_URL). Пусто — отключено.
	RabbitMQURL string

	// PushgatewayURL — Prometheus Pushgateway (PUSHGATEWAY_URL).
	PushgatewayURL string

	// MetricsTextfile — файл для node_exporter textfile collector (METRICS_TEXTFILE).
	MetricsTextfile string
}

// CacheConfig — настройки кэша артефактов.
type CacheConfig struct {
	Bucket          string
	Region          string
	Scheme          string
	Endpoint        string
	Branch          string
	AccessKeyID     string
	SecretAccessKey string
	Debug           bool
}

// Load читает конфигурацию через getenv.
//
// getenv передаётся явно, чтобы тесты не трогали окружение процесса.
func Load(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		FlavorVersion:   getenv("FLAVOR_VERSION"),
		IntegrationsDir: getenv("INTEGRATIONS_DIR"),
		VolatileDir:     getenv("VOLATILE_DIR"),
		PipCache:        getenv("PIP_CACHE"),
		BuildDir:        getenv("TRAVIS_BUILD_DIR"),
		PythonVersion:   getenv("TRAVIS_PYTHON_VERSION"),
		Travis:          getenv("TRAVIS") != "",
		CI:              getenv("CI") != "",
		EventType:       getenv("TRAVIS_EVENT_TYPE"),
		Commit:          getenv("TRAVIS_COMMIT"),
		Branch:          getenv("TRAVIS_BRANCH"),
		SkipCleanup:     getenv("SKIP_CLEANUP") != "",
		SkipTest:        getenv("SKIP_TEST") != "",
		NoseFilter:      getenv("NOSE_FILTER"),
		FlavorsDir:      getenv("STAGEHAND_FLAVORS_DIR"),
		DatabaseURL:     getenv("DB_URL"),
		RabbitMQURL:     getenv("RABBITMQ_URL"),
		PushgatewayURL:  getenv("PUSHGATEWAY_URL"),
		MetricsTextfile: getenv("METRICS_TEXTFILE"),
		Cache: CacheConfig{
			Bucket:          valueOr(getenv("CACHE_BUCKET"), DefaultCacheBucket),
			Region:          valueOr(getenv("CACHE_REGION"), DefaultCacheRegion),
			Scheme:          valueOr(getenv("CACHE_SCHEME"), DefaultCacheScheme),
			Endpoint:        getenv("CACHE_ENDPOINT"),
			Branch:          valueOr(getenv("CACHE_BRANCH"), DefaultCacheBranch),
			AccessKeyID:     getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: getenv("AWS_SECRET_ACCESS_KEY"),
			Debug:           getenv("DEBUG_CACHE") != "",
		},
	}

	cfg.Concurrency = runtime.NumCPU()
	if v := getenv("CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid CONCURRENCY %q: must be a positive integer", v)
		}
		cfg.Concurrency = n
	}

	if cfg.BuildDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve build dir: %w", err)
		}
		cfg.BuildDir = wd
	}
	if cfg.IntegrationsDir == "" {
		cfg.IntegrationsDir = filepath.Join(cfg.BuildDir, "embedded")
	}
	if cfg.VolatileDir == "" {
		cfg.VolatileDir = filepath.Join(os.TempDir(), "stagehand")
	}
	if cfg.PipCache == "" {
		cfg.PipCache = filepath.Join(cfg.BuildDir, ".cache", "pip")
	}

	return cfg, nil
}

// FromEnv читает конфигурацию из окружения процесса.
func FromEnv() (*Config, error) {
	return Load(os.Getenv)
}

// IsPullRequest возвращает true для сборок pull request в Travis.
func (c *Config) IsPullRequest() bool {
	return c.Travis && c.EventType == "pull_request"
}

// Environ возвращает переменные, которые получают команды стадий.
//
// Значения по умолчанию, вычисленные в Load, экспортируются обратно,
// чтобы скрипты видели те же пути, что и сам stagehand.
func (c *Config) Environ() []string {
	env := os.Environ()
	set := map[string]string{
		"INTEGRATIONS_DIR": c.IntegrationsDir,
		"VOLATILE_DIR":     c.VolatileDir,
		"PIP_CACHE":        c.PipCache,
		"TRAVIS_BUILD_DIR": c.BuildDir,
		"CONCURRENCY":      strconv.Itoa(c.Concurrency),
	}

	result := make([]string, 0, len(env)+len(set))
	for _, kv := range env {
		key, _, _ := strings.Cut(kv, "=")
		if _, override := set[key]; override {
			continue
		}
		result = append(result, kv)
	}
	for key, val := range set {
		result = append(result, key+"="+val)
	}
	return result
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
