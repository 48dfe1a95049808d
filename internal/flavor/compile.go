package flavor

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/Stagehand/internal/cache"
	"github.com/shaiso/Stagehand/internal/config"
	"github.com/shaiso/Stagehand/internal/domain"
	"github.com/shaiso/Stagehand/internal/engine"
	"github.com/shaiso/Stagehand/internal/steps"
	"github.com/shaiso/Stagehand/internal/telemetry"
)

// ErrNoConfig — Compile вызван без конфигурации.
var ErrNoConfig = errors.New("flavor: config is required")

// Options — параметры компиляции.
type Options struct {
	// Config — настройки запуска. Обязательно.
	Config *config.Config

	// Registry — реестр действий. Nil — steps.DefaultRegistry.
	Registry *steps.Registry

	// Definition — исходный текст описания (для хэша и slug кэша).
	// Nil — хэш считается от сериализованного spec.
	Definition []byte

	// Output — куда пишется вывод команд.
	Output io.Writer

	// Console — баннеры стадий. Nil — без баннеров.
	Console *telemetry.Console

	Metrics    *telemetry.Metrics
	Logger     *slog.Logger
	HTTPClient *http.Client
}

// Compile компилирует описание flavor'а (и общие стадии common, может
// быть nil) в Pipeline.
//
// Все шаблоны рендерятся здесь, поэтому ошибки в описании видны до
// запуска первой команды.
func Compile(spec, common *domain.FlavorSpec, opts Options) (*Pipeline, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, ErrNoConfig
	}
	if spec == nil {
		return nil, fmt.Errorf("%w: nil spec", ErrUnknownFlavor)
	}

	registry := opts.Registry
	if registry == nil {
		registry = steps.DefaultRegistry(steps.Deps{
			Test: steps.TestOptions{Skip: cfg.SkipTest, NoseFilter: cfg.NoseFilter},
		})
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	version := spec.Version
	if cfg.FlavorVersion != "" {
		version = cfg.FlavorVersion
	}

	tc := engine.NewContext(spec.Name, version)
	tc.IntegrationsDir = cfg.IntegrationsDir
	tc.VolatileDir = cfg.VolatileDir
	tc.BuildDir = cfg.BuildDir
	tc.PipCache = cfg.PipCache
	tc.PythonVersion = cfg.PythonVersion
	tc.Concurrency = cfg.Concurrency
	tc.Provides = append([]string(nil), spec.Provides...)

	environ := cfg.Environ()
	tc.LoadEnv(environ)

	rootDir, err := engine.Render(spec.RootDir, tc)
	if err != nil {
		return nil, fmt.Errorf("%s: root_dir: %w", spec.Name, err)
	}
	tc.RootDir = rootDir

	env := map[string]string{"FLAVOR_VERSION": version}
	if rootDir != "" {
		env["FLAVOR_ROOT"] = rootDir
	}
	for _, s := range []*domain.FlavorSpec{common, spec} {
		if s == nil {
			continue
		}
		if err := renderEnv(s.Env, tc, env); err != nil {
			return nil, fmt.Errorf("%s: env: %w", s.Name, err)
		}
	}
	for k, v := range env {
		tc.SetEnv(k, v)
	}

	definition := opts.Definition
	if definition == nil {
		definition, err = yaml.Marshal(spec)
		if err != nil {
			return nil, fmt.Errorf("%s: hash definition: %w", spec.Name, err)
		}
	}
	sum := md5.Sum(definition)

	var cacheDirs []string
	for _, s := range []*domain.FlavorSpec{common, spec} {
		if s == nil {
			continue
		}
		dirs, err := engine.RenderStrings(s.CacheDirs, tc)
		if err != nil {
			return nil, fmt.Errorf("%s: cache_dirs: %w", s.Name, err)
		}
		cacheDirs = append(cacheDirs, dirs...)
	}

	plan, err := engine.BuildPlan(common, spec)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		Flavor: domain.Flavor{
			Name:           spec.Name,
			Version:        version,
			RootDir:        rootDir,
			Provides:       append([]string(nil), spec.Provides...),
			Paths:          append([]string(nil), spec.Paths...),
			AlwaysRun:      spec.AlwaysRun,
			CacheDirs:      cacheDirs,
			DefinitionHash: hex.EncodeToString(sum[:]),
		},
		tmpl:    tc,
		plan:    plan,
		stages:  make(map[string]*Stage, plan.Size()),
		env:     steps.MergeEnv(environ, env),
		dir:     cfg.BuildDir,
		output:  opts.Output,
		console: opts.Console,
	}

	p.cache = cache.New(cache.Options{
		Bucket:          cfg.Cache.Bucket,
		Region:          cfg.Cache.Region,
		Scheme:          cfg.Cache.Scheme,
		Endpoint:        cfg.Cache.Endpoint,
		AccessKeyID:     cfg.Cache.AccessKeyID,
		SecretAccessKey: cfg.Cache.SecretAccessKey,
		Branch:          cfg.Cache.Branch,
		Debug:           cfg.Cache.Debug,
		Directories:     cacheDirs,
		HTTPClient:      opts.HTTPClient,
		Metrics:         opts.Metrics,
	}, cache.Slug(spec.Name, version, definition), logger)

	for _, node := range plan.Order {
		stage, err := compileStage(spec.Name, node, tc, registry)
		if err != nil {
			return nil, err
		}
		p.stages[node.ID] = stage
	}

	return p, nil
}

// renderEnv рендерит переменные описания в dst. Ключи обрабатываются
// в отсортированном порядке, уже отрендеренные значения видны следующим
// через .Env.
func renderEnv(src map[string]string, tc *engine.Context, dst map[string]string) error {
	keys := make([]string, 0, len(src))
	for k := range src {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v, err := engine.Render(src[k], tc)
		if err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		dst[k] = v
		tc.SetEnv(k, v)
	}
	return nil
}

// compileStage превращает узел плана в список готовых действий.
func compileStage(flavor string, node *engine.Node, tc *engine.Context, registry *steps.Registry) (*Stage, error) {
	stage := &Stage{
		ID:     node.ID,
		Name:   node.Stage,
		Common: node.Common,
	}
	if node.Def == nil {
		return stage, nil
	}

	var err error
	if stage.skipIfExists, err = engine.Render(node.Def.SkipIfExists, tc); err != nil {
		return nil, fmt.Errorf("%s/%s: skip_if_exists: %w", flavor, node.ID, err)
	}
	if stage.skipIfFound, err = engine.Render(node.Def.SkipIfFound, tc); err != nil {
		return nil, fmt.Errorf("%s/%s: skip_if_found: %w", flavor, node.ID, err)
	}

	for i, def := range node.Def.Actions {
		id := fmt.Sprintf("%s/%s#%d", flavor, node.ID, i)

		typ := def.Type()
		step, err := registry.Get(typ)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", id, err)
		}

		config, err := engine.RenderConfig(map[string]any(def), tc)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", id, err)
		}

		stage.actions = append(stage.actions, action{
			id:     id,
			typ:    typ,
			step:   step,
			config: config,
		})
	}

	return stage, nil
}
