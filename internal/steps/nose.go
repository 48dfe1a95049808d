package steps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/shaiso/Stagehand/internal/telemetry"
)

const (
	// StepTypeTest — тип шага запуска тестов.
	StepTypeTest = "test"

	configRequires = "requires"
	configRunner   = "runner"

	defaultTestRunner = "nosetests"
	defaultNoseFilter = "1"
)

// untaggedFlavors — flavors, тесты которых не помечены атрибутом requires.
var untaggedFlavors = []string{"default", "checks_mock"}

// coreFlavors — flavors, тесты которых лежат в tests/core.
var coreFlavors = []string{"default", "core_integration"}

// TestOptions — настройки запуска тестов из окружения.
type TestOptions struct {
	// Skip — не запускать тесты (SKIP_TEST).
	Skip bool

	// NoseFilter — дополнительный фильтр атрибутов (NOSE_FILTER).
	NoseFilter string
}

// TestStep — запускает тесты flavor'а с фильтром атрибутов nose.
//
// Конфигурация:
//
//	test: true
//	requires: [redis]   # по умолчанию — имя и provides flavor'а
//	dir: tests/checks   # по умолчанию зависит от flavor'а
//	runner: nosetests
//
// Команда: PATH="$INTEGRATIONS_DIR/bin:$PATH" nosetests -s -v -A "<filter>" <dir>
type TestStep struct {
	opts  TestOptions
	shell string
}

// NewTestStep создаёт TestStep.
func NewTestStep(opts TestOptions) *TestStep {
	return &TestStep{opts: opts, shell: "sh"}
}

// Type возвращает тип шага.
func (s *TestStep) Type() string {
	return StepTypeTest
}

// Execute запускает тесты.
func (s *TestStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	if enabled, ok := req.Config[StepTypeTest].(bool); ok && !enabled {
		return NewResponse(map[string]any{"skipped": true}), nil
	}

	if s.opts.Skip {
		telemetry.FromContext(ctx).Info("skipping tests", "step", req.StepID, "reason", "SKIP_TEST")
		return NewResponse(map[string]any{"skipped": true}), nil
	}

	tc := req.TemplateContext
	if tc == nil {
		return nil, fmt.Errorf("%w: %s: template context is required", ErrInvalidConfig, StepTypeTest)
	}

	flavors := GetConfigStrings(req.Config, configRequires)
	if len(flavors) == 0 {
		flavors = TestFlavors(tc.Name, tc.Provides)
	}

	dir := GetConfigString(req.Config, configDir)
	if dir == "" {
		dir = TestDirectory(flavors)
	}

	runner := GetConfigString(req.Config, configRunner)
	if runner == "" {
		runner = defaultTestRunner
	}

	filter := NoseAttributeFilter(flavors, s.opts.NoseFilter)
	command := fmt.Sprintf("%s -s -v -A %s %s", runner, shellQuote(filter), shellQuote(dir))

	env := req.Env
	if tc.IntegrationsDir != "" {
		env = MergeEnv(env, map[string]string{
			"PATH": filepath.Join(tc.IntegrationsDir, "bin") + string(os.PathListSeparator) + lookupEnv(env, "PATH"),
		})
	}

	workDir := req.Dir
	if workDir == "" {
		workDir = tc.BuildDir
	}

	timeout, err := GetConfigDuration(req.Config, configTimeout, req.Timeout)
	if err != nil {
		return nil, err
	}

	resp, err := runCommand(ctx, req, commandSpec{
		shell:   s.shell,
		command: command,
		dir:     workDir,
		env:     env,
		timeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	resp.Outputs["filter"] = filter
	resp.Outputs["dir"] = dir
	return resp, nil
}

// TestFlavors возвращает значения атрибута requires для flavor'а.
func TestFlavors(name string, provides []string) []string {
	flavors := []string{name}
	for _, p := range provides {
		if !slices.Contains(flavors, p) {
			flavors = append(flavors, p)
		}
	}
	return flavors
}

// NoseAttributeFilter строит выражение для `nosetests -A`.
//
// Для default и checks_mock выбираются тесты без атрибута requires,
// для остальных — тесты с requires из списка flavors.
func NoseAttributeFilter(flavors []string, extra string) string {
	if extra == "" {
		extra = defaultNoseFilter
	}

	for _, f := range flavors {
		if slices.Contains(untaggedFlavors, f) {
			return "(not requires) and " + extra
		}
	}
	return "(requires in ['" + strings.Join(flavors, "','") + "']) and " + extra
}

// TestDirectory возвращает директорию тестов для flavors.
func TestDirectory(flavors []string) string {
	for _, f := range flavors {
		if slices.Contains(coreFlavors, f) {
			return "tests/core"
		}
	}
	return "tests/checks"
}

func lookupEnv(env []string, key string) string {
	for i := len(env) - 1; i >= 0; i-- {
		if k, v, ok := strings.Cut(env[i], "="); ok && k == key {
			return v
		}
	}
	return ""
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
