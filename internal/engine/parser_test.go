package engine

import (
	"errors"
	"testing"

	"github.com/shaiso/Stagehand/internal/domain"
)

const redisSpec = `
name: redis
version: "3.2.0"
root_dir: "{{ .IntegrationsDir }}/redis_{{ .Version }}"
provides: [redis]
paths:
  - "ci/redis*"
cache_dirs:
  - "{{ .RootDir }}"
stages:
  install:
    skip_if_exists: "{{ .RootDir }}/src/redis-server"
    actions:
      - run: curl -s -L -o redis.tar.gz http://download.redis.io/releases/redis-{{ .Version }}.tar.gz
        dir: "{{ .VolatileDir }}"
      - run: make -j {{ .Concurrency }}
  before_script:
    actions:
      - run: "{{ .RootDir }}/src/redis-server --port 16379 --daemonize yes"
      - wait: 16379
        timeout: 10s
  before_cache:
    depends_on: [cleanup]
  cleanup:
    actions:
      - run: "{{ .RootDir }}/src/redis-cli -p 16379 shutdown"
        ignore_error: true
`

func TestParseFlavorSpec_Valid(t *testing.T) {
	spec, err := ParseFlavorSpec([]byte(redisSpec))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if spec.Name != "redis" {
		t.Errorf("expected name redis, got %q", spec.Name)
	}
	if spec.Version != "3.2.0" {
		t.Errorf("expected version 3.2.0, got %q", spec.Version)
	}

	install, ok := spec.Stages[domain.StageInstall]
	if !ok {
		t.Fatal("install stage missing")
	}
	if len(install.Actions) != 2 {
		t.Errorf("expected 2 install actions, got %d", len(install.Actions))
	}
	if install.Actions[0].Type() != domain.ActionRun {
		t.Errorf("expected run action, got %q", install.Actions[0].Type())
	}

	wait := spec.Stages[domain.StageBeforeScript].Actions[1]
	if wait.Type() != domain.ActionWait {
		t.Errorf("expected wait action, got %q", wait.Type())
	}
	if wait["wait"] != 16379 {
		t.Errorf("expected wait port 16379, got %v (%T)", wait["wait"], wait["wait"])
	}

	deps := spec.Stages[domain.StageBeforeCache].DependsOn
	if len(deps) != 1 || deps[0] != domain.StageCleanup {
		t.Errorf("unexpected before_cache deps: %v", deps)
	}
}

func TestParseFlavorSpec_Empty(t *testing.T) {
	_, err := ParseFlavorSpec(nil)
	if !errors.Is(err, ErrInvalidSpec) {
		t.Errorf("expected ErrInvalidSpec, got %v", err)
	}
}

func TestParseFlavorSpec_UnknownField(t *testing.T) {
	_, err := ParseFlavorSpec([]byte("name: redis\nstagez: {}\n"))
	if !errors.Is(err, ErrInvalidSpec) {
		t.Errorf("expected ErrInvalidSpec, got %v", err)
	}
}

func TestValidate_EmptyName(t *testing.T) {
	tests := []struct {
		name string
		spec *domain.FlavorSpec
	}{
		{name: "nil spec", spec: nil},
		{name: "empty name", spec: &domain.FlavorSpec{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.spec)
			if !errors.Is(err, ErrEmptyName) {
				t.Errorf("expected ErrEmptyName, got %v", err)
			}
		})
	}
}

func TestValidate_InvalidName(t *testing.T) {
	err := Validate(&domain.FlavorSpec{Name: "Redis Server"})
	if !errors.Is(err, ErrInvalidSpec) {
		t.Errorf("expected ErrInvalidSpec, got %v", err)
	}
}

func TestValidate_UnknownStage(t *testing.T) {
	_, err := ParseFlavorSpec([]byte(`
name: redis
stages:
  deploy:
    actions:
      - run: "true"
`))
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if !errors.Is(vErr.Err, ErrUnknownStage) {
		t.Errorf("expected ErrUnknownStage, got %v", vErr.Err)
	}
	if vErr.Flavor != "redis" {
		t.Errorf("expected flavor redis in error, got %q", vErr.Flavor)
	}
}

func TestValidate_EmptyAction(t *testing.T) {
	spec := &domain.FlavorSpec{
		Name: "redis",
		Stages: map[domain.StageName]domain.StageDef{
			domain.StageInstall: {Actions: []domain.ActionDef{{}}},
		},
	}

	err := Validate(spec)
	if !errors.Is(err, ErrEmptyAction) {
		t.Errorf("expected ErrEmptyAction, got %v", err)
	}
}

func TestValidate_UnknownActionType(t *testing.T) {
	spec := &domain.FlavorSpec{
		Name: "redis",
		Stages: map[domain.StageName]domain.StageDef{
			domain.StageInstall: {Actions: []domain.ActionDef{{"transform": "x"}}},
		},
	}

	err := Validate(spec)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if !errors.Is(vErr.Err, ErrUnknownActionType) {
		t.Errorf("expected ErrUnknownActionType, got %v", vErr.Err)
	}
	if vErr.Stage != "install" {
		t.Errorf("expected stage install, got %q", vErr.Stage)
	}
}

func TestValidate_AmbiguousAction(t *testing.T) {
	spec := &domain.FlavorSpec{
		Name: "redis",
		Stages: map[domain.StageName]domain.StageDef{
			domain.StageScript: {Actions: []domain.ActionDef{{"run": "x", "wait": 80}}},
		},
	}

	err := Validate(spec)
	if !errors.Is(err, ErrAmbiguousAction) {
		t.Errorf("expected ErrAmbiguousAction, got %v", err)
	}
}

func TestValidate_SelfDependency(t *testing.T) {
	spec := &domain.FlavorSpec{
		Name: "redis",
		Stages: map[domain.StageName]domain.StageDef{
			domain.StageScript: {DependsOn: []domain.StageName{domain.StageScript}},
		},
	}

	err := Validate(spec)
	if !errors.Is(err, ErrSelfDependency) {
		t.Errorf("expected ErrSelfDependency, got %v", err)
	}
}

func TestValidate_MissingDependency(t *testing.T) {
	spec := &domain.FlavorSpec{
		Name: "redis",
		Stages: map[domain.StageName]domain.StageDef{
			domain.StageScript: {DependsOn: []domain.StageName{"deploy"}},
		},
	}

	err := Validate(spec)
	if !errors.Is(err, ErrMissingDependency) {
		t.Errorf("expected ErrMissingDependency, got %v", err)
	}
}

func TestIsValidActionType(t *testing.T) {
	for _, typ := range []string{"run", "wait", "delay", "kill", "http", "test", "cache"} {
		if !IsValidActionType(typ) {
			t.Errorf("%s should be valid", typ)
		}
	}
	if IsValidActionType("parallel") {
		t.Error("parallel should not be valid")
	}
}
