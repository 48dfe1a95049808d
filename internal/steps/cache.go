package steps

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/Stagehand/internal/telemetry"
)

const (
	// StepTypeCache — тип шага работы с кэшем артефактов.
	StepTypeCache = "cache"

	cacheOpSetup = "setup"
	cacheOpPush  = "push"
	cacheOpAdd   = "add"

	configPaths = "paths"
)

// CacheStep — операции с кэшем артефактов запуска.
//
// Конфигурация:
//
//	cache: setup                  # fetch + регистрация cache_dirs
//	cache: add
//	paths: ["{{ .RootDir }}"]
//	cache: push
//
// Ошибки кэша никогда не ломают стадию: они логируются, а шаг
// возвращает успех с outputs.error.
type CacheStep struct{}

// NewCacheStep создаёт CacheStep.
func NewCacheStep() *CacheStep {
	return &CacheStep{}
}

// Type возвращает тип шага.
func (s *CacheStep) Type() string {
	return StepTypeCache
}

// Execute выполняет операцию над кэшем.
func (s *CacheStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	op := GetConfigString(req.Config, StepTypeCache)
	switch op {
	case cacheOpSetup, cacheOpPush, cacheOpAdd:
	default:
		return nil, fmt.Errorf("%w: %s: operation must be setup, add or push, got %q",
			ErrInvalidConfig, StepTypeCache, op)
	}

	logger := telemetry.FromContext(ctx)

	if req.Cache == nil {
		logger.Debug("no cache configured for run", "step", req.StepID)
		return NewResponse(map[string]any{"operation": op, "skipped": true}), nil
	}

	var err error
	switch op {
	case cacheOpSetup:
		err = req.Cache.Setup(ctx)
	case cacheOpAdd:
		req.Cache.Add(GetConfigStrings(req.Config, configPaths)...)
	case cacheOpPush:
		err = req.Cache.Push(ctx)
	}

	outputs := map[string]any{"operation": op}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: %v", ErrStepCancelled, err)
		}
		logger.Warn("cache operation failed", "step", req.StepID, "operation", op, "error", err)
		outputs["error"] = err.Error()
	}

	return NewResponse(outputs), nil
}
