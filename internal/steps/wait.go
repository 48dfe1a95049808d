package steps

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/Stagehand/internal/wait"
)

// StepTypeWait — тип шага ожидания готовности.
const StepTypeWait = "wait"

// WaitStep — ждёт готовности сервиса (порт, URL, файл).
//
// Конфигурация:
//
//	wait: 6379                              # порт на localhost
//	wait: http://localhost:9200             # 2xx
//	wait: "{{ .VolatileDir }}/ready.flag"   # файл
//	timeout: 30s                            # по умолчанию 10s
type WaitStep struct {
	waiter *wait.Waiter
}

// NewWaitStep создаёт WaitStep. Если waiter nil, используется waiter
// с настройками по умолчанию.
func NewWaitStep(waiter *wait.Waiter) *WaitStep {
	if waiter == nil {
		waiter = wait.New()
	}
	return &WaitStep{waiter: waiter}
}

// Type возвращает тип шага.
func (s *WaitStep) Type() string {
	return StepTypeWait
}

// Execute ждёт готовности цели.
func (s *WaitStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	target, err := wait.FromValue(req.Config[StepTypeWait])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, StepTypeWait, err)
	}

	timeout, err := GetConfigDuration(req.Config, configTimeout, wait.DefaultTimeout)
	if err != nil {
		return nil, err
	}

	if err := s.waiter.For(ctx, target, timeout); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrStepCancelled, err)
		}
		return nil, err
	}

	return NewResponse(map[string]any{
		"target": target.String(),
	}), nil
}
