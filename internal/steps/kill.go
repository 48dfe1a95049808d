package steps

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/shaiso/Stagehand/internal/telemetry"
)

const (
	// StepTypeKill — тип шага остановки процесса по pid-файлу.
	StepTypeKill = "kill"

	configSignal    = "signal"
	configMissingOK = "missing_ok"
	configWaitExit  = "wait_exit"

	killPollInterval = 100 * time.Millisecond
)

var signals = map[string]syscall.Signal{
	"TERM": syscall.SIGTERM,
	"KILL": syscall.SIGKILL,
	"INT":  syscall.SIGINT,
	"HUP":  syscall.SIGHUP,
	"QUIT": syscall.SIGQUIT,
}

// KillStep — посылает сигнал процессу, pid которого записан в файле.
//
// Конфигурация:
//
//	kill: "{{ .VolatileDir }}/redis.pid"
//	signal: TERM        # TERM (по умолчанию), KILL, INT, HUP, QUIT
//	missing_ok: true    # нет файла или процесса — не ошибка
//	wait_exit: 10s      # дождаться завершения процесса
type KillStep struct{}

// NewKillStep создаёт KillStep.
func NewKillStep() *KillStep {
	return &KillStep{}
}

// Type возвращает тип шага.
func (s *KillStep) Type() string {
	return StepTypeKill
}

// Execute читает pid-файл и посылает сигнал.
func (s *KillStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	pidFile := GetConfigString(req.Config, StepTypeKill)
	if pidFile == "" {
		return nil, fmt.Errorf("%w: %s: pid file is required", ErrInvalidConfig, StepTypeKill)
	}

	sig, err := parseSignal(GetConfigString(req.Config, configSignal))
	if err != nil {
		return nil, err
	}

	waitExit, err := GetConfigDuration(req.Config, configWaitExit, 0)
	if err != nil {
		return nil, err
	}

	missingOK := GetConfigBool(req.Config, configMissingOK, false)
	logger := telemetry.FromContext(ctx)

	pid, err := ReadPIDFile(pidFile)
	if err != nil {
		if missingOK && errors.Is(err, os.ErrNotExist) {
			logger.Info("pid file not found, nothing to kill", "step", req.StepID, "pid_file", pidFile)
			return NewResponse(map[string]any{"killed": false}), nil
		}
		return nil, err
	}

	proc, err := os.FindProcess(pid)
	if err == nil {
		err = proc.Signal(sig)
	}
	if err != nil {
		if missingOK && errors.Is(err, os.ErrProcessDone) {
			logger.Info("process already exited", "step", req.StepID, "pid", pid)
			return NewResponse(map[string]any{"killed": false, "pid": pid}), nil
		}
		return nil, fmt.Errorf("signal pid %d: %w", pid, err)
	}

	logger.Debug("signal sent", "step", req.StepID, "pid", pid, "signal", sig.String())

	if waitExit > 0 {
		if err := waitProcessExit(ctx, proc, waitExit); err != nil {
			return nil, err
		}
	}

	return NewResponse(map[string]any{"killed": true, "pid": pid}), nil
}

// ReadPIDFile читает pid из файла.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read pid file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("%w: %s: bad pid in %s", ErrInvalidConfig, StepTypeKill, path)
	}
	return pid, nil
}

func parseSignal(name string) (syscall.Signal, error) {
	if name == "" {
		return syscall.SIGTERM, nil
	}
	name = strings.TrimPrefix(strings.ToUpper(name), "SIG")
	sig, ok := signals[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s: unknown signal %q", ErrInvalidConfig, StepTypeKill, name)
	}
	return sig, nil
}

// waitProcessExit опрашивает процесс нулевым сигналом, пока он жив.
func waitProcessExit(ctx context.Context, proc *os.Process, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(killPollInterval)
	defer ticker.Stop()

	for {
		if err := proc.Signal(syscall.Signal(0)); err != nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: pid %d still running after %s", ErrStepTimeout, proc.Pid, timeout)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrStepCancelled, ctx.Err())
		case <-ticker.C:
		}
	}
}
