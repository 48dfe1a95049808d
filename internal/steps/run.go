package steps

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/shaiso/Stagehand/internal/telemetry"
)

const (
	// StepTypeRun — тип шага shell-команды.
	StepTypeRun = "run"

	configDir         = "dir"
	configEnv         = "env"
	configIgnoreError = "ignore_error"

	// waitDelay — сколько ждать закрытия stdout после завершения
	// процесса (фоновые демоны наследуют дескрипторы).
	waitDelay = 5 * time.Second
)

// RunStep — выполняет shell-команду через `sh -c`.
//
// Конфигурация:
//
//	run: make -j {{ .Concurrency }} install
//	dir: "{{ .RootDir }}"
//	env: {PYTHONPATH: "{{ .RootDir }}/lib"}
//	timeout: 5m
//	ignore_error: true
//
// Outputs:
//
//	{"exit_code": 0}
type RunStep struct {
	shell string
}

// NewRunStep создаёт RunStep.
func NewRunStep() *RunStep {
	return &RunStep{shell: "sh"}
}

// Type возвращает тип шага.
func (s *RunStep) Type() string {
	return StepTypeRun
}

// Execute выполняет команду. Вывод команды пишется в req.Output.
func (s *RunStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	command := GetConfigString(req.Config, StepTypeRun)
	if strings.TrimSpace(command) == "" {
		return nil, fmt.Errorf("%w: %s: command is required", ErrInvalidConfig, StepTypeRun)
	}

	timeout, err := GetConfigDuration(req.Config, configTimeout, req.Timeout)
	if err != nil {
		return nil, err
	}

	dir := GetConfigString(req.Config, configDir)
	if dir == "" {
		dir = req.Dir
	}

	return runCommand(ctx, req, commandSpec{
		shell:       s.shell,
		command:     command,
		dir:         dir,
		env:         MergeEnv(req.Env, GetConfigMapString(req.Config, configEnv)),
		timeout:     timeout,
		ignoreError: GetConfigBool(req.Config, configIgnoreError, false),
	})
}

// commandSpec — параметры запуска внешней команды.
type commandSpec struct {
	shell       string
	command     string
	dir         string
	env         []string
	timeout     time.Duration
	ignoreError bool
}

// runCommand запускает команду и переводит результат в Response.
func runCommand(ctx context.Context, req *Request, spec commandSpec) (*Response, error) {
	logger := telemetry.FromContext(ctx)

	if spec.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, spec.shell, "-c", spec.command)
	cmd.Dir = spec.dir
	cmd.Env = spec.env
	if req.Output != nil {
		cmd.Stdout = req.Output
		cmd.Stderr = req.Output
	}
	cmd.WaitDelay = waitDelay

	logger.Debug("running command", "step", req.StepID, "command", spec.command, "dir", spec.dir)

	start := time.Now()
	err := cmd.Run()

	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	outputs := map[string]any{
		"exit_code":   exitCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}

	if err == nil {
		return NewResponse(outputs), nil
	}

	if ctxErr := contextError(ctx); ctxErr != nil {
		return nil, ctxErr
	}

	cmdErr := &CommandError{Command: spec.command, ExitCode: exitCode, Err: err}
	if spec.ignoreError {
		logger.Warn("command failed, ignoring", "step", req.StepID, "error", cmdErr)
		return NewResponse(outputs), nil
	}
	return nil, cmdErr
}

// MergeEnv возвращает base с переопределёнными значениями из extra.
// Порядок base сохраняется, новые ключи добавляются отсортированными.
func MergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}

	result := make([]string, 0, len(base)+len(extra))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, override := extra[key]; override {
			continue
		}
		result = append(result, kv)
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		result = append(result, k+"="+extra[k])
	}
	return result
}

// CommandError — команда завершилась с ошибкой.
type CommandError struct {
	Command  string
	ExitCode int
	Err      error
}

// Error реализует интерфейс error.
func (e *CommandError) Error() string {
	if e.ExitCode >= 0 {
		return fmt.Sprintf("command %q exited with code %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("command %q failed: %v", e.Command, e.Err)
}

// Unwrap возвращает исходную ошибку exec.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// IsCommandError проверяет, является ли ошибка ошибкой команды.
func IsCommandError(err error) bool {
	var cmdErr *CommandError
	return errors.As(err, &cmdErr)
}
