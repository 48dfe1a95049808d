package flavor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/shaiso/Stagehand/internal/cache"
	"github.com/shaiso/Stagehand/internal/domain"
	"github.com/shaiso/Stagehand/internal/engine"
	"github.com/shaiso/Stagehand/internal/steps"
	"github.com/shaiso/Stagehand/internal/telemetry"
)

// Pipeline — скомпилированный flavor: стадии как списки готовых
// действий.
//
// Стадии — обычные функции без флагов "уже выполнено": их можно
// запускать любое количество раз. Идемпотентность install обеспечивают
// skip_if_exists / skip_if_found.
type Pipeline struct {
	Flavor domain.Flavor

	tmpl    *engine.Context
	plan    *engine.DAG
	stages  map[string]*Stage
	env     []string
	dir     string
	output  io.Writer
	console *telemetry.Console
	cache   *cache.Cache
}

// Stage — скомпилированная стадия (общая или flavor'а).
type Stage struct {
	ID     string
	Name   domain.StageName
	Common bool

	skipIfExists string
	skipIfFound  string
	actions      []action
}

type action struct {
	id     string
	typ    string
	step   steps.Step
	config map[string]any
}

// Len возвращает количество действий стадии.
func (s *Stage) Len() int {
	return len(s.actions)
}

// skipReason возвращает причину не выполнять действия стадии или "".
func (s *Stage) skipReason() string {
	if s.skipIfExists != "" {
		if _, err := os.Stat(s.skipIfExists); err == nil {
			return s.skipIfExists + " exists"
		}
	}
	if s.skipIfFound != "" {
		if path, err := exec.LookPath(s.skipIfFound); err == nil {
			return path + " found"
		}
	}
	return ""
}

// ActionError — ошибка действия стадии.
type ActionError struct {
	Stage  string
	Action string
	Type   string
	Err    error
}

// Error реализует интерфейс error.
func (e *ActionError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Action, e.Type, e.Err)
}

// Unwrap возвращает ошибку действия.
func (e *ActionError) Unwrap() error {
	return e.Err
}

// Run выполняет стадию вместе с её предпосылками (common и depends_on)
// в топологическом порядке. Первая ошибка прекращает выполнение.
func (p *Pipeline) Run(ctx context.Context, stage domain.StageName) error {
	seq, err := p.plan.Sequence(stage)
	if err != nil {
		return err
	}

	if p.console != nil {
		p.console.Section(string(stage))
	}

	for _, node := range seq {
		if err := p.runStage(ctx, p.stages[node.ID]); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) runStage(ctx context.Context, st *Stage) error {
	if st == nil || len(st.actions) == 0 {
		return nil
	}

	logger := telemetry.WithStage(telemetry.FromContext(ctx), st.ID)
	ctx = telemetry.WithLogger(ctx, logger)

	if reason := st.skipReason(); reason != "" {
		logger.Info("stage already satisfied, skipping actions", "reason", reason)
		return nil
	}

	for _, a := range st.actions {
		if err := ctx.Err(); err != nil {
			return &ActionError{Stage: st.ID, Action: a.id, Type: a.typ, Err: err}
		}

		req := &steps.Request{
			StepID:          a.id,
			Config:          a.config,
			TemplateContext: p.tmpl,
			Env:             p.env,
			Dir:             p.dir,
			Output:          p.output,
			Cache:           p.cache,
		}

		start := time.Now()
		if _, err := a.step.Execute(ctx, req); err != nil {
			logger.Error("action failed", "action", a.id, "type", a.typ, "error", err)
			return &ActionError{Stage: st.ID, Action: a.id, Type: a.typ, Err: err}
		}
		logger.Debug("action done", "action", a.id, "type", a.typ, "elapsed", time.Since(start))
	}
	return nil
}

// Stage возвращает скомпилированную стадию по ID узла ("install",
// "common:install").
func (p *Pipeline) Stage(id string) *Stage {
	return p.stages[id]
}

// Plan возвращает граф стадий.
func (p *Pipeline) Plan() *engine.DAG {
	return p.plan
}

// Cache возвращает кэш артефактов flavor'а.
func (p *Pipeline) Cache() *cache.Cache {
	return p.cache
}

// Context возвращает контекст шаблонов flavor'а.
func (p *Pipeline) Context() *engine.Context {
	return p.tmpl
}

// Env возвращает окружение команд flavor'а.
func (p *Pipeline) Env() []string {
	return append([]string(nil), p.env...)
}

// IsActionError проверяет, что ошибка пришла из действия стадии.
func IsActionError(err error) bool {
	var aErr *ActionError
	return errors.As(err, &aErr)
}
