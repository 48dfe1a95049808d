// Package steps содержит реализации действий, из которых состоят стадии
// flavor'а.
//
// # Интерфейс Step
//
// Все действия реализуют интерфейс Step:
//
//	type Step interface {
//	    Type() string
//	    Execute(ctx context.Context, req *Request) (*Response, error)
//	}
//
// Request содержит:
//   - StepID — идентификатор действия ("redis/install#0")
//   - Config — конфигурация действия (уже отрендеренная)
//   - TemplateContext — контекст flavor'а
//   - Env, Dir, Output — окружение, рабочая директория и вывод команд
//   - Cache — кэш артефактов запуска
//
// # Registry
//
//	registry := steps.DefaultRegistry(steps.Deps{Waiter: w})
//	step, err := registry.Get("run")
//
// # Типы действий
//
// Тип действия задаётся ключом в описании стадии:
//
//	- run: make install              # run.go — sh -c
//	  dir: "{{ .RootDir }}"
//	- wait: 6379                     # wait.go — Readiness Waiter
//	- delay: 3s                      # delay.go
//	- kill: "{{ .VolatileDir }}/redis.pid"   # kill.go
//	- http: http://localhost:9200/index      # http.go
//	  method: PUT
//	- test: true                     # nose.go — nosetests -A <filter>
//	- cache: push                    # cache.go
//
// # Обработка ошибок
//
// Шаги возвращают типизированные ошибки:
//
//	var (
//	    ErrStepCancelled   // context cancelled
//	    ErrStepTimeout     // истёк timeout действия
//	    ErrInvalidConfig   // неверная конфигурация
//	)
//
// Команды с ненулевым кодом выхода возвращают *CommandError, ответы
// HTTP с неожиданным статусом — *HTTPError. Ошибки кэша только
// логируются.
package steps
