// Package wait реализует ожидание готовности сервисов.
//
// Waiter опрашивает цель (TCP-порт, HTTP URL, путь в файловой системе,
// Postgres или AMQP-брокер) до тех пор, пока она не станет готовой или
// не истечёт таймаут. Опрос блокирует вызывающую горутину.
//
//	w := wait.New(wait.WithLogger(logger))
//	if err := w.For(ctx, wait.Port(7000), 10*time.Second); err != nil {
//	    // errors.Is(err, wait.ErrTimeout)
//	}
package wait

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/shaiso/Stagehand/internal/telemetry"
)

// Значения по умолчанию.
const (
	// DefaultTimeout — общий таймаут ожидания.
	DefaultTimeout = 10 * time.Second

	// PollInterval — пауза между попытками.
	PollInterval = 250 * time.Millisecond

	// AttemptTimeout — ограничение одной попытки, чтобы зависший сокет
	// не съел весь бюджет ожидания.
	AttemptTimeout = 500 * time.Millisecond
)

// Waiter ожидает готовности целей.
type Waiter struct {
	interval       time.Duration
	attemptTimeout time.Duration
	probes         map[Kind]Probe
	watchPaths     bool
	logger         *slog.Logger
	metrics        *telemetry.Metrics
}

// Option настраивает Waiter.
type Option func(*Waiter)

// WithInterval задаёт паузу между попытками.
func WithInterval(d time.Duration) Option {
	return func(w *Waiter) { w.interval = d }
}

// WithAttemptTimeout задаёт таймаут одной попытки.
func WithAttemptTimeout(d time.Duration) Option {
	return func(w *Waiter) { w.attemptTimeout = d }
}

// WithProbe заменяет проверку для типа цели.
func WithProbe(kind Kind, probe Probe) Option {
	return func(w *Waiter) { w.probes[kind] = probe }
}

// WithLogger задаёт логгер.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Waiter) { w.logger = logger }
}

// WithMetrics включает метрики ожидания.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(w *Waiter) { w.metrics = m }
}

// WithoutPathWatch отключает fsnotify для целей-путей (только опрос).
func WithoutPathWatch() Option {
	return func(w *Waiter) { w.watchPaths = false }
}

// New создаёт Waiter со стандартными проверками.
func New(opts ...Option) *Waiter {
	w := &Waiter{
		interval:       PollInterval,
		attemptTimeout: AttemptTimeout,
		watchPaths:     true,
		probes: map[Kind]Probe{
			KindPort:     probePort,
			KindURL:      newURLProbe(&http.Client{}),
			KindPath:     probePath,
			KindPostgres: probePostgres,
			KindAMQP:     probeAMQP,
		},
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.interval <= 0 {
		w.interval = PollInterval
	}
	if w.attemptTimeout <= 0 {
		w.attemptTimeout = AttemptTimeout
	}

	return w
}

// For ожидает готовности target не дольше timeout.
//
// Возвращает nil сразу после первой успешной проверки. Если за timeout
// цель так и не стала готовой, возвращает *TimeoutError. timeout <= 0
// означает DefaultTimeout.
func (w *Waiter) For(ctx context.Context, target Target, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	probe, ok := w.probes[target.Kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, target.Kind)
	}

	logger := w.logger.With("target", target.String(), "kind", target.Kind)
	logger.Info("waiting for target", "timeout", timeout)

	var wake <-chan fsnotify.Event
	var watchErrs <-chan error
	if target.Kind == KindPath && w.watchPaths {
		if watcher := watchParent(target.Path); watcher != nil {
			defer watcher.Close()
			wake = watcher.Events
			watchErrs = watcher.Errors
		}
	}

	start := time.Now()
	deadline := start.Add(timeout)
	attempts := 0

	for {
		attempts++

		ready, err := w.Check(ctx, target, probe)
		if err != nil {
			w.metrics.ObserveWait(string(target.Kind), "error", time.Since(start))
			return fmt.Errorf("wait for %s: %w", target, err)
		}
		if ready {
			logger.Info("target is ready", "attempts", attempts, "elapsed", time.Since(start))
			w.metrics.ObserveWait(string(target.Kind), "ready", time.Since(start))
			return nil
		}

		if time.Now().After(deadline) {
			w.metrics.ObserveWait(string(target.Kind), "timeout", time.Since(start))
			return &TimeoutError{Target: target, Timeout: timeout, Attempts: attempts}
		}

		logger.Debug("target not ready", "attempt", attempts)

		if err := w.sleep(ctx, target, wake, watchErrs); err != nil {
			return err
		}
	}
}

// sleep ждёт интервал между попытками. Событие fsnotify про сам target
// прерывает ожидание раньше, остальные события директории игнорируются.
func (w *Waiter) sleep(ctx context.Context, target Target, wake <-chan fsnotify.Event, watchErrs <-chan error) error {
	timer := time.NewTimer(w.interval)
	defer timer.Stop()

	want := filepath.Clean(target.Path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case ev, ok := <-wake:
			if !ok {
				wake = nil
				continue
			}
			if filepath.Clean(ev.Name) == want {
				return nil
			}
		case _, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
			}
		}
	}
}

// Check выполняет одну попытку, ограниченную таймаутом попытки.
//
// Транзиентные ошибки превращаются в (false, nil).
func (w *Waiter) Check(ctx context.Context, target Target, probe Probe) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if probe == nil {
		p, ok := w.probes[target.Kind]
		if !ok {
			return false, fmt.Errorf("%w: %q", ErrUnknownKind, target.Kind)
		}
		probe = p
	}

	attemptCtx, cancel := context.WithTimeout(ctx, w.attemptTimeout)
	defer cancel()

	ready, err := probe(attemptCtx, target)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if isTransient(err) {
			return false, nil
		}
		return false, err
	}
	return ready, nil
}

// watchParent подписывается на изменения директории, в которой должен
// появиться путь. При ошибке возвращает nil — остаётся обычный опрос.
func watchParent(path string) *fsnotify.Watcher {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil
	}
	return watcher
}
