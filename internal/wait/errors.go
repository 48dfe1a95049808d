package wait

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"
)

// Ошибки ожидания.
var (
	// ErrTimeout — цель не стала готовой за отведённое время.
	ErrTimeout = errors.New("wait timeout")

	// ErrInvalidTarget — описание цели не распознано.
	ErrInvalidTarget = errors.New("invalid wait target")

	// ErrUnknownKind — для типа цели не зарегистрирована проверка.
	ErrUnknownKind = errors.New("unknown wait target kind")
)

// TimeoutError — цель не стала готовой за Timeout.
//
// errors.Is(err, ErrTimeout) возвращает true.
type TimeoutError struct {
	Target   Target
	Timeout  time.Duration
	Attempts int
}

// Error реализует интерфейс error.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s still not up after %s (%d attempts)", e.Target, e.Timeout, e.Attempts)
}

// Unwrap возвращает ErrTimeout.
func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}

// isTransient сообщает, означает ли ошибка попытки "ещё не готов".
//
// Отказ в соединении, недоступный хост, сброс соединения и таймаут
// попытки не прерывают ожидание.
func isTransient(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}
