package cache

import "errors"

// Ошибки кэша. Все они некритичны: вызывающий код только логирует их.
var (
	// ErrCacheMiss — объекта для slug ещё нет в бакете.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidConfig — не заданы обязательные настройки.
	ErrInvalidConfig = errors.New("cache config missing")

	// ErrUnsafePath — запись архива выходит за пределы корня распаковки.
	ErrUnsafePath = errors.New("archive entry escapes destination")

	// ErrNothingToPush — не зарегистрировано ни одной директории.
	ErrNothingToPush = errors.New("no cache directories registered")
)
