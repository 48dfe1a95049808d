// Package scheduler прогревает кэш артефактов по расписанию.
//
// Warmer периодически проверяет, наступил ли next_due_at расписания, и
// для каждого flavor'а выполняет установку и загрузку снимка в кэш
// (через WarmFunc). Сборки pull request'ов после этого начинаются с
// уже установленными сервисами.
//
// Структура:
//   - scheduler.go — Warmer (Init, Tick, Run)
//   - cron.go      — парсинг cron-выражений и вычисление следующего времени
//
// Использование:
//
//	w, err := scheduler.New(scheduler.Config{
//	    Schedule: &domain.WarmSchedule{Name: "nightly", CronExpr: "0 3 * * *", Flavors: flavors},
//	    Warm:     warmFlavor,
//	    Store:    scheduleRepo, // опционально
//	    Logger:   logger,
//	})
//	err = w.Run(ctx)
package scheduler
