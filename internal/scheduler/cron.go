package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Stagehand/internal/domain"
)

// ErrNoTrigger — у расписания нет ни cron-выражения, ни интервала.
var ErrNoTrigger = errors.New("schedule has neither cron_expr nor interval_sec")

// cronParser — парсер cron-выражений (5 полей и дескрипторы @daily, @every).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// CalculateNextDue вычисляет следующее время прогрева после from.
// Cron-выражение интерпретируется в часовом поясе расписания.
func CalculateNextDue(sched *domain.WarmSchedule, from time.Time) (time.Time, error) {
	loc := time.UTC
	if sched.Timezone != "" {
		if l, err := time.LoadLocation(sched.Timezone); err == nil {
			loc = l
		}
	}
	from = from.In(loc)

	if sched.IsCron() {
		schedule, err := cronParser.Parse(sched.CronExpr)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse cron expression %q: %w", sched.CronExpr, err)
		}
		return schedule.Next(from).UTC(), nil
	}

	if sched.IsInterval() {
		return from.Add(time.Duration(sched.IntervalSec) * time.Second).UTC(), nil
	}

	return time.Time{}, ErrNoTrigger
}

// ValidateCronExpr проверяет валидность cron-выражения.
func ValidateCronExpr(cronExpr string) error {
	if _, err := cronParser.Parse(cronExpr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	return nil
}
