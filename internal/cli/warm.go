package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Stagehand/internal/domain"
	"github.com/shaiso/Stagehand/internal/scheduler"
)

// NewWarmCmd создаёт команду прогрева кэша артефактов.
//
// С --once прогревает flavors сразу и выходит. Иначе работает до
// SIGINT/SIGTERM и прогревает по cron-выражению или интервалу.
// Состояние расписания хранится в Postgres, если задан DB_URL.
func NewWarmCmd(appFn appFunc) *cobra.Command {
	var name string
	var cronExpr string
	var interval time.Duration
	var timezone string
	var once bool

	cmd := &cobra.Command{
		Use:   "warm FLAVOR [FLAVOR...]",
		Short: "Warm the artifact cache of flavors on a schedule",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(appFn, func(ctx context.Context, app *App, args []string) error {
			for _, f := range args {
				if _, err := app.Catalog.Get(f); err != nil {
					return err
				}
			}

			sched := &domain.WarmSchedule{
				Name:        name,
				Flavors:     args,
				CronExpr:    cronExpr,
				IntervalSec: int(interval / time.Second),
				Timezone:    timezone,
			}
			if once && !sched.IsCron() && !sched.IsInterval() {
				sched.IntervalSec = int((24 * time.Hour) / time.Second)
			}

			cfg := scheduler.Config{
				Schedule: sched,
				Warm:     app.Warm,
				Logger:   app.Logger,
			}
			if app.Config.DatabaseURL != "" {
				store, err := app.ScheduleRepo(ctx)
				if err != nil {
					app.Logger.Warn("schedule state disabled", "error", err)
				} else {
					cfg.Store = store
				}
			}

			w, err := scheduler.New(cfg)
			if err != nil {
				if errors.Is(err, scheduler.ErrNoTrigger) {
					return fmt.Errorf("%w: use --schedule or --interval", err)
				}
				return err
			}

			if once {
				if err := w.WarmNow(ctx); err != nil {
					return err
				}
				app.Out.Success(fmt.Sprintf("warmed %d flavor(s), next due at %s",
					len(args), formatTime(w.Schedule().NextDueAt)))
				return nil
			}

			return w.Run(ctx)
		}),
	}

	cmd.Flags().StringVar(&name, "name", "default", "Schedule name (key of the persisted state)")
	cmd.Flags().StringVar(&cronExpr, "schedule", "", "Cron expression (\"0 3 * * *\", \"@daily\")")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Interval between warms (ignored with --schedule)")
	cmd.Flags().StringVar(&timezone, "timezone", "UTC", "Timezone for the cron expression")
	cmd.Flags().BoolVar(&once, "once", false, "Warm immediately and exit")

	return cmd
}
