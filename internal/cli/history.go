package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/Stagehand/internal/domain"
	"github.com/shaiso/Stagehand/internal/repo"
)

// NewHistoryCmd создаёт команду истории запусков (нужен DB_URL).
// Без подкоманды выводит список, `history show ID` — один запуск.
func NewHistoryCmd(appFn appFunc) *cobra.Command {
	var flavorName string
	var status string
	var limit int
	var offset int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		Args:  cobra.NoArgs,
		RunE: withApp(appFn, func(ctx context.Context, app *App, _ []string) error {
			runs, err := app.RunRepo(ctx)
			if err != nil {
				return err
			}

			filter := repo.RunFilter{Flavor: flavorName, Limit: limit, Offset: offset}
			if status != "" {
				filter.Status = domain.ParseRunStatus(strings.ToUpper(status))
			}

			list, err := runs.List(ctx, filter)
			if err != nil {
				return err
			}

			headers := []string{"ID", "FLAVOR", "VERSION", "STATUS", "FAILED_STAGE", "STARTED", "DURATION"}
			rows := make([][]string, len(list))
			for i, r := range list {
				rows[i] = []string{
					r.ID.String(), r.Flavor, valueOrDash(r.Version), string(r.Status),
					valueOrDash(string(r.FailedStage)), formatTime(r.StartedAt), formatDuration(r.Duration()),
				}
			}

			app.Out.Print(headers, rows, list)
			return nil
		}),
	}

	cmd.Flags().StringVar(&flavorName, "flavor", "", "Filter by flavor")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (RUNNING, SUCCEEDED, FAILED, SKIPPED)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of results to skip")

	cmd.AddCommand(newHistoryShowCmd(appFn))

	return cmd
}

func newHistoryShowCmd(appFn appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show run details",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(appFn, func(ctx context.Context, app *App, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid run id %q: %w", args[0], err)
			}

			runs, err := app.RunRepo(ctx)
			if err != nil {
				return err
			}

			run, err := runs.GetByID(ctx, id)
			if err != nil {
				return err
			}

			app.Out.Run(run)
			return nil
		}),
	}
}
