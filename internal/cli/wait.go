package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Stagehand/internal/wait"
)

func newWaitCmd(appFn appFunc) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "wait TARGET",
		Short: "Wait until a port, URL or path is ready",
		Long: `TARGET is a port number (localhost), a URL (http, https, postgres, amqp)
or a filesystem path.`,
		Args: cobra.ExactArgs(1),
		RunE: withApp(appFn, func(ctx context.Context, app *App, args []string) error {
			target, err := wait.ParseTarget(args[0])
			if err != nil {
				return err
			}

			w := wait.New(wait.WithLogger(app.Logger), wait.WithMetrics(app.Metrics))
			start := time.Now()
			if err := w.For(ctx, target, timeout); err != nil {
				return err
			}

			app.Out.Success(fmt.Sprintf("%s is ready after %s", target, formatDuration(time.Since(start))))
			return nil
		}),
	}

	cmd.Flags().DurationVar(&timeout, "timeout", wait.DefaultTimeout, "Maximum time to wait")

	return cmd
}
