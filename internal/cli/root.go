package cli

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Stagehand/internal/flavor"
	"github.com/shaiso/Stagehand/internal/telemetry"
)

// RootOptions — параметры корневой команды.
type RootOptions struct {
	Version string
	Getenv  func(string) string
	Stdout  io.Writer
	Stderr  io.Writer
	Logger  *slog.Logger
}

// appFunc создаёт App для команды. Вызывающий закрывает App.
type appFunc func() (*App, error)

// NewRootCmd собирает дерево команд stagehand.
//
// Каталог flavors читается сразу: по одной подкоманде на flavor.
// Ошибка в описании не мешает остальным командам, она вернётся при
// выполнении.
func NewRootCmd(opts RootOptions) *cobra.Command {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	var jsonOutput bool

	root := &cobra.Command{
		Use:           "stagehand",
		Short:         "Stagehand — test fixtures orchestrator for CI",
		Version:       opts.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	if opts.Stdout != nil {
		root.SetOut(opts.Stdout)
	}
	if opts.Stderr != nil {
		root.SetErr(opts.Stderr)
	}

	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	appFn := func() (*App, error) {
		return NewApp(AppOptions{
			Getenv: getenv,
			Stdout: opts.Stdout,
			Stderr: opts.Stderr,
			JSON:   jsonOutput,
			Logger: opts.Logger,
		})
	}

	root.AddCommand(
		newListCmd(appFn),
		newExecuteCmd(appFn),
		newStageCmd(appFn),
		newWaitCmd(appFn),
		NewCacheCmd(appFn),
		NewHistoryCmd(appFn),
		NewWarmCmd(appFn),
	)

	if catalog, err := flavor.Load(getenv("STAGEHAND_FLAVORS_DIR")); err == nil {
		for _, name := range catalog.Names() {
			if hasCommand(root, name) {
				continue
			}
			spec, _ := catalog.Get(name)
			root.AddCommand(newFlavorCmd(appFn, name, spec.Description))
		}
	}

	return root
}

// withApp оборачивает RunE: создаёт App и закрывает его после команды.
func withApp(appFn appFunc, fn func(ctx context.Context, app *App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := appFn()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx = telemetry.WithLogger(ctx, app.Logger)
		defer app.Close(context.WithoutCancel(ctx))

		return fn(ctx, app, args)
	}
}

func hasCommand(root *cobra.Command, name string) bool {
	for _, c := range root.Commands() {
		if c.Name() == name {
			return true
		}
	}
	return false
}
