package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/Stagehand/internal/domain"
)

// FlavorInfo — строка `stagehand list`.
type FlavorInfo struct {
	Name        string   `json:"name"`
	Version     string   `json:"version,omitempty"`
	Provides    []string `json:"provides,omitempty"`
	AlwaysRun   bool     `json:"always_run"`
	Description string   `json:"description,omitempty"`
}

func newListCmd(appFn appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available flavors",
		Args:  cobra.NoArgs,
		RunE: withApp(appFn, func(_ context.Context, app *App, _ []string) error {
			var infos []FlavorInfo
			for _, name := range app.Catalog.Names() {
				spec, err := app.Catalog.Get(name)
				if err != nil {
					return err
				}
				f := domain.Flavor{Name: spec.Name, AlwaysRun: spec.AlwaysRun}
				infos = append(infos, FlavorInfo{
					Name:        spec.Name,
					Version:     spec.Version,
					Provides:    spec.Provides,
					AlwaysRun:   f.IsAlwaysRun(),
					Description: spec.Description,
				})
			}

			headers := []string{"NAME", "VERSION", "PROVIDES", "ALWAYS_RUN", "DESCRIPTION"}
			rows := make([][]string, len(infos))
			for i, f := range infos {
				rows[i] = []string{f.Name, valueOrDash(f.Version), strings.Join(f.Provides, ","), fmt.Sprint(f.AlwaysRun), f.Description}
			}

			app.Out.Print(headers, rows, infos)
			return nil
		}),
	}
}

func newExecuteCmd(appFn appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "execute FLAVOR [FLAVOR...]",
		Short: "Run the full pipeline of one or more flavors",
		Long: `Runs before_install, install, before_script and script (plus before_cache
and cache when CI is set) and always cleans up unless SKIP_CLEANUP is set.
Flavors run sequentially, the first failure stops the command.`,
		Args: cobra.MinimumNArgs(1),
		RunE: withApp(appFn, func(ctx context.Context, app *App, args []string) error {
			return execute(ctx, app, args)
		}),
	}
}

// newFlavorCmd создаёт команду flavor'а: без аргументов — весь
// пайплайн, подкоманды — отдельные стадии.
func newFlavorCmd(appFn appFunc, name, description string) *cobra.Command {
	short := "Run the " + name + " pipeline"
	if description != "" {
		short += " (" + description + ")"
	}

	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: withApp(appFn, func(ctx context.Context, app *App, _ []string) error {
			return execute(ctx, app, []string{name})
		}),
	}

	for _, stage := range domain.AllStages {
		cmd.AddCommand(&cobra.Command{
			Use:   string(stage),
			Short: fmt.Sprintf("Run the %s stage of %s", stage, name),
			Args:  cobra.NoArgs,
			RunE: withApp(appFn, func(ctx context.Context, app *App, _ []string) error {
				return runStage(ctx, app, name, stage)
			}),
		})
	}

	return cmd
}

func newStageCmd(appFn appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "stage FLAVOR STAGE",
		Short: "Run one stage of a flavor with its prerequisites",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(appFn, func(ctx context.Context, app *App, args []string) error {
			stage := domain.StageName(args[1])
			if stage == domain.StageExecute {
				return execute(ctx, app, args[:1])
			}
			return runStage(ctx, app, args[0], stage)
		}),
	}
}

// execute запускает драйвер для flavors по очереди.
func execute(ctx context.Context, app *App, names []string) error {
	driver := app.Driver(ctx)

	for _, name := range names {
		p, err := app.Compile(name)
		if err != nil {
			return err
		}

		run, err := driver.Execute(ctx, p.Flavor, p)
		if run != nil {
			app.Out.Run(run)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func runStage(ctx context.Context, app *App, name string, stage domain.StageName) error {
	if !stage.IsValid() {
		return fmt.Errorf("unknown stage %q (expected one of %v)", stage, domain.AllStages)
	}

	p, err := app.Compile(name)
	if err != nil {
		return err
	}
	return p.Run(ctx, stage)
}

func valueOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
