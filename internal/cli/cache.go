package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// CacheInfo — адреса кэша flavor'а.
type CacheInfo struct {
	Flavor   string   `json:"flavor"`
	Slug     string   `json:"slug"`
	Valid    bool     `json:"valid"`
	Missing  []string `json:"missing,omitempty"`
	FetchURL string   `json:"fetch_url,omitempty"`
	PushURL  string   `json:"push_url,omitempty"`
	Dirs     []string `json:"directories,omitempty"`
}

// NewCacheCmd создаёт группу команд кэша артефактов.
func NewCacheCmd(appFn appFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and transfer the artifact cache of a flavor",
	}

	cmd.AddCommand(
		newCacheSlugCmd(appFn),
		newCacheURLCmd(appFn),
		newCacheFetchCmd(appFn),
		newCachePushCmd(appFn),
	)

	return cmd
}

func newCacheSlugCmd(appFn appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "slug FLAVOR",
		Short: "Print the cache slug of a flavor",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(appFn, func(_ context.Context, app *App, args []string) error {
			p, err := app.Compile(args[0])
			if err != nil {
				return err
			}

			c := p.Cache()
			info := CacheInfo{
				Flavor:  p.Flavor.Name,
				Slug:    c.Slug(),
				Valid:   c.Valid(),
				Missing: c.Missing(),
				Dirs:    p.Flavor.CacheDirs,
			}
			app.Out.Print([]string{"FLAVOR", "SLUG"}, [][]string{{info.Flavor, info.Slug}}, info)
			return nil
		}),
	}
}

func newCacheURLCmd(appFn appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "url FLAVOR",
		Short: "Print presigned fetch and push URLs",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(appFn, func(_ context.Context, app *App, args []string) error {
			p, err := app.Compile(args[0])
			if err != nil {
				return err
			}

			c := p.Cache()
			info := CacheInfo{Flavor: p.Flavor.Name, Slug: c.Slug(), Valid: c.Valid(), Missing: c.Missing()}
			if c.Valid() {
				info.FetchURL = c.FetchURL()
				info.PushURL = c.PushURL()
			}

			app.Out.Print(
				[]string{"OP", "URL"},
				[][]string{{"fetch", valueOrDash(info.FetchURL)}, {"push", valueOrDash(info.PushURL)}},
				info,
			)
			return nil
		}),
	}
}

func newCacheFetchCmd(appFn appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch FLAVOR",
		Short: "Download and extract the cached snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(appFn, func(ctx context.Context, app *App, args []string) error {
			p, err := app.Compile(args[0])
			if err != nil {
				return err
			}
			if err := p.Cache().Fetch(ctx); err != nil {
				return err
			}
			app.Out.Success("cache fetched: " + p.Cache().Slug())
			return nil
		}),
	}
}

func newCachePushCmd(appFn appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "push FLAVOR",
		Short: "Archive the cache directories and upload them",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(appFn, func(ctx context.Context, app *App, args []string) error {
			p, err := app.Compile(args[0])
			if err != nil {
				return err
			}

			c := p.Cache()
			c.Add(p.Flavor.CacheDirs...)
			if err := c.Push(ctx); err != nil {
				return err
			}
			app.Out.Success("cache pushed: " + c.Slug())
			return nil
		}),
	}
}
