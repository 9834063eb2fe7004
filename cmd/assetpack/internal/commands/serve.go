package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wolfeidau/assetpack/internal/assets"
	"github.com/wolfeidau/assetpack/internal/buildconfig"
	"github.com/wolfeidau/assetpack/internal/devserver"
	"github.com/wolfeidau/assetpack/internal/proxy"
	"golang.org/x/sync/errgroup"
)

type ServeCmd struct {
	NoOpen       bool          `help:"do not open a browser once the server is up" env:"ASSETPACK_NO_OPEN"`
	NoWatchProxy bool          `help:"do not reload the proxy table when it changes"`
	OpenTimeout  time.Duration `help:"how long to wait for the server before giving up on the browser" default:"30s"`
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	log := setupLogger(globals)
	defer startTelemetry(ctx, globals, log)()

	cfg, tablePath, err := loadConfig(globals)
	if err != nil {
		return err
	}

	server, err := devserver.New(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("version", globals.Version).
		Str("root", cfg.Root).
		Int("proxy_rules", len(cfg.DevServer.Proxy)).
		Msg("Starting development server")

	g, ctx := errgroup.WithContext(ctx)

	pipeline := assets.New(cfg)
	g.Go(func() error {
		return pipeline.Watch(ctx, func(res *assets.Result, err error) {
			if err != nil {
				log.Error().Err(err).Msg("Rebuild failed")
				return
			}
			server.Reload(res)
		})
	})

	g.Go(func() error {
		return server.ListenAndServe(ctx)
	})

	if tablePath != "" && !c.NoWatchProxy {
		g.Go(func() error {
			return proxy.Watch(ctx, tablePath, func(table proxy.Table) {
				if err := server.SetProxyTable(table); err != nil {
					log.Error().Err(err).Msg("Ignoring proxy table")
				}
			})
		})
	}

	if browser, ok := cfg.Plugin(buildconfig.PluginOpenBrowser); ok && !c.NoOpen {
		g.Go(func() error {
			err := devserver.OpenBrowser(ctx, browser.String("url"), c.OpenTimeout)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Warn().Err(err).Msg("Failed to open browser")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("development server failed: %w", err)
	}
	return nil
}
