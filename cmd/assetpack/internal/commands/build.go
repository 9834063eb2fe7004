package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfeidau/assetpack/internal/assets"
)

type BuildCmd struct {
	Timeout time.Duration `help:"abort the build after this long" default:"5m" env:"ASSETPACK_BUILD_TIMEOUT"`
}

func (c *BuildCmd) Run(ctx context.Context, globals *Globals) error {
	log := setupLogger(globals)
	defer startTelemetry(ctx, globals, log)()

	cfg, _, err := loadConfig(globals)
	if err != nil {
		return err
	}

	log.Info().
		Str("version", globals.Version).
		Str("mode", cfg.Mode.String()).
		Str("root", cfg.Root).
		Msg("Starting build")

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	res, err := assets.New(cfg).Build(ctx)
	if err != nil {
		return fmt.Errorf("failed to build assets: %w", err)
	}

	log.Info().
		Str("build", res.BuildID).
		Str("output", cfg.Output.Directory).
		Int("files", len(res.Outputs)).
		Int("cycles", len(res.Cycles)).
		Dur("duration", res.Duration).
		Msg("Build complete")

	return nil
}
