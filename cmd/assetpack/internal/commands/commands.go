package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/assetpack/internal/buildconfig"
	"github.com/wolfeidau/assetpack/internal/logger"
	"github.com/wolfeidau/assetpack/internal/proxy"
	"github.com/wolfeidau/assetpack/internal/telemetry"
)

type Globals struct {
	Debug   bool
	Tracing bool
	Version string
	Root    string
	Mode    buildconfig.Mode
}

// setupLogger configures the process logger, development builds always log at debug.
func setupLogger(globals *Globals) zerolog.Logger {
	log.Logger = logger.Setup(globals.Debug || globals.Mode.IsDevelopment())
	return log.Logger
}

// loadConfig assembles the build configuration. The proxy table is only read in
// development, the returned path is empty when there is no table file.
func loadConfig(globals *Globals) (*buildconfig.BuildConfig, string, error) {
	var (
		table     proxy.Table
		tablePath string
		err       error
	)

	if globals.Mode.IsDevelopment() {
		table, tablePath, err = proxy.LoadDir(globals.Root)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load proxy table: %w", err)
		}
	}

	return buildconfig.Build(globals.Root, globals.Mode, table), tablePath, nil
}

// startTelemetry exports traces and metrics when tracing is enabled. The returned
// func must be called before exit to flush pending data.
func startTelemetry(ctx context.Context, globals *Globals, log zerolog.Logger) func() {
	if !globals.Tracing {
		return func() {}
	}

	log.Info().Msg("Tracing is enabled")
	shutdown, err := telemetry.Init(ctx, "assetpack", globals.Version)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without it")
		return func() {}
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown telemetry")
		}
	}
}
