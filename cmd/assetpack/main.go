package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/wolfeidau/assetpack/cmd/assetpack/internal/commands"
	"github.com/wolfeidau/assetpack/internal/buildconfig"
)

var (
	version = "dev"
	cli     struct {
		Root    string           `help:"Project root directory." default:"." env:"ASSETPACK_ROOT" type:"path"`
		Mode    buildconfig.Mode `help:"Build mode (development or production)." default:"development" env:"NODE_ENV"`
		Debug   bool             `help:"Enable debug mode."`
		Tracing bool             `help:"Export traces and metrics over OTLP." env:"ASSETPACK_TRACING"`
		Version kong.VersionFlag
		Build   commands.BuildCmd  `cmd:"" help:"Build the assets once"`
		Serve   commands.ServeCmd  `cmd:"" help:"Build, watch and serve the assets (development only)"`
		Config  commands.ConfigCmd `cmd:"" help:"Print the assembled build configuration"`
	}
)

func main() {
	// values from .env apply before flag and environment parsing
	_ = godotenv.Load()

	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Description("Front-end asset bundler."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{
		Debug:   cli.Debug,
		Tracing: cli.Tracing,
		Version: version,
		Root:    cli.Root,
		Mode:    cli.Mode,
	})
	cmd.FatalIfErrorf(err)
}
