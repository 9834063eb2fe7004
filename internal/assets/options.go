package assets

import (
	"os"
	"path/filepath"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/assetpack/internal/buildconfig"
)

// Options translates a BuildConfig into esbuild build options.
func Options(cfg *buildconfig.BuildConfig) (api.BuildOptions, error) {
	return options(cfg, &sideOutputs{})
}

func options(cfg *buildconfig.BuildConfig, side *sideOutputs) (api.BuildOptions, error) {
	entryPoints, inject := resolveEntries(cfg)
	if len(entryPoints) == 0 {
		return api.BuildOptions{}, ErrNoEntryPoints
	}

	opts := api.BuildOptions{
		AbsWorkingDir:     cfg.Root,
		EntryPoints:       entryPoints,
		Inject:            inject,
		Bundle:            true,
		Write:             true,
		Metafile:          true,
		Outdir:            cfg.Output.Directory,
		EntryNames:        cfg.Output.FilenamePattern,
		ChunkNames:        cfg.Output.FilenamePattern,
		AssetNames:        cfg.Output.AssetPattern,
		ResolveExtensions: cfg.Resolution.Extensions,
		Format:            api.FormatIIFE,
		Platform:          api.PlatformBrowser,
		Sourcemap:         sourceMap(cfg.Devtool),
		LogLevel:          api.LogLevelSilent,
		Plugins: []api.Plugin{
			aliasPlugin(cfg.Resolution.Aliases),
			transformPlugin(cfg, side),
		},
	}

	if banner, ok := cfg.Plugin(buildconfig.PluginBanner); ok {
		comment := "/* " + banner.String("text") + " */"
		opts.Banner = map[string]string{"js": comment, "css": comment}
	}

	if minify, ok := cfg.Plugin(buildconfig.PluginMinify); ok {
		opts.MinifyWhitespace = !minify.Bool("beautify")
		opts.MinifyIdentifiers = true
		opts.MinifySyntax = minify.Bool("collapseVars") || minify.Bool("reduceVars")
		if minify.Bool("dropConsole") {
			opts.Drop = api.DropConsole
		}
		if !minify.Bool("comments") {
			opts.LegalComments = api.LegalCommentsNone
		}
	}

	if _, ok := cfg.Plugin(buildconfig.PluginNamedModules); ok {
		opts.KeepNames = true
	}

	return opts, nil
}

func sourceMap(devtool string) api.SourceMap {
	return cond(devtool == "", api.SourceMapNone, api.SourceMapLinked)
}

// resolveEntries splits the configured entries into esbuild entry points and files
// injected ahead of them. Package entries such as the hot reload patch are only
// injected when they are installed.
func resolveEntries(cfg *buildconfig.BuildConfig) ([]string, []string) {
	var entryPoints, inject []string

	for _, entry := range cfg.Entries {
		if filepath.IsAbs(entry) {
			entryPoints = append(entryPoints, entry)
			continue
		}

		path, ok := findPackageFile(cfg.Root, entry)
		if !ok {
			log.Debug().Str("entry", entry).Msg("Package entry not installed, skipping")
			continue
		}
		inject = append(inject, path)
	}

	return entryPoints, inject
}

func findPackageFile(root, name string) (string, bool) {
	base := filepath.Join(root, "node_modules", filepath.FromSlash(name))
	for _, candidate := range []string{base + ".js", filepath.Join(base, "index.js"), base} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

func cond[T any](condition bool, trueVal, falseVal T) T {
	if condition {
		return trueVal
	}
	return falseVal
}
