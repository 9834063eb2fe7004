package buildconfig

import (
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/wolfeidau/assetpack/internal/proxy"
)

const (
	// HotPatchEntry is prepended to the entries in development.
	HotPatchEntry = "react-hot-loader/patch"
	// SourceMapDevtool is the source map style used in development.
	SourceMapDevtool = "cheap-module-source-map"
	// Banner is injected at the top of every emitted bundle.
	Banner = "版权所有，翻版必究"

	DevServerHost = "127.0.0.1"
	DevServerPort = 9999

	// ImageInlineLimit is the largest image embedded as a data URL.
	ImageInlineLimit = 10 * 1024

	// whitelisted third-party package that is still compiled from source
	sourceDependency = "nice-ui"
	dependencyDir    = "node_modules"
)

// Rule names, in match order.
const (
	RuleScripts = "scripts"
	RuleJSON    = "json"
	RuleStyles  = "styles"
	RuleImages  = "images"
	RuleFonts   = "fonts"
)

// Plugin names.
const (
	PluginCircularDependency = "circular-dependency"
	PluginBanner             = "banner"
	PluginHTML               = "html"
	PluginExtractCSS         = "extract-css"
	PluginClean              = "clean"
	PluginMinify             = "minify"
	PluginNamedModules       = "named-modules"
	PluginHotReload          = "hot-module-replacement"
	PluginOpenBrowser        = "open-browser"
)

// compiled once so repeated builds share identical values
var (
	scriptsTest = regexp.MustCompile(`\.(js|jsx)$`)
	jsonTest    = regexp.MustCompile(`\.json$`)
	stylesTest  = regexp.MustCompile(`\.(css|less)$`)
	imagesTest  = regexp.MustCompile(`\.(png|jpe?g|gif|svg)$`)
	fontsTest   = regexp.MustCompile(`\.(eot|woff|woff2|ttf|svg)$`)
)

// aliasDirs maps each module alias to its directory relative to the project root.
var aliasDirs = map[string]string{
	"@app":        "app",
	"@components": "app/components",
	"@pages":      "app/pages",
	"@stores":     "app/stores",
	"@utils":      "app/utils",
}

// AliasNames returns the fixed alias names.
func AliasNames() []string {
	names := make([]string, 0, len(aliasDirs))
	for name := range aliasDirs {
		names = append(names, name)
	}
	return names
}

// Build assembles the bundler configuration for the project at root. It performs no
// I/O beyond making root absolute, and the proxy table is passed through to the dev
// server unmodified.
func Build(root string, mode Mode, table proxy.Table) *BuildConfig {
	root = absRoot(root)
	resolve := func(rel string) string {
		return filepath.Join(root, filepath.FromSlash(rel))
	}

	cfg := &BuildConfig{
		Mode:    mode,
		Root:    root,
		Entries: entries(mode, resolve),
		Output: Output{
			Directory:       resolve("dist"),
			FilenamePattern: "[name]_[hash]",
			AssetPattern:    "img/[name]_[hash]",
		},
		Resolution: Resolution{
			Extensions: []string{".js", ".jsx"},
			Aliases:    aliases(resolve),
		},
		Rules:   rules(mode, resolve),
		Plugins: plugins(mode, resolve),
	}

	if mode.IsDevelopment() {
		cfg.Devtool = SourceMapDevtool
		cfg.DevServer = &DevServerConfig{
			ContentRoot:     resolve("dist"),
			Host:            DevServerHost,
			Port:            DevServerPort,
			HotReload:       true,
			HistoryFallback: true,
			Progress:        true,
			Proxy:           table,
		}
	}

	return cfg
}

func absRoot(root string) string {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return filepath.Clean(root)
	}
	return abs
}

func entries(mode Mode, resolve func(string) string) []string {
	main := resolve("app/app.js")
	if mode.IsDevelopment() {
		return []string{HotPatchEntry, main}
	}
	return []string{main}
}

func aliases(resolve func(string) string) map[string]string {
	out := make(map[string]string, len(aliasDirs))
	for name, dir := range aliasDirs {
		out[name] = resolve(dir)
	}
	return out
}

func rules(mode Mode, resolve func(string) string) []TransformRule {
	deps := resolve(dependencyDir)

	return []TransformRule{
		{
			Name:     RuleScripts,
			Pattern:  scriptsTest.String(),
			Handlers: []Handler{{Name: "babel-loader"}},
			Include:  []string{resolve("app"), resolve(dependencyDir + "/" + sourceDependency)},
			Exclude:  []string{deps},
			test:     scriptsTest,
		},
		{
			Name:     RuleJSON,
			Pattern:  jsonTest.String(),
			Handlers: []Handler{{Name: "json-loader"}},
			test:     jsonTest,
		},
		{
			Name:    RuleStyles,
			Pattern: stylesTest.String(),
			Handlers: []Handler{
				{Name: "css-loader"},
				{Name: "less-loader", Options: map[string]any{"javascriptEnabled": true}},
			},
			Fallback: &Handler{Name: "style-loader"},
			Extract:  mode.IsProduction(),
			Exclude:  []string{deps},
			test:     stylesTest,
		},
		{
			Name:    RuleImages,
			Pattern: imagesTest.String(),
			Handlers: []Handler{{Name: "url-loader", Options: map[string]any{
				"limit": ImageInlineLimit,
				"name":  "img/[name]_[hash].[ext]",
			}}},
			InlineLimit: ImageInlineLimit,
			test:        imagesTest,
		},
		{
			Name:     RuleFonts,
			Pattern:  fontsTest.String(),
			Handlers: []Handler{{Name: "file-loader"}},
			test:     fontsTest,
		},
	}
}

func plugins(mode Mode, resolve func(string) string) []PluginActivation {
	list := []PluginActivation{
		{Name: PluginCircularDependency, Options: map[string]any{
			"exclude":     dependencyDir,
			"failOnError": false,
			"cwd":         resolve("."),
		}},
		{Name: PluginBanner, Options: map[string]any{"text": Banner}},
		{Name: PluginHTML, Options: map[string]any{"template": resolve("app/template.html")}},
		{Name: PluginExtractCSS, Options: map[string]any{
			"filename": "[name].css",
			"disable":  mode.IsDevelopment(),
		}},
		{Name: PluginClean},
	}

	switch mode {
	case Production:
		list = append(list, PluginActivation{Name: PluginMinify, Options: map[string]any{
			"sourceMap":    true,
			"beautify":     false,
			"comments":     false,
			"dropConsole":  true,
			"collapseVars": true,
			"reduceVars":   true,
		}})
	case Development:
		list = append(list,
			PluginActivation{Name: PluginNamedModules},
			PluginActivation{Name: PluginHotReload},
			PluginActivation{Name: PluginOpenBrowser, Options: map[string]any{
				"url": "http://" + DevServerHost + ":" + strconv.Itoa(DevServerPort),
			}},
		)
	}

	return list
}
