package assets

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/wolfeidau/assetpack/internal/buildconfig"
)

// aliasPlugin resolves "@name" and "@name/sub/path" imports against the alias
// directories, using the configured extension order.
func aliasPlugin(aliases map[string]string) api.Plugin {
	names := make([]string, 0, len(aliases))
	for name := range aliases {
		names = append(names, regexp.QuoteMeta(name))
	}
	// longest first so overlapping names pick the most specific alias
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})

	filter := `^(` + strings.Join(names, "|") + `)(/.*)?$`
	re := regexp.MustCompile(filter)

	return api.Plugin{
		Name: "alias",
		Setup: func(build api.PluginBuild) {
			if len(aliases) == 0 {
				return
			}

			build.OnResolve(api.OnResolveOptions{Filter: filter}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				target, ok := expandAlias(re, aliases, args.Path)
				if !ok {
					return api.OnResolveResult{}, nil
				}

				result := build.Resolve(target, api.ResolveOptions{
					Importer:   args.Importer,
					ResolveDir: args.ResolveDir,
					Kind:       args.Kind,
				})

				return api.OnResolveResult{
					Path:      result.Path,
					External:  result.External,
					Namespace: result.Namespace,
					Errors:    result.Errors,
					Warnings:  result.Warnings,
				}, nil
			})
		},
	}
}

func expandAlias(re *regexp.Regexp, aliases map[string]string, path string) (string, bool) {
	m := re.FindStringSubmatch(path)
	if m == nil {
		return "", false
	}

	dir, ok := aliases[m[1]]
	if !ok {
		return "", false
	}

	rest := strings.TrimPrefix(m[2], "/")
	if rest == "" {
		return dir, true
	}
	return filepath.Join(dir, filepath.FromSlash(rest)), true
}

// transformPlugin loads every file a transform rule applies to with the loader
// that rule calls for. Files no rule scopes in are left to esbuild defaults.
// Stylesheets that are not extracted are compiled on their own and injected at
// runtime, any files they reference are recorded in side. A nil side loads
// stylesheets as plain CSS, which is how the nested stylesheet build runs.
func transformPlugin(cfg *buildconfig.BuildConfig, side *sideOutputs) api.Plugin {
	patterns := make([]string, 0, len(cfg.Rules))
	for _, rule := range cfg.Rules {
		patterns = append(patterns, "(?:"+rule.Pattern+")")
	}

	return api.Plugin{
		Name: "transform-rules",
		Setup: func(build api.PluginBuild) {
			if len(patterns) == 0 {
				return
			}

			build.OnLoad(api.OnLoadOptions{Filter: strings.Join(patterns, "|"), Namespace: "file"}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				rule, ok := cfg.RuleFor(args.Path)
				if !ok {
					return api.OnLoadResult{}, nil
				}

				data, err := os.ReadFile(args.Path)
				if err != nil {
					return api.OnLoadResult{}, err
				}

				contents := string(data)
				result := api.OnLoadResult{
					ResolveDir: filepath.Dir(args.Path),
					Loader:     LoaderFor(rule, int64(len(data))),
				}

				if rule.Name == buildconfig.RuleStyles && !stylesExtracted(cfg, rule) {
					if side == nil {
						result.Loader = api.LoaderCSS
					} else {
						sheet, err := compileStylesheet(cfg, args.Path)
						if err != nil {
							return api.OnLoadResult{}, err
						}
						side.add(sheet.assets...)
						contents = styleModule(args.Path, sheet.css)
						result.Loader = api.LoaderJS
						result.WatchFiles = sheet.inputs
					}
				}

				result.Contents = &contents
				return result, nil
			})
		},
	}
}

// LoaderFor picks the esbuild loader for a file of the given size handled by rule.
func LoaderFor(rule *buildconfig.TransformRule, size int64) api.Loader {
	switch rule.Name {
	case buildconfig.RuleScripts:
		return api.LoaderJSX
	case buildconfig.RuleJSON:
		return api.LoaderJSON
	case buildconfig.RuleStyles:
		// without extraction the stylesheet becomes a module that injects itself
		return cond(rule.Extract, api.LoaderCSS, api.LoaderJS)
	case buildconfig.RuleImages:
		return cond(rule.Classify(size) == buildconfig.Inline, api.LoaderDataURL, api.LoaderFile)
	case buildconfig.RuleFonts:
		return api.LoaderFile
	default:
		return api.LoaderDefault
	}
}

// stylesExtracted reports whether stylesheets are written to a separate file, which
// needs both the rule and the extract-css plugin to agree.
func stylesExtracted(cfg *buildconfig.BuildConfig, rule *buildconfig.TransformRule) bool {
	plugin, ok := cfg.Plugin(buildconfig.PluginExtractCSS)
	return rule.Extract && ok && !plugin.Bool("disable")
}

// styleModule wraps a stylesheet in a module that appends it to the document head
// at runtime.
func styleModule(path, css string) string {
	source, _ := json.Marshal(css)
	id, _ := json.Marshal(filepath.Base(path))

	return fmt.Sprintf(`var css = %s;
if (typeof document !== "undefined") {
  var el = document.createElement("style");
  el.setAttribute("data-assetpack", %s);
  el.textContent = css;
  document.head.appendChild(el);
}
export default css;
`, source, id)
}
