package buildconfig

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/wolfeidau/assetpack/internal/proxy"
)

// BuildConfig describes one bundler invocation. It is assembled once by Build and
// must not be modified after it has been handed to a consumer.
type BuildConfig struct {
	Mode       Mode               `yaml:"mode" json:"mode"`
	Root       string             `yaml:"root" json:"root"`
	Entries    []string           `yaml:"entries" json:"entries"`
	Output     Output             `yaml:"output" json:"output"`
	Resolution Resolution         `yaml:"resolution" json:"resolution"`
	Devtool    string             `yaml:"devtool" json:"devtool"`
	Rules      []TransformRule    `yaml:"rules" json:"rules"`
	Plugins    []PluginActivation `yaml:"plugins" json:"plugins"`
	DevServer  *DevServerConfig   `yaml:"devServer,omitempty" json:"devServer,omitempty"`
}

type Output struct {
	Directory string `yaml:"directory" json:"directory"`
	// FilenamePattern names emitted entry bundles, [hash] is replaced by a content hash.
	FilenamePattern string `yaml:"filenamePattern" json:"filenamePattern"`
	// AssetPattern names standalone files emitted by file rules.
	AssetPattern string `yaml:"assetPattern" json:"assetPattern"`
}

type Resolution struct {
	// Extensions are tried in order for extensionless imports.
	Extensions []string          `yaml:"extensions" json:"extensions"`
	Aliases    map[string]string `yaml:"aliases" json:"aliases"`
}

// Handler is one named processing step of a transform rule.
type Handler struct {
	Name    string         `yaml:"name" json:"name"`
	Options map[string]any `yaml:"options,omitempty" json:"options,omitempty"`
}

// TransformRule maps a file pattern to the handlers that process matching files.
type TransformRule struct {
	Name     string    `yaml:"name" json:"name"`
	Pattern  string    `yaml:"pattern" json:"pattern"`
	Handlers []Handler `yaml:"handlers" json:"handlers"`
	// Fallback handles the content when Extract is false.
	Fallback *Handler `yaml:"fallback,omitempty" json:"fallback,omitempty"`
	Extract  bool     `yaml:"extract,omitempty" json:"extract,omitempty"`
	// InlineLimit is the largest size in bytes embedded as a data URL, zero disables inlining.
	InlineLimit int64    `yaml:"inlineLimit,omitempty" json:"inlineLimit,omitempty"`
	Include     []string `yaml:"include,omitempty" json:"include,omitempty"`
	Exclude     []string `yaml:"exclude,omitempty" json:"exclude,omitempty"`

	test *regexp.Regexp
}

// PluginActivation enables a named build plugin with its options.
type PluginActivation struct {
	Name    string         `yaml:"name" json:"name"`
	Options map[string]any `yaml:"options,omitempty" json:"options,omitempty"`
}

type DevServerConfig struct {
	ContentRoot     string      `yaml:"contentRoot" json:"contentRoot"`
	Host            string      `yaml:"host" json:"host"`
	Port            int         `yaml:"port" json:"port"`
	HotReload       bool        `yaml:"hotReload" json:"hotReload"`
	HistoryFallback bool        `yaml:"historyFallback" json:"historyFallback"`
	Progress        bool        `yaml:"progress" json:"progress"`
	Proxy           proxy.Table `yaml:"proxy,omitempty" json:"proxy,omitempty"`
}

// Bool returns a boolean option, false when missing.
func (p PluginActivation) Bool(key string) bool {
	v, _ := p.Options[key].(bool)
	return v
}

// String returns a string option, empty when missing.
func (p PluginActivation) String(key string) string {
	v, _ := p.Options[key].(string)
	return v
}

// Plugin returns the activation with the given name.
func (c *BuildConfig) Plugin(name string) (PluginActivation, bool) {
	for _, p := range c.Plugins {
		if p.Name == name {
			return p, true
		}
	}
	return PluginActivation{}, false
}

// Rule returns the transform rule with the given name.
func (c *BuildConfig) Rule(name string) (*TransformRule, bool) {
	for i := range c.Rules {
		if c.Rules[i].Name == name {
			return &c.Rules[i], true
		}
	}
	return nil, false
}

// RuleFor returns the first rule that applies to path, rules are tried in order.
func (c *BuildConfig) RuleFor(path string) (*TransformRule, bool) {
	for i := range c.Rules {
		if c.Rules[i].Matches(path) {
			return &c.Rules[i], true
		}
	}
	return nil, false
}

// MatchesName reports whether the file name satisfies the rule pattern, ignoring
// include and exclude scopes.
func (r *TransformRule) MatchesName(path string) bool {
	if r.test == nil {
		return false
	}
	return r.test.MatchString(path)
}

// Matches reports whether the rule applies to the absolute path. When a path is
// covered by both an include and an exclude entry, the more specific (longer) one
// decides, which lets a single dependency be whitelisted inside an excluded
// directory.
func (r *TransformRule) Matches(path string) bool {
	if !r.MatchesName(path) {
		return false
	}

	path = filepath.Clean(path)

	include := longestScope(r.Include, path)
	if len(r.Include) > 0 && include == "" {
		return false
	}

	exclude := longestScope(r.Exclude, path)
	return exclude == "" || len(include) > len(exclude)
}

// Handler returns the handler with the given name.
func (r *TransformRule) Handler(name string) (Handler, bool) {
	for _, h := range r.Handlers {
		if h.Name == name {
			return h, true
		}
	}
	return Handler{}, false
}

func longestScope(dirs []string, path string) string {
	var best string
	for _, dir := range dirs {
		if within(dir, path) && len(dir) > len(best) {
			best = dir
		}
	}
	return best
}

func within(dir, path string) bool {
	dir = filepath.Clean(dir)
	return path == dir || strings.HasPrefix(path, dir+string(filepath.Separator))
}
