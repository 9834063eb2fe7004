package proxy

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileNames are the proxy table sources looked up in the project root, in order.
var FileNames = []string{"serverProxy.yaml", "serverProxy.yml", "serverProxy.json"}

// Table maps a request path pattern to the upstream it is forwarded to.
type Table map[string]Rule

// Rule describes a single upstream. In a table file it may be written either as a
// bare target URL or as an object.
type Rule struct {
	Target       string            `yaml:"target" json:"target"`
	ChangeOrigin bool              `yaml:"changeOrigin,omitempty" json:"changeOrigin,omitempty"`
	Secure       *bool             `yaml:"secure,omitempty" json:"secure,omitempty"`
	PathRewrite  map[string]string `yaml:"pathRewrite,omitempty" json:"pathRewrite,omitempty"`
}

// UnmarshalYAML accepts both `"/api": "http://localhost:3000"` and the object form.
func (r *Rule) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var target string
		if err := node.Decode(&target); err != nil {
			return err
		}
		*r = Rule{Target: target}
		return nil
	}

	type plain Rule
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*r = Rule(p)
	return nil
}

// VerifyTLS reports whether the upstream certificate should be verified, which is
// the default when secure is not set.
func (r Rule) VerifyTLS() bool {
	return r.Secure == nil || *r.Secure
}

// Validate checks that every rule names a target.
func (t Table) Validate() error {
	for pattern, rule := range t {
		if pattern == "" {
			return fmt.Errorf("%w: empty pattern", ErrInvalidTable)
		}
		if rule.Target == "" {
			return fmt.Errorf("%w: pattern %q has no target", ErrInvalidTable, pattern)
		}
	}
	return nil
}

// Load reads a proxy table from a YAML or JSON file.
func Load(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	table := Table{}
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse proxy table %s: %w", path, err)
	}

	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("proxy table %s: %w", path, err)
	}

	return table, nil
}

// LoadDir finds the first proxy table file in dir and loads it. The returned path is
// empty when no table file exists, in which case the table is empty too.
func LoadDir(dir string) (Table, string, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		table, err := Load(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, path, err
		}
		return table, path, nil
	}
	return Table{}, "", nil
}
