package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/wolfeidau/assetpack/internal/buildconfig"
	"gopkg.in/yaml.v3"
)

type ConfigCmd struct {
	Format string `help:"output format" default:"yaml" enum:"yaml,json"`
}

func (c *ConfigCmd) Run(globals *Globals) error {
	cfg, _, err := loadConfig(globals)
	if err != nil {
		return err
	}
	return c.write(os.Stdout, cfg)
}

func (c *ConfigCmd) write(w io.Writer, cfg *buildconfig.BuildConfig) error {
	switch c.Format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported format %q", c.Format)
	}
}
