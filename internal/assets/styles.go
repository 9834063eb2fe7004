package assets

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/wolfeidau/assetpack/internal/buildconfig"
)

// sideOutputs collects files written outside the main esbuild output, such as
// images referenced from injected stylesheets.
type sideOutputs struct {
	mu    sync.Mutex
	paths []string
}

func (s *sideOutputs) add(paths ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths = append(s.paths, paths...)
}

// drain returns the recorded paths and resets the set for the next build.
func (s *sideOutputs) drain() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := s.paths
	s.paths = nil
	return paths
}

type stylesheet struct {
	css    string
	assets []string
	// inputs are every file the stylesheet pulled in, watched for rebuilds
	inputs []string
}

// compileStylesheet bundles a single stylesheet so url() and @import references
// resolve and emit exactly as they do for an extracted build. Emitted files are
// written to the output directory and referenced from the site root.
func compileStylesheet(cfg *buildconfig.BuildConfig, path string) (*stylesheet, error) {
	result := api.Build(api.BuildOptions{
		AbsWorkingDir:     cfg.Root,
		EntryPoints:       []string{path},
		Bundle:            true,
		Write:             false,
		Metafile:          true,
		Outdir:            cfg.Output.Directory,
		EntryNames:        "[name]",
		AssetNames:        cfg.Output.AssetPattern,
		PublicPath:        "/",
		ResolveExtensions: cfg.Resolution.Extensions,
		LogLevel:          api.LogLevelSilent,
		Plugins: []api.Plugin{
			aliasPlugin(cfg.Resolution.Aliases),
			transformPlugin(cfg, nil),
		},
	})
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("failed to compile %s: %w", filepath.Base(path), messagesError(result.Errors))
	}

	sheet := &stylesheet{}
	for _, file := range result.OutputFiles {
		if filepath.Ext(file.Path) == ".css" {
			sheet.css = string(file.Contents)
			continue
		}
		if err := os.MkdirAll(filepath.Dir(file.Path), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(file.Path, file.Contents, 0o644); err != nil { //nolint:gosec
			return nil, err
		}
		sheet.assets = append(sheet.assets, file.Path)
	}

	var metadata BuildMetadata
	if err := json.Unmarshal([]byte(result.Metafile), &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse stylesheet metafile: %w", err)
	}
	for input := range metadata.Inputs {
		// inputs from other namespaces are prefixed, e.g. "dataurl:"
		if strings.Contains(input, ":") {
			continue
		}
		sheet.inputs = append(sheet.inputs, filepath.Join(cfg.Root, filepath.FromSlash(input)))
	}
	sort.Strings(sheet.inputs)
	sheet.inputs = slices.Compact(sheet.inputs)

	return sheet, nil
}
