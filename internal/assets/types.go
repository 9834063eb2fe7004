package assets

import (
	"sync"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/wolfeidau/assetpack/internal/buildconfig"
)

// BuildMetadata is the subset of the esbuild metafile the pipeline reads. Paths
// are relative to the project root.
type BuildMetadata struct {
	Inputs  map[string]InputInfo  `json:"inputs"`
	Outputs map[string]OutputInfo `json:"outputs"`
}

type InputInfo struct {
	Bytes   int          `json:"bytes"`
	Imports []ImportInfo `json:"imports"`
}

type OutputInfo struct {
	Bytes      int          `json:"bytes"`
	EntryPoint string       `json:"entryPoint"`
	CSSBundle  string       `json:"cssBundle"`
	Imports    []ImportInfo `json:"imports"`
}

type ImportInfo struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	External bool   `json:"external"`
}

// Result summarises one completed build.
type Result struct {
	BuildID  string
	Duration time.Duration
	Outputs  []string
	Cycles   [][]string
	Warnings []string
}

// Pipeline runs esbuild for a BuildConfig and keeps the metadata of the last build.
type Pipeline struct {
	config   *buildconfig.BuildConfig
	metadata *BuildMetadata
	cleaned  bool
	// previous lists the files written by the last successful build
	previous []string
	side     sideOutputs
	// plugins run after the pipeline's own plugins
	plugins []api.Plugin
	mu      sync.RWMutex
}

// New creates a new asset pipeline for the given configuration
func New(config *buildconfig.BuildConfig) *Pipeline {
	return &Pipeline{
		config: config,
	}
}

// Config returns the configuration the pipeline was created with.
func (p *Pipeline) Config() *buildconfig.BuildConfig {
	return p.config
}
