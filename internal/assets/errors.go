package assets

import "errors"

var (
	// ErrBuildFailed indicates esbuild reported errors
	ErrBuildFailed = errors.New("esbuild failed with errors")
	// ErrNoEntryPoints indicates none of the configured entries could be used
	ErrNoEntryPoints = errors.New("no entry points found")
	// ErrCircularDependency indicates an import cycle when the guard is set to fail
	ErrCircularDependency = errors.New("circular dependency detected")
	// ErrNotBuilt indicates metadata was requested before the first build
	ErrNotBuilt = errors.New("assets not built yet, call Build() first")
	// ErrEntryNotFound indicates the entry point has no output in the metadata
	ErrEntryNotFound = errors.New("entrypoint not found in metadata")
)
