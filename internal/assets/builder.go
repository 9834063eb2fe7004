package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/assetpack/internal/buildconfig"
	"github.com/wolfeidau/assetpack/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

// Build runs esbuild once with the configured settings and loads metadata. The
// build is cancelled when ctx is done.
func (p *Pipeline) Build(ctx context.Context) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts, err := p.options()
	if err != nil {
		return nil, err
	}

	if err := p.clean(); err != nil {
		return nil, err
	}

	ctx, span := telemetry.Tracer().Start(ctx, "assets.build")
	defer span.End()
	span.SetAttributes(attribute.String("mode", p.config.Mode.String()))

	buildCtx, ctxErr := api.Context(opts)
	if ctxErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildFailed, messagesError(ctxErr.Errors))
	}
	defer buildCtx.Dispose()

	log.Info().Strs("entrypoints", opts.EntryPoints).Str("mode", p.config.Mode.String()).Msg("Building assets")

	started := time.Now()
	result := rebuild(ctx, buildCtx)
	if err := ctx.Err(); err != nil {
		p.side.drain()
		span.SetStatus(codes.Error, "build aborted")
		return nil, fmt.Errorf("build aborted: %w", err)
	}

	res, err := p.finish(ctx, &result, time.Since(started))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build failed")
	}
	return res, err
}

// rebuild runs one build on buildCtx, cancelling it if ctx is done first.
func rebuild(ctx context.Context, buildCtx api.BuildContext) api.BuildResult {
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		select {
		case <-ctx.Done():
			buildCtx.Cancel()
		case <-done:
		}
	}()

	result := buildCtx.Rebuild()
	close(done)
	<-stopped
	return result
}

func (p *Pipeline) options() (api.BuildOptions, error) {
	opts, err := options(p.config, &p.side)
	if err != nil {
		return opts, err
	}
	opts.Plugins = append(opts.Plugins, p.plugins...)
	return opts, nil
}

// Watch builds, then rebuilds whenever a source file changes until ctx is cancelled.
// onRebuild is called after every build, including the first.
func (p *Pipeline) Watch(ctx context.Context, onRebuild func(*Result, error)) error {
	opts, err := p.options()
	if err != nil {
		return err
	}

	if err := p.clean(); err != nil {
		return err
	}

	var started time.Time
	opts.Plugins = append(opts.Plugins, api.Plugin{
		Name: "rebuild-notify",
		Setup: func(build api.PluginBuild) {
			build.OnStart(func() (api.OnStartResult, error) {
				started = time.Now()
				if p.progress() {
					log.Info().Msg("Rebuilding assets")
				}
				return api.OnStartResult{}, nil
			})
			build.OnEnd(func(result *api.BuildResult) (api.OnEndResult, error) {
				res, err := p.finish(ctx, result, time.Since(started))
				if onRebuild != nil {
					onRebuild(res, err)
				}
				return api.OnEndResult{}, nil
			})
		},
	})

	buildCtx, ctxErr := api.Context(opts)
	if ctxErr != nil {
		return fmt.Errorf("%w: %w", ErrBuildFailed, messagesError(ctxErr.Errors))
	}
	defer buildCtx.Dispose()

	log.Info().Strs("entrypoints", opts.EntryPoints).Msg("Watching assets")

	if err := buildCtx.Watch(api.WatchOptions{}); err != nil {
		return fmt.Errorf("failed to start watch: %w", err)
	}

	<-ctx.Done()
	return nil
}

func (p *Pipeline) progress() bool {
	return p.config.DevServer != nil && p.config.DevServer.Progress
}

// clean removes the output directory before the first build when the clean plugin
// is active.
func (p *Pipeline) clean() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cleaned {
		return nil
	}
	p.cleaned = true

	if _, ok := p.config.Plugin(buildconfig.PluginClean); !ok {
		return nil
	}

	log.Debug().Str("dir", p.config.Output.Directory).Msg("Cleaning output directory")
	if err := os.RemoveAll(p.config.Output.Directory); err != nil {
		return fmt.Errorf("failed to clean output directory: %w", err)
	}
	return nil
}

// finish turns an esbuild result into a Result, running the post build plugins.
func (p *Pipeline) finish(ctx context.Context, result *api.BuildResult, duration time.Duration) (*Result, error) {
	res, err := p.collect(result, duration)

	m := telemetry.GetMetrics()
	attrs := metric.WithAttributes(attribute.String("mode", p.config.Mode.String()))
	m.BuildsTotal.Add(ctx, 1, attrs)
	m.BuildDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	if err != nil {
		m.BuildErrorsTotal.Add(ctx, 1, attrs)
		return nil, err
	}
	m.OutputFiles.Record(ctx, int64(len(res.Outputs)), attrs)
	m.CyclesDetected.Add(ctx, int64(len(res.Cycles)), attrs)

	return res, nil
}

func (p *Pipeline) collect(result *api.BuildResult, duration time.Duration) (*Result, error) {
	if len(result.Errors) > 0 {
		p.side.drain()
		for _, msg := range result.Errors {
			log.Error().Str("error", msg.Text).Msg("Build error")
		}
		return nil, fmt.Errorf("%w: %w", ErrBuildFailed, messagesError(result.Errors))
	}

	res := &Result{
		BuildID:  uuid.NewString(),
		Duration: duration,
	}

	for _, msg := range result.Warnings {
		log.Warn().Str("warning", msg.Text).Msg("Build warning")
		res.Warnings = append(res.Warnings, msg.Text)
	}

	written := make([]string, 0, len(result.OutputFiles))
	for _, file := range result.OutputFiles {
		log.Debug().Str("file", file.Path).Msg("Built file")
		written = append(written, file.Path)
	}
	sort.Strings(written)

	res.Outputs = append(slices.Clone(written), p.side.drain()...)
	sort.Strings(res.Outputs)
	res.Outputs = slices.Compact(res.Outputs)

	// Parse and cache metadata
	var metadata BuildMetadata
	if err := json.Unmarshal([]byte(result.Metafile), &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metafile: %w", err)
	}

	if guard, ok := p.config.Plugin(buildconfig.PluginCircularDependency); ok {
		res.Cycles = FindCycles(&metadata, guard.String("exclude"))
		for _, cycle := range res.Cycles {
			log.Warn().Str("cycle", strings.Join(cycle, " -> ")).Msg("Circular dependency detected")
		}
		if len(res.Cycles) > 0 && guard.Bool("failOnError") {
			return nil, fmt.Errorf("%w: %d cycles", ErrCircularDependency, len(res.Cycles))
		}
	}

	if html, ok := p.config.Plugin(buildconfig.PluginHTML); ok {
		hotReload := p.config.DevServer != nil && p.config.DevServer.HotReload
		if err := p.writeHTML(&metadata, html.String("template"), hotReload); err != nil {
			return nil, fmt.Errorf("failed to write html shell: %w", err)
		}
	}

	p.mu.Lock()
	p.metadata = &metadata
	stale := p.previous
	p.previous = written
	p.mu.Unlock()

	// files referenced from injected stylesheets are content hashed and left alone
	removeStale(stale, written)

	log.Info().
		Str("build", res.BuildID).
		Int("files", len(res.Outputs)).
		Dur("duration", res.Duration).
		Msg("Assets built")

	return res, nil
}

// removeStale deletes files of an earlier build that the latest build no longer
// writes. current must be sorted.
func removeStale(previous, current []string) {
	for _, path := range previous {
		if _, found := slices.BinarySearch(current, path); found {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Err(err).Str("file", path).Msg("Failed to remove stale output")
			continue
		}
		log.Debug().Str("file", path).Msg("Removed stale output")
	}
}

func messagesError(msgs []api.Message) error {
	formatted := api.FormatMessages(msgs, api.FormatMessagesOptions{
		Kind: api.ErrorMessage,
	})

	errs := make([]error, 0, len(formatted))
	for _, msg := range formatted {
		errs = append(errs, errors.New(strings.TrimSpace(msg)))
	}
	return errors.Join(errs...)
}
