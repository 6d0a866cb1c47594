// Package builder builds the missing module dependencies of a source file.
//
// Building alternates discovery and rebuilding: the unresolved modules of a
// file are looked up in the source database, the sources found are rebuilt
// in one batch, and each rebuilt source is then analysed in turn, depth
// first, until no round produces anything new to build.
package builder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/pydep/discover"
	"github.com/c360studio/pydep/searchpath"
)

// Discoverer reports the dependencies of a source file.
type Discoverer interface {
	Discover(ctx context.Context, source string, path searchpath.SearchPath) (*discover.DependencySet, error)
}

// Locator maps module names to candidate source files.
type Locator interface {
	Locate(ctx context.Context, names []string) ([]string, error)
}

// Rebuilder brings a batch of targets up to date, all or nothing.
type Rebuilder interface {
	RedoIfChange(ctx context.Context, targets ...string) error
}

// Config configures a Builder.
type Config struct {
	Discoverer Discoverer
	Locator    Locator
	Rebuilder  Rebuilder
	Metrics    *Metrics
	Logger     *slog.Logger
}

// Builder runs dependency-building invocations.
type Builder struct {
	discoverer Discoverer
	locator    Locator
	rebuilder  Rebuilder
	metrics    *Metrics
	logger     *slog.Logger
}

// Result summarises one run.
type Result struct {
	PlanID string

	// NotOnPath are all sources located under the plan, deduplicated and
	// sorted. Their directories are not on the active search path.
	NotOnPath []string

	// Built are the sources rebuilt during this run, in request order.
	Built []string

	// Requests are the rebuild batches submitted during this run.
	Requests [][]string

	// Passes is the number of discovery passes during this run.
	Passes int
}

// New creates a Builder.
func New(cfg Config) (*Builder, error) {
	if cfg.Discoverer == nil || cfg.Locator == nil || cfg.Rebuilder == nil {
		return nil, fmt.Errorf("builder requires a discoverer, locator and rebuilder")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Builder{
		discoverer: cfg.Discoverer,
		locator:    cfg.Locator,
		rebuilder:  cfg.Rebuilder,
		metrics:    metrics,
		logger:     logger,
	}, nil
}

// BuildMissingDeps builds the missing dependencies of source under a fresh
// plan.
func (b *Builder) BuildMissingDeps(ctx context.Context, source string, path searchpath.SearchPath) (*Result, error) {
	return b.Run(ctx, NewPlan(), source, path)
}

// Run builds the missing dependencies of source under plan. Sources the plan
// already built are never requested again, so a second run under the same
// plan issues no rebuilds unless something new became locatable.
//
// A discovery, lookup or rebuild failure aborts the run.
func (b *Builder) Run(ctx context.Context, plan *Plan, source string, path searchpath.SearchPath) (*Result, error) {
	start := time.Now()
	logger := b.logger.With("plan", plan.ID.String())
	logger.Info("Building missing dependencies", "source", source)

	firstRequest := len(plan.requests)
	firstBuilt := len(plan.builtOrder)
	firstPass := plan.passes

	err := b.run(ctx, plan, source, path, logger)

	status := "ok"
	if err != nil {
		status = "error"
	}
	b.metrics.Duration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	result := &Result{
		PlanID:    plan.ID.String(),
		NotOnPath: plan.NotOnPath(),
		Built:     append([]string(nil), plan.builtOrder[firstBuilt:]...),
		Requests:  plan.Requests()[firstRequest:],
		Passes:    plan.passes - firstPass,
	}
	logger.Info("Dependencies built",
		"source", source,
		"passes", result.Passes,
		"rebuilt", len(result.Built),
		"not_on_path", len(result.NotOnPath),
		"duration", time.Since(start))
	return result, nil
}

// run is a depth-first worklist over sources. Each popped source gets one
// discovery pass; the sources rebuilt for it are pushed in reverse so they
// are analysed in request order before any sibling of their parent.
func (b *Builder) run(ctx context.Context, plan *Plan, source string, path searchpath.SearchPath, logger *slog.Logger) error {
	stack := []string{source}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		batch, err := b.step(ctx, plan, current, path, logger)
		if err != nil {
			return err
		}
		for i := len(batch) - 1; i >= 0; i-- {
			stack = append(stack, batch[i])
		}
	}
	return nil
}

// step runs one discovery pass over source and rebuilds whatever it needs
// that has not been built yet. It returns the rebuilt batch.
func (b *Builder) step(ctx context.Context, plan *Plan, source string, path searchpath.SearchPath, logger *slog.Logger) ([]string, error) {
	deps, err := b.discoverer.Discover(ctx, source, path)
	if err != nil {
		return nil, err
	}
	plan.passes++
	b.metrics.Passes.Inc()

	names := deps.UnresolvedNames()
	if len(names) == 0 {
		return nil, nil
	}

	located, err := b.locator.Locate(ctx, names)
	if err != nil {
		return nil, err
	}
	b.metrics.Located.Add(float64(len(located)))
	for _, l := range located {
		plan.addNotOnPath(l)
	}

	batch := plan.pending(located)
	if len(batch) == 0 {
		logger.Debug("Nothing new to build", "source", source, "unresolved", len(names))
		return nil, nil
	}

	logger.Info("Rebuilding dependencies", "source", source, "targets", batch)
	if err := b.rebuilder.RedoIfChange(ctx, batch...); err != nil {
		return nil, fmt.Errorf("rebuild dependencies of %s: %w", source, err)
	}
	plan.markBuilt(batch)
	b.metrics.Requests.Inc()
	b.metrics.Rebuilt.Add(float64(len(batch)))
	return batch, nil
}
