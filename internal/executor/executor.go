// Package executor implements the action executor of §4.1/§4.4: invoke the
// language driver for one node, check/update the cache, and wrap the call
// in the resilience policy.
//
// Grounded on internal/build/build.go's Ctx.Build, the single entry point
// that orchestrates one distri package's full build (extract, patch,
// build, package) -- generalized here to "drive one BuildNode through its
// registered language driver."
package executor

import (
	"context"
	"time"

	"github.com/forgebuild/forge/internal/cache"
	"github.com/forgebuild/forge/internal/driver"
	"github.com/forgebuild/forge/internal/fingerprint"
	"github.com/forgebuild/forge/internal/resilience"
	"github.com/forgebuild/forge/internal/services"
	"github.com/forgebuild/forge/internal/target"
)

// Executor runs one node's build, consulting the cache first.
type Executor struct {
	Cache      *cache.Store
	Drivers    *driver.Registry
	Hasher     *fingerprint.Hasher
	Retry      resilience.Policy
	Breakers   *resilience.Registry
	Checkpoint *resilience.Checkpoint
	Services   *services.Services

	// BuildHashOf resolves a dependency's current build hash, usually
	// backed by the in-flight build's own result map (see
	// cache.BuildHashOf).
	BuildHashOf cache.BuildHashOf
}

// Run executes node: on a cache hit it returns immediately with
// Cached=true and no driver invocation; on a miss it invokes the driver
// (wrapped in the retry policy and that driver's circuit breaker), updates
// the cache and checkpoint on success, and returns a target.BuildResult
// ready for the scheduler to act on.
func (e *Executor) Run(ctx context.Context, n *target.Node, workDir, outputDir string, depOutputs map[target.Id]string) target.BuildResult {
	t := n.Target
	deps := t.SortedDeps()

	hit, _, err := e.Cache.IsCached(e.Hasher, t.ID, t.Sources, deps, e.BuildHashOf)
	if err != nil {
		return target.BuildResult{Target: t.ID, Success: false, Err: err}
	}
	if hit {
		n.SetStatus(target.StatusCached)
		return target.BuildResult{Target: t.ID, Success: true, Cached: true}
	}

	d, ok := e.Drivers.For(t.Language)
	if !ok {
		err := target.NewError(target.CodeConfig, nil, "no driver registered for language %q", t.Language)
		return target.BuildResult{Target: t.ID, Success: false, Err: err}
	}
	if !d.IsAvailable() {
		err := target.NewError(target.CodeSystem, nil, "toolchain for language %q is not available on this host", t.Language)
		return target.BuildResult{Target: t.ID, Success: false, Err: err}
	}

	bc := &driver.BuildContext{Node: n, WorkDir: workDir, OutputDir: outputDir, DepOutputs: depOutputs, Services: e.Services}

	cb := e.Breakers.For(string(t.Language))
	var outcome driver.BuildOutcome
	runErr := resilience.Do(ctx, e.Retry, cb, func(attempt int) error {
		if attempt > 0 {
			n.IncrementRetry()
			if e.Services != nil {
				e.Services.Logger.Printf("retrying %s (attempt %d)", t.ID, attempt)
			}
		}
		out, err := d.Build(ctx, bc)
		if err != nil {
			return err
		}
		outcome = out
		return nil
	})
	if runErr != nil {
		return target.BuildResult{Target: t.ID, Success: false, Err: runErr}
	}

	newEntry := buildEntryFor(t, outcome, e.Hasher, e.BuildHashOf)
	e.Cache.PutTarget(newEntry)
	n.SetStatus(target.StatusSuccess)

	if e.Checkpoint != nil {
		_ = e.Checkpoint.Append(t.ID, newEntry.BuildHash)
	}

	return target.BuildResult{Target: t.ID, Success: true}
}

func buildEntryFor(t *target.Target, outcome driver.BuildOutcome, h *fingerprint.Hasher, buildHashOf cache.BuildHashOf) cache.Entry {
	contentHashes := make(map[string]string, len(t.Sources))
	metaHashes := make(map[string]string, len(t.Sources))
	for _, src := range t.Sources {
		if c, err := h.HashFile(src); err == nil {
			contentHashes[src] = string(c)
		}
		if m, err := fingerprint.StatMetadata(src); err == nil {
			metaHashes[src] = m.Encode()
		}
	}
	depHashes := make(map[target.Id]string, len(t.Deps))
	for dep := range t.Deps {
		if buildHashOf != nil {
			depHashes[dep], _ = buildHashOf(dep)
		}
	}
	buildHash := outcome.OutputHash
	if buildHash == "" {
		buildHash = string(mustHashOutput(outcome.OutputPath, h))
	}
	return cache.Entry{
		TargetID:             t.ID,
		BuildHash:            buildHash,
		SourceContentHashes:  contentHashes,
		SourceMetadataHashes: metaHashes,
		DepBuildHashes:       depHashes,
		LastAccessAt:         time.Now(),
	}
}

func mustHashOutput(path string, h *fingerprint.Hasher) fingerprint.Content {
	if path == "" {
		return ""
	}
	c, err := h.HashFile(path)
	if err != nil {
		return ""
	}
	return c
}
