package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/forgebuild/forge/internal/cache"
	"github.com/forgebuild/forge/internal/driver"
	"github.com/forgebuild/forge/internal/executor"
	"github.com/forgebuild/forge/internal/fingerprint"
	"github.com/forgebuild/forge/internal/resilience"
	"github.com/forgebuild/forge/internal/scheduler"
	"github.com/forgebuild/forge/internal/services"
	"github.com/forgebuild/forge/internal/target"
	"golang.org/x/xerrors"
)

// cmdbuild implements `forge build [target...]`: load the manifest, build
// the graph, and run the whole graph to completion through the wave
// scheduler. Named targets are only checked to exist; every target is
// built and reported either way.
//
// Grounded on internal/batch.Ctx.Build's top-level orchestration (load
// packages, build the graph, hand the whole thing to the scheduler), with
// the single hardcoded "distri build" subprocess generalized to the
// driver.Registry + executor.Executor pair.
func cmdbuild(ctx context.Context, args []string) error {
	fs := newFlagSet("build")
	addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	requested := fs.Args()

	ws, err := loadWorkspace(*workDir, manifestPath())
	if err != nil {
		return &exitCodeError{code: 2, err: err}
	}

	svc := services.New()

	cacheDir := joinPath(*workDir, *cacheDirFlag)
	store, err := cache.Open(cacheDir, cache.DefaultLimits())
	if err != nil {
		return xerrors.Errorf("open cache: %w", err)
	}
	registerAtExit(func() error { store.CloseBestEffort(); return nil })

	drivers := driverRegistry()

	exec := &executor.Executor{
		Cache:    store,
		Drivers:  drivers,
		Hasher:   fingerprint.NewHasher(),
		Retry:    svc.Retry,
		Breakers: resilience.NewRegistry(3, 30*time.Second),
		Services: svc,
		BuildHashOf: func(id target.Id) (string, bool) {
			e, ok := store.GetTarget(id)
			return e.BuildHash, ok
		},
	}

	if ckpt, err := resilience.Open(filepath.Join(cacheDir, "checkpoint.bin"), ws.structuralHash(), toolVersion); err == nil {
		exec.Checkpoint = ckpt
		registerAtExit(ckpt.Close)
	} else {
		svc.Logger.Printf("checkpoint disabled: %v", err)
	}

	jobs := *jobsFlag
	if jobs <= 0 {
		jobs = defaultJobs()
	}
	sched := scheduler.New(ws.g, exec, jobs, *workDir, outputDir())

	if len(requested) > 0 {
		if err := restrictTo(ws, requested); err != nil {
			return &exitCodeError{code: 2, err: err}
		}
	}

	report, err := sched.Run(ctx)
	if err != nil && err != context.Canceled {
		return xerrors.Errorf("build: %w", err)
	}
	if flushErr := store.Flush(); flushErr != nil {
		svc.Logger.Printf("cache flush: %v", flushErr)
	}

	printReport(report)

	if err == context.Canceled {
		return &exitCodeError{code: 130}
	}
	if report.Failed > 0 {
		return &exitCodeError{code: 1}
	}
	return nil
}

// restrictTo errors out if any requested target id is absent from the
// graph. It neither prunes the graph nor filters the report: the whole
// graph is built and every target's result is printed.
func restrictTo(ws *workspace, requested []string) error {
	for _, id := range requested {
		if _, ok := ws.g.Node(target.Id(id)); !ok {
			return target.ConfigErrorf("unknown target %q", id)
		}
	}
	return nil
}

func printReport(r *scheduler.Report) {
	fmt.Printf("build finished: %d succeeded, %d cached, %d failed (%d primary)\n",
		r.Succeeded, r.Cached, r.Failed, r.PrimaryFailures)
	if *verbose {
		for id, res := range r.Results {
			if res.Success {
				fmt.Printf("ok   %s cached=%v\n", id, res.Cached)
			}
		}
	}
	for id, res := range r.Results {
		if !res.Success {
			fmt.Fprintf(os.Stderr, "FAIL %s: %v\n", id, res.Err)
		}
	}
}
