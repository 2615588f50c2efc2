// Package scheduler implements the wave-based parallel dispatch loop of
// §4.1/§5: a pool of worker goroutines drains a ready queue, decrementing
// pending_deps on dependents as nodes complete and cascading Failed status
// on any failure, with fail-fast cancellation once the global failed
// counter goes non-zero.
//
// Grounded on internal/batch/batch.go's scheduler type (run, build,
// updateStatus, refreshStatus, markFailed, canBuild), generalized from a
// single hardcoded "distri build" subprocess per node to an injected
// executor.Executor, and from a fixed package list to an arbitrary
// graph.Graph.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/forgebuild/forge/internal/executor"
	"github.com/forgebuild/forge/internal/graph"
	"github.com/forgebuild/forge/internal/target"
	"github.com/forgebuild/forge/internal/trace"
	"github.com/mattn/go-isatty"
	"golang.org/x/sync/errgroup"
)

// Report summarizes a completed (or fail-fast-aborted) build run.
type Report struct {
	Succeeded       int
	Cached          int
	Failed          int
	PrimaryFailures int
	Results         map[target.Id]target.BuildResult
}

// Scheduler drives one build of a Graph to completion.
type Scheduler struct {
	Graph    *graph.Graph
	Exec     *executor.Executor
	Workers  int
	WorkDir  string
	OutDir   string

	statusMu   sync.Mutex
	status     []string
	lastStatus time.Time

	failed        int32
	primaryFailed int32
	cancelled     int32

	resultsMu sync.Mutex
	results   map[target.Id]target.BuildResult
}

// New constructs a Scheduler with workers status lines preallocated
// (index 0 is the aggregate line, 1..workers are per-worker lines,
// mirroring batch.scheduler's status slice layout).
func New(g *graph.Graph, ex *executor.Executor, workers int, workDir, outDir string) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{
		Graph:   g,
		Exec:    ex,
		Workers: workers,
		WorkDir: workDir,
		OutDir:  outDir,
		status:  make([]string, workers+1),
		results: make(map[target.Id]target.BuildResult),
	}
}

var isTerminal = func() bool {
	return isatty.IsTerminal(os.Stdout.Fd())
}()

// updateStatus mirrors batch.scheduler.updateStatus: non-terminal runs
// (CI, piped output) skip the live redraw entirely.
func (s *Scheduler) updateStatus(idx int, line string) {
	if !isTerminal {
		return
	}
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if diff := len(s.status[idx]) - len(line); diff > 0 {
		line += strings.Repeat(" ", diff)
	}
	s.status[idx] = line
	if time.Since(s.lastStatus) < 100*time.Millisecond {
		return
	}
	s.lastStatus = time.Now()
	for _, l := range s.status {
		fmt.Println(l)
	}
	fmt.Printf("\033[%dA", len(s.status))
}

func (s *Scheduler) isCancelled() bool {
	return atomic.LoadInt32(&s.cancelled) != 0
}

// Run executes the build to completion (or to fail-fast abort). It never
// panics on a node failure; failures are reported via the per-node Err in
// the returned Report.
func (s *Scheduler) Run(ctx context.Context) (*Report, error) {
	nodes := s.Graph.All()
	for _, n := range nodes {
		n.InitPendingDeps()
		n.SetStatus(target.StatusPending)
	}

	numNodes := len(nodes)
	work := make(chan *target.Node, numNodes)
	done := make(chan target.BuildResult, numNodes)

	eg, workerCtx := errgroup.WithContext(ctx)

	for i := 0; i < s.Workers; i++ {
		workerIdx := i
		eg.Go(func() error {
			return s.workerLoop(workerCtx, workerIdx, work, done)
		})
	}

	dispatchDone := make(chan struct{})
	go s.dispatch(ctx, nodes, work, done, dispatchDone)

	<-dispatchDone
	close(work)
	werr := eg.Wait()

	if werr != nil && werr != context.Canceled {
		return s.report(), werr
	}
	return s.report(), ctx.Err()
}

func (s *Scheduler) workerLoop(ctx context.Context, idx int, work <-chan *target.Node, done chan<- target.BuildResult) error {
	for n := range work {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.isCancelled() {
			select {
			case done <- target.BuildResult{Target: n.Target.ID, Skipped: true}:
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		n.SetStatus(target.StatusBuilding)
		s.updateStatus(idx+1, "building "+string(n.Target.ID))
		start := time.Now()
		ev := trace.Event(string(n.Target.ID), idx+1)
		ev.Categories = "build"

		resultCh := make(chan target.BuildResult, 1)
		go func() {
			resultCh <- s.Exec.Run(ctx, n, s.WorkDir, s.OutDir, s.depOutputs(n))
		}()

		ticker := time.NewTicker(1 * time.Second)
		var result target.BuildResult
	wait:
		for {
			select {
			case result = <-resultCh:
				break wait
			case <-ticker.C:
				s.updateStatus(idx+1, fmt.Sprintf("building %s since %v", n.Target.ID, time.Since(start)))
			case <-ctx.Done():
				ticker.Stop()
				return ctx.Err()
			}
		}
		ticker.Stop()
		ev.Args = map[string]interface{}{"cached": result.Cached, "success": result.Success}
		ev.Done()

		select {
		case done <- result:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.updateStatus(idx+1, "idle")
	}
	return nil
}

// depOutputs gathers the resolved output paths of n's already-completed
// dependencies, for drivers that need to reference dependency artifacts
// (e.g. include/library paths).
func (s *Scheduler) depOutputs(n *target.Node) map[target.Id]string {
	s.resultsMu.Lock()
	defer s.resultsMu.Unlock()
	out := make(map[target.Id]string, len(n.DependencyIDs))
	for dep := range n.DependencyIDs {
		if r, ok := s.results[dep]; ok && r.Success {
			if dn, ok := s.Graph.Node(dep); ok {
				out[dep] = dn.Target.OutputPath
			}
		}
	}
	return out
}

// dispatch is the single-goroutine scheduler tick of §4.1 steps 1,4–5: it
// owns the ready queue, pending_deps propagation and cascading failure. It
// terminates per §4.1's termination rule -- ready queue empty and no task
// active, or fail-fast triggered and every in-flight task has reported
// in -- rather than waiting for every node to reach a terminal state: a
// node unrelated to the failing subtree that becomes ready only after
// fail-fast simply never gets dispatched and is left Pending, which still
// satisfies invariant 8 (its own pending_deps is 0, it was just never
// built).
func (s *Scheduler) dispatch(ctx context.Context, nodes []*target.Node, work chan<- *target.Node, done <-chan target.BuildResult, finished chan<- struct{}) {
	defer close(finished)

	active := 0
	enqueue := func(n *target.Node) {
		active++
		select {
		case work <- n:
		case <-ctx.Done():
		}
	}

	// Seed the ready queue with every node that starts with no pending
	// dependencies, per §4.1's scheduling loop step 1.
	for _, n := range nodes {
		if n.PendingDeps() == 0 {
			enqueue(n)
		}
	}

	for active > 0 {
		select {
		case result := <-done:
			active--
			if result.Skipped {
				continue // left Pending; not recorded as a verdict
			}
			s.recordResult(result)
			n, ok := s.Graph.Node(result.Target)
			if !ok {
				continue
			}

			if result.Success {
				if s.isCancelled() {
					continue // fail-fast: no new dispatch, just drain in-flight
				}
				for dep := range n.DependentIDs {
					d, ok := s.Graph.Node(dep)
					if !ok {
						continue
					}
					if d.DecrementPendingDeps() == 0 {
						enqueue(d)
					}
				}
			} else {
				s.markCascadeFailed(n)
				atomic.StoreInt32(&s.cancelled, 1)
			}

		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) recordResult(r target.BuildResult) {
	s.resultsMu.Lock()
	defer s.resultsMu.Unlock()
	s.results[r.Target] = r
}

// markCascadeFailed transitions n itself to Failed (it was left in
// StatusBuilding or StatusPending by the caller) and recursively marks
// every not-yet-terminal transitive dependent of n as Failed too, per
// §4.1 step 5, returning the count of newly marked dependents (n's status
// transition is counted by the caller, not by the return value). Each
// node's failed-transition is counted exactly once,
// resolving SPEC_FULL.md's open question on cascading failure counting:
// primaryFailed increments only for n itself, failed increments for every
// transition into Failed including n's.
func (s *Scheduler) markCascadeFailed(n *target.Node) int {
	atomic.AddInt32(&s.primaryFailed, 1)
	atomic.AddInt32(&s.failed, 1)

	if !n.CompareAndSwapStatus(target.StatusBuilding, target.StatusFailed) {
		n.CompareAndSwapStatus(target.StatusPending, target.StatusFailed)
	}

	newlyFailed := 0
	var walk func(cur *target.Node)
	walk = func(cur *target.Node) {
		for depID := range cur.DependentIDs {
			d, ok := s.Graph.Node(depID)
			if !ok {
				continue
			}
			if !d.CompareAndSwapStatus(target.StatusPending, target.StatusFailed) &&
				!d.CompareAndSwapStatus(target.StatusBuilding, target.StatusFailed) {
				continue // already terminal: don't double count or re-walk
			}
			atomic.AddInt32(&s.failed, 1)
			newlyFailed++
			s.resultsMu.Lock()
			s.results[d.Target.ID] = target.BuildResult{
				Target:  d.Target.ID,
				Success: false,
				Err:     target.NewError(target.CodeBuildFailure, nil, "dependency %q failed", n.Target.ID),
			}
			s.resultsMu.Unlock()
			walk(d)
		}
	}
	walk(n)
	return newlyFailed
}

func (s *Scheduler) report() *Report {
	s.resultsMu.Lock()
	defer s.resultsMu.Unlock()
	rep := &Report{Results: make(map[target.Id]target.BuildResult, len(s.results))}
	for id, r := range s.results {
		rep.Results[id] = r
		switch {
		case r.Success && r.Cached:
			rep.Cached++
		case r.Success:
			rep.Succeeded++
		default:
			rep.Failed++
		}
	}
	rep.PrimaryFailures = int(atomic.LoadInt32(&s.primaryFailed))
	return rep
}
