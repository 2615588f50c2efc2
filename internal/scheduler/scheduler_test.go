package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/forgebuild/forge/internal/cache"
	"github.com/forgebuild/forge/internal/driver"
	"github.com/forgebuild/forge/internal/executor"
	"github.com/forgebuild/forge/internal/fingerprint"
	"github.com/forgebuild/forge/internal/graph"
	"github.com/forgebuild/forge/internal/resilience"
	"github.com/forgebuild/forge/internal/target"
)

// scriptedDriver builds successfully for every target id except those
// listed in failIDs, letting a single registered driver stand in for
// whichever real per-language toolchain would be invoked.
type scriptedDriver struct {
	mu      sync.Mutex
	failIDs map[target.Id]bool
	calls   map[target.Id]int
}

func newScriptedDriver(fail ...target.Id) *scriptedDriver {
	set := make(map[target.Id]bool, len(fail))
	for _, id := range fail {
		set[id] = true
	}
	return &scriptedDriver{failIDs: set, calls: make(map[target.Id]int)}
}

func (d *scriptedDriver) Build(ctx context.Context, bc *driver.BuildContext) (driver.BuildOutcome, error) {
	d.mu.Lock()
	d.calls[bc.Node.Target.ID]++
	d.mu.Unlock()
	if d.failIDs[bc.Node.Target.ID] {
		return driver.BuildOutcome{}, target.NewError(target.CodeBuildFailure, nil, "scripted failure")
	}
	return driver.BuildOutcome{OutputHash: "hash-" + string(bc.Node.Target.ID)}, nil
}

func (d *scriptedDriver) Analyze(ctx context.Context, path string) ([]driver.Symbol, error) {
	return nil, &driver.ErrAnalyzeUnsupported{}
}

func (d *scriptedDriver) IsAvailable() bool { return true }

func newTestScheduler(t *testing.T, g *graph.Graph, sd *scriptedDriver, workers int) *Scheduler {
	t.Helper()
	store, err := cache.Open(t.TempDir(), cache.DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	registry := driver.NewRegistry()
	registry.Register(target.LangC, sd)

	ex := &executor.Executor{
		Cache:    store,
		Drivers:  registry,
		Hasher:   fingerprint.NewHasher(),
		Retry:    resilience.Policy{MaxAttempts: 1},
		Breakers: resilience.NewRegistry(100, time.Hour),
		BuildHashOf: func(id target.Id) (string, bool) {
			return "", false
		},
	}
	return New(g, ex, workers, t.TempDir(), t.TempDir())
}

func buildDiamondGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New(graph.ModeDeferred)
	for _, id := range []target.Id{"//:app", "//:liba", "//:libb", "//:base"} {
		if err := g.AddTarget(&target.Target{ID: id, Language: target.LangC}); err != nil {
			t.Fatal(err)
		}
	}
	edges := [][2]target.Id{
		{"//:app", "//:liba"},
		{"//:app", "//:libb"},
		{"//:liba", "//:base"},
		{"//:libb", "//:base"},
	}
	for _, e := range edges {
		if err := g.AddEdge(e[0], e[1]); err != nil {
			t.Fatal(err)
		}
	}
	return g
}

func TestSchedulerRunAllSucceed(t *testing.T) {
	g := buildDiamondGraph(t)
	sd := newScriptedDriver()
	s := newTestScheduler(t, g, sd, 2)

	report, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() = %v, want nil", err)
	}
	if report.Failed != 0 {
		t.Errorf("Failed = %d, want 0", report.Failed)
	}
	if report.Succeeded != 4 {
		t.Errorf("Succeeded = %d, want 4", report.Succeeded)
	}
	for _, id := range []target.Id{"//:app", "//:liba", "//:libb", "//:base"} {
		if sd.calls[id] != 1 {
			t.Errorf("driver called %d times for %s, want 1", sd.calls[id], id)
		}
	}
}

func TestSchedulerCascadesFailureToDependents(t *testing.T) {
	g := buildDiamondGraph(t)
	sd := newScriptedDriver("//:base")
	s := newTestScheduler(t, g, sd, 2)

	report, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() = %v, want nil (failures are reported, not returned as err)", err)
	}
	if report.PrimaryFailures != 1 {
		t.Errorf("PrimaryFailures = %d, want 1", report.PrimaryFailures)
	}
	// base, liba, libb, app all end up Failed: the one primary failure plus
	// three cascaded dependents.
	if report.Failed != 4 {
		t.Errorf("Failed = %d, want 4", report.Failed)
	}
	if report.Succeeded != 0 || report.Cached != 0 {
		t.Errorf("Succeeded=%d Cached=%d, want both 0", report.Succeeded, report.Cached)
	}
	// Dependents of the failing node must never have been dispatched to
	// the driver at all.
	if sd.calls["//:app"] != 0 {
		t.Errorf("driver called %d times for //:app after //:base failed, want 0", sd.calls["//:app"])
	}
}

func TestSchedulerMarksPrimaryFailureNodeStatusFailed(t *testing.T) {
	g := buildDiamondGraph(t)
	sd := newScriptedDriver("//:base")
	s := newTestScheduler(t, g, sd, 2)

	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v, want nil", err)
	}

	n, ok := g.Node("//:base")
	if !ok {
		t.Fatal("//:base not found in graph")
	}
	if got := n.Status(); got != target.StatusFailed {
		t.Errorf("//:base Status() = %v, want StatusFailed", got)
	}
}

func TestSchedulerHonorsContextCancellation(t *testing.T) {
	g := buildDiamondGraph(t)
	sd := newScriptedDriver()
	s := newTestScheduler(t, g, sd, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Run(ctx)
	if err == nil {
		t.Fatal("Run() on an already-cancelled context = nil error, want context.Canceled")
	}
}
