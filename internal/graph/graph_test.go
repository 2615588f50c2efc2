package graph

import (
	"strings"
	"testing"

	"github.com/forgebuild/forge/internal/target"
	"github.com/google/go-cmp/cmp"
)

func addTargets(t *testing.T, g *Graph, ids ...target.Id) {
	t.Helper()
	for _, id := range ids {
		if err := g.AddTarget(&target.Target{ID: id}); err != nil {
			t.Fatalf("AddTarget(%s): %v", id, err)
		}
	}
}

func TestAddTargetDuplicateIsConfigError(t *testing.T) {
	g := New(ModeDeferred)
	addTargets(t, g, "//:a")
	err := g.AddTarget(&target.Target{ID: "//:a"})
	if err == nil {
		t.Fatal("AddTarget(duplicate) = nil, want ConfigError")
	}
	var te *target.Error
	if !asTargetError(err, &te) || te.Code != target.CodeConfig {
		t.Errorf("AddTarget(duplicate) error = %v, want CodeConfig", err)
	}
}

func TestAddEdgeUnknownTargetIsGraphError(t *testing.T) {
	g := New(ModeDeferred)
	addTargets(t, g, "//:a")
	err := g.AddEdge("//:a", "//:missing")
	if err == nil {
		t.Fatal("AddEdge to unknown target = nil, want GraphError")
	}
	var te *target.Error
	if !asTargetError(err, &te) || te.Code != target.CodeGraph {
		t.Errorf("AddEdge error = %v, want CodeGraph", err)
	}
}

func TestAddEdgeDependencyDirection(t *testing.T) {
	// AddEdge(from, to) means "from depends on to": from gains a
	// DependencyID, to gains a DependentID pointing back at from.
	g := New(ModeDeferred)
	addTargets(t, g, "//:app", "//:lib")
	if err := g.AddEdge("//:app", "//:lib"); err != nil {
		t.Fatal(err)
	}
	app, _ := g.Node("//:app")
	lib, _ := g.Node("//:lib")
	if _, ok := app.DependencyIDs["//:lib"]; !ok {
		t.Error("//:app.DependencyIDs missing //:lib")
	}
	if _, ok := lib.DependentIDs["//:app"]; !ok {
		t.Error("//:lib.DependentIDs missing //:app")
	}
	if _, ok := app.DependentIDs["//:lib"]; ok {
		t.Error("//:app.DependentIDs unexpectedly contains //:lib")
	}
}

func TestImmediateModeRefusesCycle(t *testing.T) {
	g := New(ModeImmediate)
	addTargets(t, g, "//:a", "//:b", "//:c")
	if err := g.AddEdge("//:a", "//:b"); err != nil {
		t.Fatal(err)
	}
	if err := g.AddEdge("//:b", "//:c"); err != nil {
		t.Fatal(err)
	}
	err := g.AddEdge("//:c", "//:a")
	if err == nil {
		t.Fatal("AddEdge closing a cycle = nil, want GraphError")
	}
	if !strings.Contains(err.Error(), "cycle") {
		t.Errorf("cycle error = %v, want mention of 'cycle'", err)
	}
}

func TestDeferredModeDetectsCycleAtClose(t *testing.T) {
	g := New(ModeDeferred)
	addTargets(t, g, "//:a", "//:b")
	if err := g.AddEdge("//:a", "//:b"); err != nil {
		t.Fatal(err)
	}
	if err := g.AddEdge("//:b", "//:a"); err != nil {
		t.Fatal(err) // deferred mode accepts unconditionally
	}
	if err := g.Close(); err == nil {
		t.Fatal("Close() on cyclic graph = nil, want GraphError")
	}
}

func TestTopoSortDependencyFirstWithTieBreak(t *testing.T) {
	g := New(ModeDeferred)
	// app depends on both liba and libb; neither depends on the other, so
	// ties break lexicographically.
	addTargets(t, g, "//:app", "//:libb", "//:liba")
	if err := g.AddEdge("//:app", "//:liba"); err != nil {
		t.Fatal(err)
	}
	if err := g.AddEdge("//:app", "//:libb"); err != nil {
		t.Fatal(err)
	}
	order, err := g.TopoSort()
	if err != nil {
		t.Fatal(err)
	}
	want := []target.Id{"//:liba", "//:libb", "//:app"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Errorf("TopoSort() diff (-want +got):\n%s", diff)
	}
}

func TestDepthMemoizationAndInvalidation(t *testing.T) {
	g := New(ModeDeferred)
	addTargets(t, g, "//:a", "//:b", "//:c")
	if err := g.AddEdge("//:b", "//:a"); err != nil {
		t.Fatal(err)
	}
	d, err := g.Depth("//:b")
	if err != nil {
		t.Fatal(err)
	}
	if d != 1 {
		t.Fatalf("Depth(//:b) = %d, want 1", d)
	}
	bNode, _ := g.Node("//:b")
	if cached, ok := bNode.CachedDepth(); !ok || cached != 1 {
		t.Errorf("CachedDepth(//:b) = (%d,%v), want (1,true)", cached, ok)
	}

	// Making //:a depend on //:c (b → a → c) invalidates b's memoized depth.
	if err := g.AddEdge("//:a", "//:c"); err != nil {
		t.Fatal(err)
	}
	if _, ok := bNode.CachedDepth(); ok {
		t.Error("CachedDepth(//:b) still valid after an upstream edge was added")
	}
	d, err = g.Depth("//:b")
	if err != nil {
		t.Fatal(err)
	}
	if d != 2 {
		t.Errorf("Depth(//:b) after edge insertion = %d, want 2", d)
	}
}

func TestAllReturnsEveryNode(t *testing.T) {
	g := New(ModeDeferred)
	addTargets(t, g, "//:a", "//:b", "//:c")
	if got := len(g.All()); got != 3 {
		t.Errorf("len(All()) = %d, want 3", got)
	}
}

func asTargetError(err error, out **target.Error) bool {
	te, ok := err.(*target.Error)
	if ok {
		*out = te
	}
	return ok
}
