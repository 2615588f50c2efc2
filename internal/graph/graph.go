// Package graph implements the dependency graph and topological scheduler
// primitives of §4.1: immediate and deferred edge validation, cycle
// detection with a human-readable trace, Kahn/DFS topological sort with
// deterministic tie-breaking, and memoized depth queries.
//
// The node arena and edge storage follow internal/batch/batch.go's own use
// of gonum's simple.DirectedGraph + topo.Sort/topo.Unorderable, generalized
// from "one node per distri package" to "one node per target.Node".
package graph

import (
	"sort"
	"sync"

	"github.com/forgebuild/forge/internal/target"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// gnode adapts a target.Id to gonum's graph.Node interface. The gonum graph
// only ever sees int64 handles; Graph keeps the TargetId<->handle mapping,
// exactly mirroring batch.go's byFullname/byPkg maps next to a
// simple.DirectedGraph.
type gnode struct {
	id  int64
	tid target.Id
}

func (n gnode) ID() int64 { return n.id }

// Mode selects how edge insertion validates acyclicity.
type Mode int

const (
	// ModeDeferred adds edges unchecked; a single topological sort at
	// Close() is the cycle check. O(V+E) overall, the default for batch
	// loading a whole workspace.
	ModeDeferred Mode = iota
	// ModeImmediate re-runs reachability on every AddEdge call and refuses
	// edges that would create a cycle, at O(V+E) per edge.
	ModeImmediate
)

// Graph is a TargetId -> *target.Node mapping with lazily enforced
// acyclicity. Nodes are owned by the graph; callers receive borrowed
// pointers that remain valid for the graph's lifetime.
type Graph struct {
	mode Mode

	mu       sync.RWMutex
	nodes    map[target.Id]*target.Node
	handles  map[target.Id]int64
	byHandle map[int64]target.Id
	next     int64
	g        *simple.DirectedGraph
	closed   bool
}

func New(mode Mode) *Graph {
	return &Graph{
		mode:     mode,
		nodes:    make(map[target.Id]*target.Node),
		handles:  make(map[target.Id]int64),
		byHandle: make(map[int64]target.Id),
		g:        simple.NewDirectedGraph(),
	}
}

// AddTarget inserts a new node for t. Inserting a duplicate target id is a
// fatal ConfigError (spec invariant 6).
func (g *Graph) AddTarget(t *target.Target) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[t.ID]; ok {
		return target.ConfigErrorf("duplicate target id %q", t.ID)
	}
	n := target.NewNode(t)
	g.nodes[t.ID] = n
	h := g.next
	g.next++
	g.handles[t.ID] = h
	g.byHandle[h] = t.ID
	g.g.AddNode(gnode{id: h, tid: t.ID})
	return nil
}

func (g *Graph) Node(id target.Id) (*target.Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// AddEdge records that `from` depends on `to` (from -> to). In ModeImmediate
// it is refused, with a GraphError carrying the cycle trace, if it would
// create a cycle. In ModeDeferred it is always accepted; Close() performs
// the one cycle check for the whole graph.
func (g *Graph) AddEdge(from, to target.Id) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn, ok := g.nodes[from]
	if !ok {
		return target.GraphErrorf("edge from unknown target %q", from)
	}
	tn, ok := g.nodes[to]
	if !ok {
		return target.GraphErrorf("%q depends on unknown target %q", from, to)
	}

	if g.mode == ModeImmediate {
		if path, ok := g.reachableLocked(to, from); ok {
			return target.GraphErrorf("cycle: %s", formatCycle(append([]target.Id{from}, path...)))
		}
	}

	fh, th := g.handles[from], g.handles[to]
	g.g.SetEdge(g.g.NewEdge(gnode{id: fh, tid: from}, gnode{id: th, tid: to}))

	fn.DependencyIDs[to] = struct{}{}
	tn.DependentIDs[from] = struct{}{}

	g.invalidateDepthLocked(from)
	return nil
}

// reachableLocked reports whether `from` can reach `to` via forward edges,
// returning the path (as Ids, from->...->to) if so. Used by immediate
// mode to detect the cycle AddEdge(from,to) would create: that happens iff
// `to` can already reach `from`.
func (g *Graph) reachableLocked(from, to target.Id) ([]target.Id, bool) {
	visited := make(map[target.Id]bool)
	var path []target.Id
	var dfs func(cur target.Id) bool
	dfs = func(cur target.Id) bool {
		if cur == to {
			path = append(path, cur)
			return true
		}
		if visited[cur] {
			return false
		}
		visited[cur] = true
		n := g.nodes[cur]
		// deterministic order for reproducible cycle traces
		deps := make([]target.Id, 0, len(n.DependencyIDs))
		for d := range n.DependencyIDs {
			deps = append(deps, d)
		}
		sort.Slice(deps, func(i, j int) bool { return deps[i] < deps[j] })
		for _, d := range deps {
			if dfs(d) {
				path = append(path, cur)
				return true
			}
		}
		return false
	}
	if dfs(from) {
		// path was built innermost-first; reverse to read from->...->to
		for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
			path[i], path[j] = path[j], path[i]
		}
		return path, true
	}
	return nil, false
}

func formatCycle(ids []target.Id) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	s := ""
	for i, p := range parts {
		if i > 0 {
			s += " → "
		}
		s += p
	}
	return s
}

// Close runs the one-time cycle check required by ModeDeferred (also safe
// to call, as a no-op re-validation, under ModeImmediate). It also computes
// DependentIDs consistency -- by construction DependentIDs are maintained
// incrementally by AddEdge, so Close only needs to sort the graph.
func (g *Graph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	if _, err := g.topoSortLocked(); err != nil {
		return err
	}
	g.closed = true
	return nil
}

// TopoSort returns target ids in an order such that every dependency
// precedes its dependents, ties broken by lexicographic TargetId order for
// reproducibility. Returns a GraphError naming the cycle if the graph is
// not acyclic.
func (g *Graph) TopoSort() ([]target.Id, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.topoSortLocked()
}

func (g *Graph) topoSortLocked() ([]target.Id, error) {
	// Descending here because the output is reversed below, which turns
	// ties into ascending TargetId order.
	sorted, err := topo.SortStabilized(g.g, func(nodes []graph.Node) {
		sort.Slice(nodes, func(i, j int) bool {
			return g.byHandle[nodes[i].ID()] > g.byHandle[nodes[j].ID()]
		})
	})
	if err != nil {
		uo, ok := err.(topo.Unorderable)
		if !ok {
			return nil, target.GraphErrorf("topological sort: %v", err)
		}
		return nil, target.GraphErrorf("cycle detected: %s", g.describeUnorderable(uo))
	}
	// topo.Sort on a dependent->dependency graph (our edges point from a
	// node to what it depends on) yields dependents before dependencies;
	// reverse to get dependency-first order.
	out := make([]target.Id, len(sorted))
	for i, n := range sorted {
		out[len(sorted)-1-i] = g.byHandle[n.ID()]
	}
	return out, nil
}

func (g *Graph) describeUnorderable(uo topo.Unorderable) string {
	if len(uo) == 0 {
		return "(unknown cycle)"
	}
	comp := uo[0]
	ids := make([]target.Id, len(comp))
	for i, n := range comp {
		ids[i] = g.byHandle[n.ID()]
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	trace := append(append([]target.Id{}, ids...), ids[0])
	return formatCycle(trace)
}

// Depth returns 0 if the node has no dependencies, else
// 1+max(Depth(d) for d in dependencies). The result is memoized on the
// node and invalidated (cascading to dependents) by AddEdge.
func (g *Graph) Depth(id target.Id) (int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.depthLocked(id, make(map[target.Id]bool))
}

func (g *Graph) depthLocked(id target.Id, visiting map[target.Id]bool) (int, error) {
	n, ok := g.nodes[id]
	if !ok {
		return 0, target.GraphErrorf("unknown target %q", id)
	}
	if d, ok := n.CachedDepth(); ok {
		return d, nil
	}
	if visiting[id] {
		return 0, target.GraphErrorf("cycle detected while computing depth at %q", id)
	}
	visiting[id] = true
	max := -1
	for d := range n.DependencyIDs {
		dd, err := g.depthLocked(d, visiting)
		if err != nil {
			return 0, err
		}
		if dd > max {
			max = dd
		}
	}
	depth := max + 1
	n.SetDepth(depth)
	return depth, nil
}

func (g *Graph) invalidateDepthLocked(id target.Id) {
	n, ok := g.nodes[id]
	if !ok {
		return
	}
	n.InvalidateDepth()
	for dependent := range n.DependentIDs {
		g.invalidateDepthLocked(dependent)
	}
}

// All returns every node in the graph, unordered.
func (g *Graph) All() []*target.Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*target.Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	return out
}
