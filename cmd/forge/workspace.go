package main

import (
	"fmt"
	"sort"

	"github.com/forgebuild/forge/internal/graph"
	"github.com/forgebuild/forge/internal/target"
	"golang.org/x/xerrors"
	"lukechampine.com/blake3"
)

// workspace bundles the dependency graph built from forge.json for one
// invocation; every subcommand that touches the graph (build, query,
// resume, graph) starts from this.
type workspace struct {
	root string
	g    *graph.Graph
}

func loadWorkspace(root, manifestPath string) (*workspace, error) {
	targets, err := loadManifest(root, manifestPath)
	if err != nil {
		return nil, err
	}
	g := graph.New(graph.ModeDeferred)
	for _, t := range targets {
		if err := g.AddTarget(t); err != nil {
			return nil, err
		}
	}
	for _, t := range targets {
		for dep := range t.Deps {
			if err := g.AddEdge(t.ID, dep); err != nil {
				return nil, err
			}
		}
	}
	if _, err := g.TopoSort(); err != nil {
		return nil, xerrors.Errorf("dependency graph: %w", err)
	}
	return &workspace{root: root, g: g}, nil
}

// structuralHash fingerprints the graph's target ids and edges -- order
// independent, so semantically identical manifests hash the same
// regardless of declaration order -- for the checkpoint's staleness check
// (resilience.Open's graphHash parameter).
func (ws *workspace) structuralHash() string {
	nodes := ws.g.All()
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, string(n.Target.ID))
	}
	sort.Strings(ids)

	h := blake3.New(32, nil)
	for _, id := range ids {
		fmt.Fprintf(h, "n:%s\n", id)
		n, _ := ws.g.Node(target.Id(id))
		deps := make([]string, 0, len(n.DependencyIDs))
		for d := range n.DependencyIDs {
			deps = append(deps, string(d))
		}
		sort.Strings(deps)
		for _, d := range deps {
			fmt.Fprintf(h, "e:%s->%s\n", d, id)
		}
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
