package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/forgebuild/forge/internal/target"
)

// cmdquery implements `forge query <expr>`: SPEC_FULL.md leaves the query
// language unspecified beyond the subcommand name, so this resolves that
// Open Question with the smallest grammar that exercises the graph's
// actual query surface (depth, forward/backward edges) rather than
// inventing a parser: a bare id prints that node, `deps(id)` and
// `rdeps(id)` print its immediate dependency/dependent sets, and
// `depth(id)` prints its memoized depth.
func cmdquery(ctx context.Context, args []string) error {
	fs := newFlagSet("query")
	addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) != 1 {
		return &exitCodeError{code: 2, err: fmt.Errorf("usage: forge query <expr>")}
	}
	expr := rest[0]

	ws, err := loadWorkspace(*workDir, manifestPath())
	if err != nil {
		return &exitCodeError{code: 2, err: err}
	}

	switch {
	case strings.HasPrefix(expr, "deps(") && strings.HasSuffix(expr, ")"):
		return printIDSet(ws, strings.TrimSuffix(strings.TrimPrefix(expr, "deps("), ")"), func(n *target.Node) map[target.Id]struct{} {
			return n.DependencyIDs
		})
	case strings.HasPrefix(expr, "rdeps(") && strings.HasSuffix(expr, ")"):
		return printIDSet(ws, strings.TrimSuffix(strings.TrimPrefix(expr, "rdeps("), ")"), func(n *target.Node) map[target.Id]struct{} {
			return n.DependentIDs
		})
	case strings.HasPrefix(expr, "depth(") && strings.HasSuffix(expr, ")"):
		id := target.Id(strings.TrimSuffix(strings.TrimPrefix(expr, "depth("), ")"))
		d, err := ws.g.Depth(id)
		if err != nil {
			return &exitCodeError{code: 2, err: err}
		}
		fmt.Println(d)
		return nil
	default:
		n, ok := ws.g.Node(target.Id(expr))
		if !ok {
			return &exitCodeError{code: 2, err: fmt.Errorf("unknown target %q", expr)}
		}
		printNode(n)
		return nil
	}
}

func printIDSet(ws *workspace, id string, sel func(*target.Node) map[target.Id]struct{}) error {
	n, ok := ws.g.Node(target.Id(id))
	if !ok {
		return &exitCodeError{code: 2, err: fmt.Errorf("unknown target %q", id)}
	}
	ids := make([]string, 0, len(sel(n)))
	for d := range sel(n) {
		ids = append(ids, string(d))
	}
	sort.Strings(ids)
	for _, d := range ids {
		fmt.Println(d)
	}
	return nil
}

func printNode(n *target.Node) {
	fmt.Printf("%s\n  kind: %s\n  language: %s\n  status: %s\n  sources: %d\n  deps: %d\n  dependents: %d\n",
		n.Target.ID, n.Target.Kind, n.Target.Language, n.Status(),
		len(n.Target.Sources), len(n.DependencyIDs), len(n.DependentIDs))
}
