package main

import (
	"context"
	"fmt"

	"golang.org/x/xerrors"
)

// cmdgraph implements `forge graph`: render the dependency graph as a
// topologically sorted list, one target per line. Supplemented from
// distri's own CLI surface (SPEC_FULL.md §6): mirrors
// internal/batch.Ctx.Build's dry-run branch, which prints "build %d pkg"
// for each package about to be built in dependency order, generalized
// from a fixed count label to the target id itself.
func cmdgraph(ctx context.Context, args []string) error {
	fs := newFlagSet("graph")
	addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ws, err := loadWorkspace(*workDir, manifestPath())
	if err != nil {
		return &exitCodeError{code: 2, err: err}
	}
	order, err := ws.g.TopoSort()
	if err != nil {
		return xerrors.Errorf("graph: %w", err)
	}
	for i, id := range order {
		fmt.Printf("%d\t%s\n", i+1, id)
	}
	return nil
}
