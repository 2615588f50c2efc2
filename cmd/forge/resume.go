package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/forgebuild/forge/internal/resilience"
	"golang.org/x/xerrors"
)

// cmdresume implements `forge resume`: report, without building anything,
// which targets a subsequent `forge build` would skip versus rebuild
// according to the on-disk checkpoint. `forge build` only appends to the
// checkpoint (the executor calls Append after each successful node); no
// build step reads it back to skip targets, so skipping on a repeated
// build comes from the cache, not from the checkpoint.
func cmdresume(ctx context.Context, args []string) error {
	fs := newFlagSet("resume")
	addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ws, err := loadWorkspace(*workDir, manifestPath())
	if err != nil {
		return &exitCodeError{code: 2, err: err}
	}

	cacheDir := joinPath(*workDir, *cacheDirFlag)
	ckpt, err := resilience.Open(filepath.Join(cacheDir, "checkpoint.bin"), ws.structuralHash(), toolVersion)
	if err != nil {
		return xerrors.Errorf("resume: %w", err)
	}
	defer ckpt.Close()

	var done, pending int
	for _, n := range ws.g.All() {
		if hash, ok := ckpt.Completed(n.Target.ID); ok {
			done++
			fmt.Printf("done    %s (build_hash %s)\n", n.Target.ID, hash)
		} else {
			pending++
			fmt.Printf("pending %s\n", n.Target.ID)
		}
	}
	fmt.Printf("%d done, %d pending\n", done, pending)
	return nil
}
