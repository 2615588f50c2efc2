package main

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/xerrors"
)

// cmdclean implements `forge clean`: purge the cache directories.
// Supplemented from distri's CLI surface per SPEC_FULL.md §6.
func cmdclean(ctx context.Context, args []string) error {
	fs := newFlagSet("clean")
	addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cacheDir := joinPath(*workDir, *cacheDirFlag)
	if err := os.RemoveAll(cacheDir); err != nil {
		return xerrors.Errorf("clean: %w", err)
	}
	outDir := outputDir()
	if err := os.RemoveAll(outDir); err != nil {
		return xerrors.Errorf("clean: %w", err)
	}
	fmt.Printf("removed %s and %s\n", cacheDir, outDir)
	return nil
}
