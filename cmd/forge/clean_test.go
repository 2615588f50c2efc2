package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestCmdcleanRemovesCacheAndOutputDirs(t *testing.T) {
	root := t.TempDir()
	withWorkDir(t, root)
	oldCacheDir := *cacheDirFlag
	*cacheDirFlag = ".forge-cache"
	t.Cleanup(func() { *cacheDirFlag = oldCacheDir })

	cacheDir := joinPath(root, *cacheDirFlag)
	outDir := outputDir()
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cacheDir, "cache.bin"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := cmdclean(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(cacheDir); !os.IsNotExist(err) {
		t.Errorf("cache dir %s still exists after clean", cacheDir)
	}
	if _, err := os.Stat(outDir); !os.IsNotExist(err) {
		t.Errorf("output dir %s still exists after clean", outDir)
	}
}

func TestCmdcleanOnMissingDirsIsNotError(t *testing.T) {
	root := t.TempDir()
	withWorkDir(t, root)
	if err := cmdclean(context.Background(), nil); err != nil {
		t.Fatalf("cmdclean on a workspace with no cache/out dirs = %v, want nil", err)
	}
}
