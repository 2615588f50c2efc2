package main

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"golang.org/x/xerrors"
)

const exampleManifest = `{
  "targets": [
    {
      "id": "//:hello",
      "kind": "executable",
      "language": "c",
      "sources": ["hello.c"],
      "deps": [],
      "flags": ["-O2", "-o", "hello"]
    }
  ]
}
`

const exampleIgnore = `# forge ignore patterns, one glob per line (gitignore-compatible).
*.o
`

// cmdinit implements `forge init`: scaffold a starter forge.json and
// .builderignore in the workspace root, mirroring distri's own `scaffold`
// verb (generate package build instructions) generalized from one
// language's boilerplate to the manifest format itself.
func cmdinit(ctx context.Context, args []string) error {
	fs := newFlagSet("init")
	addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	mpath := manifestPath()
	if _, err := os.Stat(mpath); err == nil {
		return &exitCodeError{code: 2, err: fmt.Errorf("%s already exists", mpath)}
	}
	if err := ioutil.WriteFile(mpath, []byte(exampleManifest), 0644); err != nil {
		return xerrors.Errorf("init: %w", err)
	}
	ignorePath := filepath.Join(*workDir, ".builderignore")
	if _, err := os.Stat(ignorePath); os.IsNotExist(err) {
		if err := ioutil.WriteFile(ignorePath, []byte(exampleIgnore), 0644); err != nil {
			return xerrors.Errorf("init: %w", err)
		}
	}
	fmt.Printf("wrote %s\n", mpath)
	return nil
}
