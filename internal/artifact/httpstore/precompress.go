package httpstore

import (
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	"github.com/klauspost/pgzip"
	"golang.org/x/xerrors"
)

// Precompress writes a .gz sibling of every regular file under root,
// using pgzip for parallel compression, so the static handler's
// gzipped.FileServer can serve pre-gzipped bytes instead of compressing
// on every request. Grounded on cmd/distri/initrd.go's
// renameio.TempFile + pgzip.NewWriter pattern for atomic output.
func Precompress(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || filepath.Ext(path) == ".gz" {
			return nil
		}
		gzPath := path + ".gz"
		if gzInfo, err := os.Stat(gzPath); err == nil && gzInfo.ModTime().After(info.ModTime()) {
			return nil
		}
		return precompressFile(path, gzPath)
	})
}

func precompressFile(path, gzPath string) error {
	in, err := os.Open(path)
	if err != nil {
		return xerrors.Errorf("httpstore: precompress open %s: %w", path, err)
	}
	defer in.Close()

	out, err := renameio.TempFile("", gzPath)
	if err != nil {
		return xerrors.Errorf("httpstore: precompress tempfile for %s: %w", gzPath, err)
	}
	defer out.Cleanup()

	zw := pgzip.NewWriter(out)
	if _, err := io.Copy(zw, in); err != nil {
		return xerrors.Errorf("httpstore: precompress %s: %w", path, err)
	}
	if err := zw.Close(); err != nil {
		return xerrors.Errorf("httpstore: precompress %s: %w", path, err)
	}
	return out.CloseAtomicallyReplace()
}
