package artifact

import (
	"bytes"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/cavaliercoder/go-cpio"
	"golang.org/x/xerrors"
)

// PackCPIO archives every regular file under root into a single cpio
// stream, relative paths preserved, so a build action's output directory
// can move through the blob store as one id instead of one per file.
//
// Grounded on cmd/distri/initrd.go's cpio.Writer usage for bundling a
// tree of files into one image.
func PackCPIO(root string) ([]byte, error) {
	var buf bytes.Buffer
	wr := cpio.NewWriter(&buf)
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		data, err := ioutil.ReadFile(path)
		if err != nil {
			return err
		}
		hdr := &cpio.Header{
			Name: rel,
			Mode: cpio.FileMode(info.Mode().Perm()),
			Size: int64(len(data)),
		}
		if err := wr.WriteHeader(hdr); err != nil {
			return err
		}
		_, err = wr.Write(data)
		return err
	})
	if err != nil {
		return nil, xerrors.Errorf("artifact: pack cpio from %s: %w", root, err)
	}
	if err := wr.Close(); err != nil {
		return nil, xerrors.Errorf("artifact: close cpio writer: %w", err)
	}
	return buf.Bytes(), nil
}

// UnpackCPIO extracts a PackCPIO archive into destRoot, creating parent
// directories as needed.
func UnpackCPIO(data []byte, destRoot string) error {
	rd := cpio.NewReader(bytes.NewReader(data))
	for {
		hdr, err := rd.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return xerrors.Errorf("artifact: unpack cpio into %s: %w", destRoot, err)
		}
		dst := filepath.Join(destRoot, hdr.Name)
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return err
		}
		f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode.Perm()))
		if err != nil {
			return xerrors.Errorf("artifact: unpack cpio entry %s: %w", hdr.Name, err)
		}
		if _, err := io.Copy(f, rd); err != nil {
			f.Close()
			return xerrors.Errorf("artifact: unpack cpio entry %s: %w", hdr.Name, err)
		}
		f.Close()
	}
}
