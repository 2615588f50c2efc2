// Package mount stages an action's declared input artifacts read-only
// inside a sandbox via FUSE, instead of the bind-mount path LinuxBackend
// uses when real mount namespaces are available (e.g. inside an
// already-sandboxed worker that cannot call mount(2) itself).
//
// Adapted from internal/fuse/fuse.go's jacobsa/fuse filesystem, narrowed
// from a whole-repo union filesystem down to a flat read-only passthrough
// over a fixed set of host paths.
package mount

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"golang.org/x/xerrors"
)

// Entry maps a name visible inside the mount to a real file on the host.
type Entry struct {
	Name string
	Path string
}

// Mount exposes entries read-only at mountpoint until the returned join
// function is called; cancelling ctx does not unmount.
func Mount(ctx context.Context, mountpoint string, entries []Entry) (join func(context.Context) error, err error) {
	fs := newInputFS(entries)
	server := fuseutil.NewFileSystemServer(fs)

	mfs, err := fuse.Mount(mountpoint, server, &fuse.MountConfig{
		FSName:   "forge-sandbox-inputs",
		ReadOnly: true,
	})
	if err != nil {
		return nil, xerrors.Errorf("mount: fuse.Mount: %w", err)
	}

	join = func(ctx context.Context) error {
		if err := fuse.Unmount(mountpoint); err != nil {
			return xerrors.Errorf("mount: unmount: %w", err)
		}
		return mfs.Join(ctx)
	}
	return join, nil
}

const rootInode = fuseops.RootInodeID

type inputFS struct {
	fuseutil.NotImplementedFileSystem

	mu      sync.Mutex
	entries []Entry
	readers map[fuseops.InodeID]*os.File
}

func newInputFS(entries []Entry) *inputFS {
	return &inputFS{
		entries: entries,
		readers: make(map[fuseops.InodeID]*os.File),
	}
}

// inode 1 is the root directory; inode N (N>1) is entries[N-2].
func (fs *inputFS) inodeForIndex(i int) fuseops.InodeID {
	return fuseops.InodeID(i + 2)
}

func (fs *inputFS) indexForInode(inode fuseops.InodeID) (int, bool) {
	if inode < 2 {
		return 0, false
	}
	i := int(inode) - 2
	if i < 0 || i >= len(fs.entries) {
		return 0, false
	}
	return i, true
}

func (fs *inputFS) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	return nil
}

func (fs *inputFS) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	if op.Parent != rootInode {
		return fuse.ENOENT
	}
	for i, e := range fs.entries {
		if e.Name != op.Name {
			continue
		}
		attrs, err := fs.attributesFor(e.Path)
		if err != nil {
			return fuse.ENOENT
		}
		op.Entry.Child = fs.inodeForIndex(i)
		op.Entry.Attributes = attrs
		return nil
	}
	return fuse.ENOENT
}

func (fs *inputFS) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	if op.Inode == rootInode {
		op.Attributes = fuseops.InodeAttributes{
			Nlink: 1,
			Mode:  os.ModeDir | 0555,
		}
		return nil
	}
	i, ok := fs.indexForInode(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	attrs, err := fs.attributesFor(fs.entries[i].Path)
	if err != nil {
		return fuse.ENOENT
	}
	op.Attributes = attrs
	return nil
}

func (fs *inputFS) attributesFor(path string) (fuseops.InodeAttributes, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return fuseops.InodeAttributes{}, err
	}
	mode := fi.Mode() &^ 0222 // read-only regardless of host permissions
	return fuseops.InodeAttributes{
		Size:  uint64(fi.Size()),
		Nlink: 1,
		Mode:  mode,
	}, nil
}

func (fs *inputFS) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	if op.Inode != rootInode {
		return fuse.ENOENT
	}
	return nil
}

func (fs *inputFS) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	if op.Inode != rootInode {
		return fuse.ENOENT
	}
	var dirents []fuseutil.Dirent
	for i, e := range fs.entries {
		typ := fuseutil.DT_File
		if fi, err := os.Stat(e.Path); err == nil && fi.IsDir() {
			typ = fuseutil.DT_Directory
		}
		dirents = append(dirents, fuseutil.Dirent{
			Offset: fuseops.DirOffset(len(dirents) + 1),
			Inode:  fs.inodeForIndex(i),
			Name:   e.Name,
			Type:   typ,
		})
	}
	if op.Offset > fuseops.DirOffset(len(dirents)) {
		return fuse.EIO
	}
	for _, d := range dirents[op.Offset:] {
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], d)
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
	return nil
}

func (fs *inputFS) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	i, ok := fs.indexForInode(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	f, err := os.Open(fs.entries[i].Path)
	if err != nil {
		return xerrors.Errorf("mount: open %s: %w", fs.entries[i].Path, err)
	}
	fs.mu.Lock()
	fs.readers[op.Inode] = f
	fs.mu.Unlock()
	return nil
}

func (fs *inputFS) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	fs.mu.Lock()
	f, ok := fs.readers[op.Inode]
	fs.mu.Unlock()
	if !ok {
		return fuse.EIO
	}
	n, err := f.ReadAt(op.Dst, op.Offset)
	op.BytesRead = n
	if err == io.EOF {
		err = nil
	}
	return err
}

func (fs *inputFS) ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) error {
	return nil
}
