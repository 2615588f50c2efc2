//go:build linux || darwin

package fingerprint

import (
	"os"
	"syscall"
)

func metadataFromFileInfo(path string, fi os.FileInfo) Metadata {
	m := Metadata{
		Size:    fi.Size(),
		ModNs:   fi.ModTime().UnixNano(),
		Symlink: fi.Mode()&os.ModeSymlink != 0,
		Path:    path,
	}
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		m.Inode = uint64(st.Ino)
		m.Device = uint64(st.Dev)
	}
	return m
}
