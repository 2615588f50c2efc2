// Package artifact implements §4.7's content-addressed blob store: blobs
// keyed by the BLAKE3 fingerprint of their bytes, chunked above ~1MiB with
// a manifest of chunk ids so transfers can resume or run partially.
//
// Grounded on internal/cache/store.go's local blob layout (content-keyed
// directory sharding) and cmd/distri-repobrowser's HTTP fetch surface,
// generalized from whole-package squashfs images to individual blobs.
package artifact

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/orcaman/writerseeker"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
	"lukechampine.com/blake3"

	"github.com/forgebuild/forge/internal/fingerprint"
)

// ChunkThreshold is the size above which a blob is split into chunks, per
// §4.7's "~1 MiB" guidance.
const ChunkThreshold = 1 << 20

// ChunkSize is the fixed size of each chunk within a chunked blob, save for
// the final, possibly-shorter chunk.
const ChunkSize = 1 << 20

// Manifest lists the chunk ids making up a blob larger than ChunkThreshold,
// in order.
type Manifest struct {
	TotalSize int64                `cbor:"1,keyasint"`
	Chunks    []fingerprint.Content `cbor:"2,keyasint"`
}

// Store is a local, filesystem-backed content-addressed blob store.
type Store struct {
	root string
}

func Open(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, xerrors.Errorf("artifact: open store at %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

// Id returns the content-addressed id of blob.
func Id(blob []byte) fingerprint.Content {
	h := blake3.Sum256(blob)
	return fingerprint.Content(fmt.Sprintf("%x", h[:]))
}

func (s *Store) path(id fingerprint.Content) string {
	str := string(id)
	if len(str) < 4 {
		return filepath.Join(s.root, "blobs", str)
	}
	return filepath.Join(s.root, "blobs", str[:2], str[2:4], str)
}

func (s *Store) manifestPath(id fingerprint.Content) string {
	return s.path(id) + ".manifest"
}

// Has reports whether id is already present, without reading its bytes.
func (s *Store) Has(id fingerprint.Content) bool {
	if _, err := os.Stat(s.path(id)); err == nil {
		return true
	}
	_, err := os.Stat(s.manifestPath(id))
	return err == nil
}

// Upload stores blob and returns its content-addressed id. Blobs at or
// below ChunkThreshold are stored as a single compressed file; larger
// blobs are split into ChunkSize chunks, each uploaded under its own id,
// with a Manifest recorded under the whole blob's id.
func (s *Store) Upload(blob []byte) (fingerprint.Content, error) {
	id := Id(blob)
	if s.Has(id) {
		return id, nil
	}
	if int64(len(blob)) <= ChunkThreshold {
		if err := s.putCompressed(s.path(id), blob); err != nil {
			return "", err
		}
		return id, nil
	}

	var manifest Manifest
	manifest.TotalSize = int64(len(blob))
	for off := 0; off < len(blob); off += ChunkSize {
		end := off + ChunkSize
		if end > len(blob) {
			end = len(blob)
		}
		chunk := blob[off:end]
		chunkID := Id(chunk)
		if !s.Has(chunkID) {
			if err := s.putCompressed(s.path(chunkID), chunk); err != nil {
				return "", err
			}
		}
		manifest.Chunks = append(manifest.Chunks, chunkID)
	}
	manifestBytes, err := encMode.Marshal(manifest)
	if err != nil {
		return "", xerrors.Errorf("artifact: marshal manifest for %s: %w", id, err)
	}
	if err := s.putRaw(s.manifestPath(id), manifestBytes); err != nil {
		return "", err
	}
	return id, nil
}

// Fetch returns the full bytes of id, reassembling from its manifest if
// the blob was chunked.
func (s *Store) Fetch(id fingerprint.Content) ([]byte, error) {
	if data, err := s.getCompressed(s.path(id)); err == nil {
		return data, nil
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	manifestBytes, err := ioutil.ReadFile(s.manifestPath(id))
	if err != nil {
		return nil, xerrors.Errorf("artifact: fetch %s: %w", id, err)
	}
	var manifest Manifest
	if err := decMode.Unmarshal(manifestBytes, &manifest); err != nil {
		return nil, xerrors.Errorf("artifact: decode manifest for %s: %w", id, err)
	}
	// Chunks are fetched concurrently; WriterSeeker lets each land at its
	// final offset as soon as it is fetched, independent of completion
	// order. Any chunk error fails the whole Fetch; nothing is retried.
	var ws writerseeker.WriterSeeker
	var wsMu sync.Mutex
	var eg errgroup.Group
	for i, chunkID := range manifest.Chunks {
		i, chunkID := i, chunkID
		eg.Go(func() error {
			chunk, err := s.getCompressed(s.path(chunkID))
			if err != nil {
				return xerrors.Errorf("artifact: fetch chunk %s of %s: %w", chunkID, id, err)
			}
			wsMu.Lock()
			defer wsMu.Unlock()
			if _, err := ws.Seek(int64(i)*ChunkSize, io.SeekStart); err != nil {
				return xerrors.Errorf("artifact: assemble chunk %d of %s: %w", i, id, err)
			}
			if _, err := ws.Write(chunk); err != nil {
				return xerrors.Errorf("artifact: assemble chunk %d of %s: %w", i, id, err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	data := make([]byte, manifest.TotalSize)
	if _, err := io.ReadFull(ws.Reader(), data); err != nil {
		return nil, xerrors.Errorf("artifact: read assembled %s: %w", id, err)
	}
	return data, nil
}

// FetchManifest returns the chunk manifest for a chunked blob, or
// os.ErrNotExist if id was not stored chunked (the caller should Fetch it
// directly in that case), enabling partial/resumable transfers per §4.7.
func (s *Store) FetchManifest(id fingerprint.Content) (Manifest, error) {
	manifestBytes, err := ioutil.ReadFile(s.manifestPath(id))
	if err != nil {
		return Manifest{}, err
	}
	var manifest Manifest
	if err := decMode.Unmarshal(manifestBytes, &manifest); err != nil {
		return Manifest{}, xerrors.Errorf("artifact: decode manifest for %s: %w", id, err)
	}
	return manifest, nil
}

// FetchChunk returns a single chunk's bytes, for resumable transfer of a
// chunked blob without refetching chunks already held by the caller.
func (s *Store) FetchChunk(chunkID fingerprint.Content) ([]byte, error) {
	return s.getCompressed(s.path(chunkID))
}

func (s *Store) putCompressed(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return xerrors.Errorf("artifact: mkdir %s: %w", filepath.Dir(path), err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return xerrors.Errorf("artifact: new zstd writer: %w", err)
	}
	defer enc.Close()
	compressed := enc.EncodeAll(data, nil)
	return s.putRaw(path, compressed)
}

func (s *Store) putRaw(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := ioutil.WriteFile(tmp, data, 0644); err != nil {
		return xerrors.Errorf("artifact: write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return xerrors.Errorf("artifact: rename %s: %w", path, err)
	}
	return nil
}

func (s *Store) getCompressed(path string) ([]byte, error) {
	compressed, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, xerrors.Errorf("artifact: new zstd reader: %w", err)
	}
	defer dec.Close()
	data, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, xerrors.Errorf("artifact: decompress %s: %w", path, err)
	}
	return data, nil
}
