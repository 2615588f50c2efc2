package cache

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/renameio"
	"golang.org/x/xerrors"
)

// magic and schemaVersion implement §6.3's binary format:
//
//	[magic: 4 bytes][schema_version: 4 bytes][entry_count: varint][entries...]
//
// Each entry is itself length-prefixed and CBOR-encoded so that unknown
// trailing fields are tolerated by newer readers for forward compatibility,
// and a mismatched magic discards the whole file rather than partially
// decoding garbage.
var magic = [4]byte{'F', 'R', 'G', '1'}

const schemaVersion uint32 = 1

var encMode = func() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	m, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return m
}()

// writeFile serializes entries (any CBOR-able slice) atomically to path
// using the §6.3 binary format. Atomicity is via renameio: write to a temp
// file in the same directory, then rename -- the exact mechanism
// github.com/google/renameio exists for.
func writeFile(path string, entries [][]byte) error {
	t, err := renameio.TempFile("", path)
	if err != nil {
		return xerrors.Errorf("cache flush %s: %w", path, err)
	}
	defer t.Cleanup()

	w := bufio.NewWriter(t)
	if _, err := w.Write(magic[:]); err != nil {
		return err
	}
	var verBuf [4]byte
	binary.BigEndian.PutUint32(verBuf[:], schemaVersion)
	if _, err := w.Write(verBuf[:]); err != nil {
		return err
	}
	var countBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(countBuf[:], uint64(len(entries)))
	if _, err := w.Write(countBuf[:n]); err != nil {
		return err
	}
	for _, e := range entries {
		var lenBuf [binary.MaxVarintLen64]byte
		ln := binary.PutUvarint(lenBuf[:], uint64(len(e)))
		if _, err := w.Write(lenBuf[:ln]); err != nil {
			return err
		}
		if _, err := w.Write(e); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return xerrors.Errorf("cache flush %s: %w", path, err)
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return xerrors.Errorf("cache flush %s: %w", path, err)
	}
	return nil
}

// readFile decodes the §6.3 format, returning the raw CBOR payload of each
// entry for the caller to unmarshal into the appropriate type. A missing
// file returns (nil, nil) -- a fresh cache, not an error. A mismatched
// magic is a CacheError: discard and rebuild, per §7's recovery rule for
// corrupted entries.
func readFile(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, xerrors.Errorf("open cache %s: %w", path, err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var gotMagic [4]byte
	if _, err := io.ReadFull(r, gotMagic[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, nil // empty file, treat as fresh
		}
		return nil, xerrors.Errorf("read cache magic %s: %w", path, err)
	}
	if gotMagic != magic {
		return nil, &CorruptError{Path: path, Reason: "magic mismatch"}
	}
	var verBuf [4]byte
	if _, err := io.ReadFull(r, verBuf[:]); err != nil {
		return nil, &CorruptError{Path: path, Reason: "truncated version"}
	}
	// Unknown/newer schema versions are tolerated at the framing level;
	// CBOR's self-describing maps absorb field additions, so only the
	// magic is a hard discard signal.
	count, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, &CorruptError{Path: path, Reason: "truncated entry count"}
	}
	entries := make([][]byte, 0, count)
	for i := uint64(0); i < count; i++ {
		ln, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, &CorruptError{Path: path, Reason: "truncated entry length"}
		}
		buf := make([]byte, ln)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, &CorruptError{Path: path, Reason: "truncated entry body"}
		}
		entries = append(entries, buf)
	}
	return entries, nil
}

// CorruptError is a CacheError: corrupted entry, discard and
// rebuild per §7.
type CorruptError struct {
	Path   string
	Reason string
}

func (e *CorruptError) Error() string {
	return "cache: corrupt file " + e.Path + ": " + e.Reason
}
