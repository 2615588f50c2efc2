package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWriteReadFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.bin")
	entries := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	if err := writeFile(path, entries); err != nil {
		t.Fatal(err)
	}
	got, err := readFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(entries, got); diff != "" {
		t.Errorf("readFile() diff (-want +got):\n%s", diff)
	}
}

func TestReadFileMissingIsNotError(t *testing.T) {
	dir := t.TempDir()
	entries, err := readFile(filepath.Join(dir, "nonexistent.bin"))
	if err != nil {
		t.Fatalf("readFile(missing) = %v, want nil error", err)
	}
	if entries != nil {
		t.Errorf("readFile(missing) = %v, want nil", entries)
	}
}

func TestReadFileBadMagicIsCorruptError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.bin")
	if err := os.WriteFile(path, []byte("XXXXnotacachefile"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := readFile(path)
	if err == nil {
		t.Fatal("readFile(bad magic) = nil, want CorruptError")
	}
	if _, ok := err.(*CorruptError); !ok {
		t.Errorf("readFile(bad magic) error = %T, want *CorruptError", err)
	}
}

func TestReadFileEmptyIsTreatedAsFresh(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.bin")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
	entries, err := readFile(path)
	if err != nil {
		t.Fatalf("readFile(empty) = %v, want nil error", err)
	}
	if entries != nil {
		t.Errorf("readFile(empty) = %v, want nil", entries)
	}
}

func TestWriteFileAtomicReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.bin")
	if err := writeFile(path, [][]byte{[]byte("v1")}); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(path, [][]byte{[]byte("v2-longer-entry")}); err != nil {
		t.Fatal(err)
	}
	got, err := readFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || string(got[0]) != "v2-longer-entry" {
		t.Errorf("readFile() after second write = %v, want [v2-longer-entry]", got)
	}
}
