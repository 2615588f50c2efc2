package artifact

import (
	"bytes"
	"testing"
)

func TestUploadFetchRoundTripSmallBlob(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	want := []byte("hello, forge")
	id, err := s.Upload(want)
	if err != nil {
		t.Fatal(err)
	}
	if !s.Has(id) {
		t.Error("Has(id) = false after Upload")
	}
	got, err := s.Fetch(id)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Fetch(id) = %q, want %q", got, want)
	}
}

func TestUploadIsIdempotent(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	blob := []byte("repeat me")
	id1, err := s.Upload(blob)
	if err != nil {
		t.Fatal(err)
	}
	id2, err := s.Upload(blob)
	if err != nil {
		t.Fatal(err)
	}
	if id1 != id2 {
		t.Errorf("Upload(blob) twice gave different ids %s != %s", id1, id2)
	}
}

func TestUploadFetchRoundTripChunkedBlob(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	// Bigger than ChunkThreshold so Upload takes the chunked/manifest path.
	want := make([]byte, ChunkThreshold+ChunkSize/2)
	for i := range want {
		want[i] = byte(i % 251)
	}
	id, err := s.Upload(want)
	if err != nil {
		t.Fatal(err)
	}

	manifest, err := s.FetchManifest(id)
	if err != nil {
		t.Fatalf("FetchManifest(id) = %v, want a manifest for a chunked blob", err)
	}
	if manifest.TotalSize != int64(len(want)) {
		t.Errorf("manifest.TotalSize = %d, want %d", manifest.TotalSize, len(want))
	}
	if len(manifest.Chunks) != 2 {
		t.Errorf("len(manifest.Chunks) = %d, want 2", len(manifest.Chunks))
	}

	got, err := s.Fetch(id)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Error("Fetch(id) for a chunked blob did not reassemble the original bytes")
	}
}

func TestFetchChunkReturnsIndividualChunk(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	blob := make([]byte, ChunkThreshold+10)
	id, err := s.Upload(blob)
	if err != nil {
		t.Fatal(err)
	}
	manifest, err := s.FetchManifest(id)
	if err != nil {
		t.Fatal(err)
	}
	chunk, err := s.FetchChunk(manifest.Chunks[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(chunk) != ChunkSize {
		t.Errorf("len(first chunk) = %d, want %d", len(chunk), ChunkSize)
	}
}

func TestFetchManifestOnUnchunkedBlobErrors(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	id, err := s.Upload([]byte("tiny"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.FetchManifest(id); err == nil {
		t.Error("FetchManifest on a non-chunked blob = nil error, want error")
	}
}

func TestHasReturnsFalseForUnknownID(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if s.Has(Id([]byte("never uploaded"))) {
		t.Error("Has(...) = true for a blob never uploaded")
	}
}

func TestIdIsDeterministic(t *testing.T) {
	blob := []byte("deterministic")
	if Id(blob) != Id(blob) {
		t.Error("Id(blob) is not deterministic across calls")
	}
	if Id(blob) == Id([]byte("different")) {
		t.Error("Id(...) collided for different content")
	}
}
