package fingerprint

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}
}

func TestHashFileDeterministic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	writeFile(t, path, []byte("hello world"))

	h1, err := HashFile(path)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := HashFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Errorf("HashFile() not deterministic: %s != %s", h1, h2)
	}
	if h1 == "" {
		t.Error("HashFile() returned empty digest")
	}
}

func TestHashFileDiffersOnContentChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	writeFile(t, path, []byte("version one"))
	h1, err := HashFile(path)
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, path, []byte("version two"))
	h2, err := HashFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h2 {
		t.Error("HashFile() unchanged after content edit")
	}
}

func TestStatMetadataEncodeStable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	writeFile(t, path, []byte("payload"))

	m1, err := StatMetadata(path)
	if err != nil {
		t.Fatal(err)
	}
	m2, err := StatMetadata(path)
	if err != nil {
		t.Fatal(err)
	}
	if m1.Encode() != m2.Encode() {
		t.Error("Metadata.Encode() unstable across repeated stats of an untouched file")
	}
}

func TestStatMetadataChangesOnTouch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	writeFile(t, path, []byte("payload"))

	m1, err := StatMetadata(path)
	if err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}
	m2, err := StatMetadata(path)
	if err != nil {
		t.Fatal(err)
	}
	if m1.Encode() == m2.Encode() {
		t.Error("Metadata.Encode() unchanged after mtime bump")
	}
}

func TestTwoTierCheckMetadataHit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	writeFile(t, path, []byte("payload"))

	h := NewHasher()
	meta, err := StatMetadata(path)
	if err != nil {
		t.Fatal(err)
	}
	content, err := h.HashFile(path)
	if err != nil {
		t.Fatal(err)
	}
	prev := Record{Metadata: meta.Encode(), Content: content}

	result, err := Check(h, path, prev)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Unchanged || result.UsedTier != TierMetadata {
		t.Errorf("Check() on untouched file = %+v, want unchanged via TierMetadata", result)
	}
}

func TestTwoTierCheckContentTierOnTouchOnly(t *testing.T) {
	// A touch-only edit (mtime bumped, bytes identical) must fall through
	// to the content tier and still report Unchanged.
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	writeFile(t, path, []byte("payload"))

	h := NewHasher()
	meta, err := StatMetadata(path)
	if err != nil {
		t.Fatal(err)
	}
	content, err := h.HashFile(path)
	if err != nil {
		t.Fatal(err)
	}
	prev := Record{Metadata: meta.Encode(), Content: content}

	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	result, err := Check(h, path, prev)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Unchanged || result.UsedTier != TierContent {
		t.Errorf("Check() on touch-only edit = %+v, want unchanged via TierContent", result)
	}
}

func TestTwoTierCheckDetectsRealEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	writeFile(t, path, []byte("payload one"))

	h := NewHasher()
	meta, err := StatMetadata(path)
	if err != nil {
		t.Fatal(err)
	}
	content, err := h.HashFile(path)
	if err != nil {
		t.Fatal(err)
	}
	prev := Record{Metadata: meta.Encode(), Content: content}

	writeFile(t, path, []byte("payload two, longer"))
	result, err := Check(h, path, prev)
	if err != nil {
		t.Fatal(err)
	}
	if result.Unchanged {
		t.Error("Check() reported unchanged after a real content edit")
	}
}

func TestSampledHasherMatchesFullHashBelowThreshold(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "small.bin")
	writeFile(t, path, make([]byte, 1024))

	full, err := HashFile(path)
	if err != nil {
		t.Fatal(err)
	}
	sampled := NewHasher(WithSampling(1 << 20))
	got, err := sampled.HashFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got != full {
		t.Errorf("sampled HashFile() below threshold = %s, want full hash %s", got, full)
	}
}

func TestSampledHasherCatchesHeaderEdit(t *testing.T) {
	// The sampled hasher always reads the first window, so an edit there
	// is guaranteed to change the digest even above the threshold.
	dir := t.TempDir()
	path := filepath.Join(dir, "big.bin")
	buf := make([]byte, 2*1024*1024)
	writeFile(t, path, buf)

	sampled := NewHasher(WithSampling(1024))
	h1, err := sampled.HashFile(path)
	if err != nil {
		t.Fatal(err)
	}

	buf[0] = 0xff
	writeFile(t, path, buf)
	h2, err := sampled.HashFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h2 {
		t.Error("sampled HashFile() unchanged after editing the header window")
	}
}
