package trace

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSinkWritesOpeningBracket(t *testing.T) {
	var buf bytes.Buffer
	Sink(&buf)
	if buf.String() != "[" {
		t.Errorf("Sink(w) wrote %q, want %q", buf.String(), "[")
	}
}

func TestEventDoneWritesJSONEvent(t *testing.T) {
	var buf bytes.Buffer
	Sink(&buf)

	ev := Event("compile", 3)
	time.Sleep(time.Millisecond)
	ev.Done()

	written := strings.TrimSuffix(strings.TrimPrefix(buf.String(), "["), ",")
	var got PendingEvent
	if err := json.Unmarshal([]byte(written), &got); err != nil {
		t.Fatalf("could not decode emitted event %q: %v", written, err)
	}
	if got.Name != "compile" {
		t.Errorf("Name = %q, want compile", got.Name)
	}
	if got.Tid != 3 {
		t.Errorf("Tid = %d, want 3", got.Tid)
	}
	if got.Type != "X" {
		t.Errorf("Type = %q, want X", got.Type)
	}
}

func TestEnableCreatesTraceFile(t *testing.T) {
	tmp := t.TempDir()
	old := os.Getenv("TMPDIR")
	os.Setenv("TMPDIR", tmp)
	defer os.Setenv("TMPDIR", old)

	if err := Enable("testprefix"); err != nil {
		t.Fatal(err)
	}
	matches, err := filepath.Glob(filepath.Join(tmp, "forge.traces", "testprefix.*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Errorf("Enable created %d files matching testprefix.*, want 1", len(matches))
	}
}
