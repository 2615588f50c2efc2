package resilience

import (
	"bufio"
	"os"
	"sync"
	"time"

	"github.com/forgebuild/forge/internal/target"
	"github.com/fxamacker/cbor/v2"
)

// CheckpointTTL is the default staleness window (spec's Open Question,
// resolved in SPEC_FULL.md §9: "24 hours").
const CheckpointTTL = 24 * time.Hour

// Record is one append-only checkpoint entry: {target_id, build_hash,
// timestamp}, per spec §3/§4.5.
type Record struct {
	TargetID  target.Id `cbor:"1,keyasint"`
	BuildHash string    `cbor:"2,keyasint"`
	Timestamp time.Time `cbor:"3,keyasint"`
}

// Checkpoint is a durable, append-only log of completed nodes for one
// build run, plus the graph's structural fingerprint and the build tool's
// own version, used to decide staleness on resume.
type Checkpoint struct {
	path        string
	graphHash   string
	toolVersion string
	ttl         time.Duration

	mu      sync.Mutex
	f       *os.File
	w       *bufio.Writer
	records map[target.Id]Record
}

// Open creates or appends to the checkpoint file at path for a build whose
// dependency graph has structural fingerprint graphHash, built by
// toolVersion (e.g. the version.go-style build identifier).
func Open(path, graphHash, toolVersion string) (*Checkpoint, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	c := &Checkpoint{
		path:        path,
		graphHash:   graphHash,
		toolVersion: toolVersion,
		ttl:         CheckpointTTL,
		f:           f,
		w:           bufio.NewWriter(f),
		records:     make(map[target.Id]Record),
	}
	if err := c.load(); err != nil {
		f.Close()
		return nil, err
	}
	return c, nil
}

type checkpointHeader struct {
	GraphHash   string    `cbor:"1,keyasint"`
	ToolVersion string    `cbor:"2,keyasint"`
	WrittenAt   time.Time `cbor:"3,keyasint"`
}

func (c *Checkpoint) load() error {
	if _, err := c.f.Seek(0, 0); err != nil {
		return err
	}
	dec := cbor.NewDecoder(bufio.NewReader(c.f))

	var header checkpointHeader
	if err := dec.Decode(&header); err != nil {
		// empty file: no header written yet.
		return nil
	}
	stale := header.GraphHash != c.graphHash ||
		header.ToolVersion != c.toolVersion ||
		time.Since(header.WrittenAt) > c.ttl
	if stale {
		// Stale per §4.5's staleness rule: structural hash changed, tool
		// version differs, or TTL exceeded. Start fresh rather than
		// trusting records built under different assumptions.
		return c.f.Truncate(0)
	}
	for {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			break // EOF or trailing partial record from a crash mid-append
		}
		c.records[rec.TargetID] = rec
	}
	if _, err := c.f.Seek(0, 2); err != nil {
		return err
	}
	return nil
}

// Append records a successfully completed node. Callers invoke this after
// every successful node, per §4.5.
func (c *Checkpoint) Append(id target.Id, buildHash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := Record{TargetID: id, BuildHash: buildHash, Timestamp: time.Now()}

	if len(c.records) == 0 {
		header := checkpointHeader{GraphHash: c.graphHash, ToolVersion: c.toolVersion, WrittenAt: time.Now()}
		enc := cbor.NewEncoder(c.w)
		if err := enc.Encode(header); err != nil {
			return err
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
	} else {
		enc := cbor.NewEncoder(c.w)
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	if err := c.w.Flush(); err != nil {
		return err
	}
	c.records[id] = rec
	return nil
}

// Completed reports whether id was already completed in a checkpoint that
// is still valid (i.e. was not discarded as stale by load), and its
// recorded build hash.
func (c *Checkpoint) Completed(id target.Id) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[id]
	return rec.BuildHash, ok
}

func (c *Checkpoint) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.w.Flush(); err != nil {
		c.f.Close()
		return err
	}
	return c.f.Close()
}
