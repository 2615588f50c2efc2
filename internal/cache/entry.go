// Package cache implements the two-tier build cache of §4.4: a
// target-level store and a finer-grained action-level store, both
// persisted as a length-prefixed, magic-stamped binary format (§6.3), with
// a hybrid eviction policy and atomic flush-by-rename.
package cache

import (
	"time"

	"github.com/forgebuild/forge/internal/target"
)

// Entry is CacheEntry from spec §3: a target-level cache record.
type Entry struct {
	TargetID             target.Id         `cbor:"1,keyasint"`
	BuildHash            string            `cbor:"2,keyasint"`
	SourceContentHashes  map[string]string `cbor:"3,keyasint"`
	SourceMetadataHashes map[string]string `cbor:"4,keyasint"`
	DepBuildHashes       map[target.Id]string `cbor:"5,keyasint"`
	CreatedAt            time.Time         `cbor:"6,keyasint"`
	LastAccessAt         time.Time         `cbor:"7,keyasint"`
	EstimatedSize        int64             `cbor:"8,keyasint"`
}

// ActionID identifies a single fine-grained action within a target's build,
// per spec §3: (target_id, action_kind, sub_id, input_hash).
type ActionID struct {
	TargetID  target.Id `cbor:"1,keyasint"`
	Kind      string    `cbor:"2,keyasint"`
	SubID     string    `cbor:"3,keyasint"`
	InputHash string    `cbor:"4,keyasint"`
}

// ActionEntry is ActionCacheEntry from spec §3.
type ActionEntry struct {
	ID          ActionID          `cbor:"1,keyasint"`
	InputPaths  []string          `cbor:"2,keyasint"`
	OutputPaths []string          `cbor:"3,keyasint"`
	Metadata    map[string]string `cbor:"4,keyasint"`
	Success     bool              `cbor:"5,keyasint"`

	SourceContentHashes  map[string]string `cbor:"6,keyasint"`
	SourceMetadataHashes map[string]string `cbor:"7,keyasint"`
	CreatedAt            time.Time         `cbor:"8,keyasint"`
	LastAccessAt         time.Time         `cbor:"9,keyasint"`
	EstimatedSize        int64             `cbor:"10,keyasint"`
}
