package cache

import (
	"github.com/forgebuild/forge/internal/fingerprint"
	"github.com/forgebuild/forge/internal/target"
)

// BuildHashOf resolves a dependency's current build_hash -- the executor
// supplies this from its own in-memory results for the current build,
// since a dependency's entry may not yet be flushed to disk.
type BuildHashOf func(id target.Id) (string, bool)

// IsCached implements §4.4's isCached(target, sources, deps):
//
//  1. An entry exists for the target.
//  2. For every source, the two-tier check matches.
//  3. For every declared dep, the current build_hash equals the entry's
//     recorded dep_build_hashes[dep].
//
// On a hit, the entry's last_access_at is bumped (handled by GetTarget).
func (s *Store) IsCached(h *fingerprint.Hasher, id target.Id, sources []string, deps []target.Id, depHash BuildHashOf) (bool, Entry, error) {
	entry, ok := s.GetTarget(id)
	if !ok {
		return false, Entry{}, nil
	}

	for _, src := range sources {
		prevMeta := entry.SourceMetadataHashes[src]
		prevContent := fingerprint.Content(entry.SourceContentHashes[src])
		res, err := fingerprint.Check(h, src, fingerprint.Record{Metadata: prevMeta, Content: prevContent})
		if err != nil {
			return false, Entry{}, err
		}
		if !res.Unchanged {
			return false, entry, nil
		}
	}

	for _, dep := range deps {
		cur, ok := depHash(dep)
		if !ok {
			return false, entry, nil
		}
		if entry.DepBuildHashes[dep] != cur {
			return false, entry, nil
		}
	}

	return true, entry, nil
}
