package cache

import (
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/forgebuild/forge/internal/target"
	"github.com/fxamacker/cbor/v2"
	"golang.org/x/xerrors"
)

// Limits configures the hybrid eviction policy of §4.4. Defaults match
// spec: 30 days, 10,000 entries, 1 GiB.
type Limits struct {
	MaxAge      time.Duration
	MaxEntries  int
	MaxSizeByte int64
}

func DefaultLimits() Limits {
	return Limits{
		MaxAge:      30 * 24 * time.Hour,
		MaxEntries:  10000,
		MaxSizeByte: 1 << 30,
	}
}

// Store is the shared target + action cache. All reads and writes pass
// through an RWMutex, matching §5's shared-resource table ("Target cache |
// Cache store | RW lock; writes serialized"). Updates are buffered in
// memory and written to disk by Flush, which Close also calls.
type Store struct {
	dir    string
	limits Limits

	mu      sync.RWMutex
	targets map[target.Id]*Entry
	actions map[ActionID]*ActionEntry
	dirty   bool

	closed uint32
}

// Open loads the target and action cache stores rooted at dir: target
// entries from dir/cache.bin and action entries from dir/actions.bin. All
// action entries share that one file; they are not split by language.
// A missing or corrupt file yields a fresh, empty store -- per
// §7, cache corruption is a silent discard-and-refresh, not a fatal error.
func Open(dir string, limits Limits) (*Store, error) {
	s := &Store{
		dir:     dir,
		limits:  limits,
		targets: make(map[target.Id]*Entry),
		actions: make(map[ActionID]*ActionEntry),
	}

	rawTargets, err := readFile(filepath.Join(dir, "cache.bin"))
	if err != nil {
		if _, ok := err.(*CorruptError); !ok {
			return nil, err
		}
		rawTargets = nil // discard and rebuild
	}
	for _, raw := range rawTargets {
		var e Entry
		if err := cbor.Unmarshal(raw, &e); err != nil {
			continue // one corrupt entry: skip, don't fail the whole store
		}
		s.targets[e.TargetID] = &e
	}

	rawActions, err := readFile(filepath.Join(dir, "actions.bin"))
	if err != nil {
		if _, ok := err.(*CorruptError); !ok {
			return nil, err
		}
		rawActions = nil
	}
	for _, raw := range rawActions {
		var e ActionEntry
		if err := cbor.Unmarshal(raw, &e); err != nil {
			continue
		}
		s.actions[e.ID] = &e
	}

	return s, nil
}

// GetTarget returns a copy of the entry for id, and whether it exists. It
// updates last_access_at for LRU bookkeeping, per §4.4's "on hit, update
// last_access_at".
func (s *Store) GetTarget(id target.Id) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.targets[id]
	if !ok {
		return Entry{}, false
	}
	e.LastAccessAt = time.Now()
	s.dirty = true
	return *e, true
}

// PutTarget inserts or replaces the entry for id. The update is atomic from
// the caller's perspective: either the entry is visible in full, or not at
// all (§5's transaction discipline), because the whole map swap happens
// under the single store mutex.
func (s *Store) PutTarget(e Entry) {
	e.CreatedAt = time.Now()
	e.LastAccessAt = e.CreatedAt
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := e
	s.targets[e.TargetID] = &cp
	s.dirty = true
}

func (s *Store) GetAction(id ActionID) (ActionEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.actions[id]
	if !ok {
		return ActionEntry{}, false
	}
	e.LastAccessAt = time.Now()
	s.dirty = true
	return *e, true
}

func (s *Store) PutAction(e ActionEntry) {
	e.CreatedAt = time.Now()
	e.LastAccessAt = e.CreatedAt
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := e
	s.actions[e.ID] = &cp
	s.dirty = true
}

// evictLocked applies the hybrid policy of §4.4: drop entries older than
// MaxAge, then trim by MaxEntries, then by MaxSizeByte, in that order,
// always dropping least-recently-accessed entries first.
type evictable struct {
	key  interface{}
	last time.Time
	size int64
}

func (s *Store) evictLocked() {
	now := time.Now()

	var targets []evictable
	for k, e := range s.targets {
		if now.Sub(e.CreatedAt) > s.limits.MaxAge {
			delete(s.targets, k)
			continue
		}
		targets = append(targets, evictable{k, e.LastAccessAt, e.EstimatedSize})
	}
	var actions []evictable
	for k, e := range s.actions {
		if now.Sub(e.CreatedAt) > s.limits.MaxAge {
			delete(s.actions, k)
			continue
		}
		actions = append(actions, evictable{k, e.LastAccessAt, e.EstimatedSize})
	}

	evictByCountAndSize(targets, s.limits, func(k interface{}) { delete(s.targets, k.(target.Id)) })
	evictByCountAndSize(actions, s.limits, func(k interface{}) { delete(s.actions, k.(ActionID)) })
}

func evictByCountAndSize(entries []evictable, limits Limits, remove func(interface{})) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].last.Before(entries[j].last) })

	overCount := len(entries) - limits.MaxEntries
	removed := make(map[int]bool)
	idx := 0
	for overCount > 0 && idx < len(entries) {
		remove(entries[idx].key)
		removed[idx] = true
		idx++
		overCount--
	}

	var total int64
	for i, e := range entries {
		if removed[i] {
			continue
		}
		total += e.size
	}
	i := idx
	for total > limits.MaxSizeByte && i < len(entries) {
		if !removed[i] {
			remove(entries[i].key)
			total -= entries[i].size
			removed[i] = true
		}
		i++
	}
}

// Flush applies eviction and writes both stores to disk atomically, once,
// if dirty. This is the single flush-at-build-end described in §4.4.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	s.evictLocked()

	var targetEntries [][]byte
	for _, e := range s.targets {
		raw, err := encMode.Marshal(e)
		if err != nil {
			return xerrors.Errorf("encode target entry %s: %w", e.TargetID, err)
		}
		targetEntries = append(targetEntries, raw)
	}
	if err := writeFile(filepath.Join(s.dir, "cache.bin"), targetEntries); err != nil {
		return err
	}

	var actionEntries [][]byte
	for _, e := range s.actions {
		raw, err := encMode.Marshal(e)
		if err != nil {
			return xerrors.Errorf("encode action entry %v: %w", e.ID, err)
		}
		actionEntries = append(actionEntries, raw)
	}
	if err := writeFile(filepath.Join(s.dir, "actions.bin"), actionEntries); err != nil {
		return err
	}

	s.dirty = false
	return nil
}

// Close forces a flush and is idempotent: calling it twice (e.g. once from
// the executor's explicit shutdown path, once from a best-effort destructor
// fallback) is safe and only flushes once. Per §9's redesign note, the
// "destructor" here is RegisterAtExit-driven, not a Go finalizer, and must
// be checked for idempotency before doing any work that a finalizer
// context would make unsafe.
func (s *Store) Close() error {
	if !atomic.CompareAndSwapUint32(&s.closed, 0, 1) {
		return nil // already closed
	}
	return s.Flush()
}

// CloseBestEffort is the fallback path: it must never panic and must skip
// silently if Close has already run, rather than attempting to flush from
// an unsafe context. It reports errors by discarding them, since there is
// no caller left to observe a return value by the time this runs (e.g. an
// atexit hook after the main command already errored out).
func (s *Store) CloseBestEffort() {
	if atomic.LoadUint32(&s.closed) != 0 {
		return
	}
	_ = s.Close()
}
