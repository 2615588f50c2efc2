package target

import "sync/atomic"

// Status is a BuildNode's position in its state machine:
//
//	Pending → Building → {Success, Cached, Failed}
//
// The terminal states are absorbing.
type Status int32

const (
	StatusPending Status = iota
	StatusBuilding
	StatusSuccess
	StatusCached
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusBuilding:
		return "building"
	case StatusSuccess:
		return "success"
	case StatusCached:
		return "cached"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusCached || s == StatusFailed
}

// Node wraps a Target with the mutable state the scheduler and cache
// maintain while a build is in flight. Nodes live in a Graph's arena and are
// never copied; callers receive pointers.
type Node struct {
	Target *Target

	// DependencyIDs and DependentIDs are forward/back edges. They are
	// populated once at graph-construction close and never mutated
	// concurrently with a build (mutation outside of construction
	// invalidates cachedDepth, see Graph.AddEdge).
	DependencyIDs map[Id]struct{}
	DependentIDs  map[Id]struct{}

	// pendingDeps is the number of not-yet-finished dependencies; atomic
	// because the scheduler decrements it concurrently from multiple
	// worker goroutines as sibling dependencies complete.
	pendingDeps int32

	status     int32 // atomic Status
	retryCount int32 // atomic

	// cachedDepth memoizes Graph.Depth; -1 means uncomputed. Invalidated
	// (reset to -1) by Graph.AddEdge and cascaded to dependents.
	cachedDepth int32

	// Err is the error attached to a Failed node's BuildResult. Only
	// written while Status transitions into Failed, under the scheduler's
	// per-node exclusivity (no concurrent writers), so it is not atomic.
	Err error
}

const depthUncomputed = -1

// NewNode constructs a Node with its dependency/dependent sets and no
// computed depth. pendingDeps is initialized by the scheduler at build
// start, not at construction, per spec (it must equal |DependencyIDs| at
// the start of *a* build, and a node may be reused across builds).
func NewNode(t *Target) *Node {
	return &Node{
		Target:        t,
		DependencyIDs: make(map[Id]struct{}),
		DependentIDs:  make(map[Id]struct{}),
		cachedDepth:   depthUncomputed,
	}
}

func (n *Node) Status() Status {
	return Status(atomic.LoadInt32(&n.status))
}

func (n *Node) SetStatus(s Status) {
	atomic.StoreInt32(&n.status, int32(s))
}

// CompareAndSwapStatus atomically transitions the node from `from` to `to`,
// reporting whether the transition took place. Used to make the
// Building→{Success,Cached,Failed} transition race-free when cascading
// failure and ordinary completion could both target the same node.
func (n *Node) CompareAndSwapStatus(from, to Status) bool {
	return atomic.CompareAndSwapInt32(&n.status, int32(from), int32(to))
}

func (n *Node) RetryCount() int { return int(atomic.LoadInt32(&n.retryCount)) }

func (n *Node) IncrementRetry() int { return int(atomic.AddInt32(&n.retryCount, 1)) }

// InitPendingDeps sets pendingDeps to |DependencyIDs|, as required at the
// start of every build (spec invariant: pending_deps(n) at build start
// equals |dependency_ids(n)|).
func (n *Node) InitPendingDeps() {
	atomic.StoreInt32(&n.pendingDeps, int32(len(n.DependencyIDs)))
}

func (n *Node) PendingDeps() int { return int(atomic.LoadInt32(&n.pendingDeps)) }

// DecrementPendingDeps atomically decrements and returns the new value. The
// caller enqueues the node when this returns 0.
func (n *Node) DecrementPendingDeps() int {
	return int(atomic.AddInt32(&n.pendingDeps, -1))
}

// CachedDepth returns the memoized depth and whether it is currently valid.
func (n *Node) CachedDepth() (int, bool) {
	d := atomic.LoadInt32(&n.cachedDepth)
	if d == depthUncomputed {
		return 0, false
	}
	return int(d), true
}

// SetDepth stores a freshly computed depth.
func (n *Node) SetDepth(d int) {
	atomic.StoreInt32(&n.cachedDepth, int32(d))
}

// InvalidateDepth marks the memoized depth as stale.
func (n *Node) InvalidateDepth() {
	atomic.StoreInt32(&n.cachedDepth, depthUncomputed)
}

// BuildResult is the outcome of executing a single node, as reported by the
// executor up to the scheduler.
type BuildResult struct {
	Target  Id
	Success bool
	Cached  bool
	Err     error

	// Skipped marks a node that was ready to build but never dispatched
	// because fail-fast cancellation triggered first; it carries no
	// success/failure verdict of its own and is excluded from the
	// scheduler's Failed/Succeeded/Cached tallies.
	Skipped bool
}
