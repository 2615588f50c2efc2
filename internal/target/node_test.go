package target

import "testing"

func TestStatusTerminal(t *testing.T) {
	terminal := []Status{StatusSuccess, StatusCached, StatusFailed}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", s)
		}
	}
	nonTerminal := []Status{StatusPending, StatusBuilding}
	for _, s := range nonTerminal {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true, want false", s)
		}
	}
}

func TestNodePendingDepsLifecycle(t *testing.T) {
	n := NewNode(&Target{ID: "//:app"})
	n.DependencyIDs["//:a"] = struct{}{}
	n.DependencyIDs["//:b"] = struct{}{}

	n.InitPendingDeps()
	if got := n.PendingDeps(); got != 2 {
		t.Fatalf("PendingDeps() = %d, want 2", got)
	}
	if got := n.DecrementPendingDeps(); got != 1 {
		t.Errorf("DecrementPendingDeps() = %d, want 1", got)
	}
	if got := n.DecrementPendingDeps(); got != 0 {
		t.Errorf("DecrementPendingDeps() = %d, want 0", got)
	}
}

func TestNodeCompareAndSwapStatus(t *testing.T) {
	n := NewNode(&Target{ID: "//:app"})
	n.SetStatus(StatusBuilding)

	if !n.CompareAndSwapStatus(StatusBuilding, StatusSuccess) {
		t.Fatal("CompareAndSwapStatus(Building, Success) = false, want true")
	}
	if n.Status() != StatusSuccess {
		t.Errorf("Status() = %v, want Success", n.Status())
	}
	// A second competing transition must fail: the node is no longer Building.
	if n.CompareAndSwapStatus(StatusBuilding, StatusFailed) {
		t.Error("CompareAndSwapStatus(Building, Failed) = true after already transitioned, want false")
	}
}

func TestNodeDepthMemoization(t *testing.T) {
	n := NewNode(&Target{ID: "//:app"})
	if _, ok := n.CachedDepth(); ok {
		t.Fatal("CachedDepth() valid before any SetDepth call")
	}
	n.SetDepth(3)
	if d, ok := n.CachedDepth(); !ok || d != 3 {
		t.Errorf("CachedDepth() = (%d, %v), want (3, true)", d, ok)
	}
	n.InvalidateDepth()
	if _, ok := n.CachedDepth(); ok {
		t.Error("CachedDepth() valid after InvalidateDepth")
	}
}

func TestNodeRetryCount(t *testing.T) {
	n := NewNode(&Target{ID: "//:app"})
	if got := n.RetryCount(); got != 0 {
		t.Fatalf("RetryCount() = %d, want 0", got)
	}
	if got := n.IncrementRetry(); got != 1 {
		t.Errorf("IncrementRetry() = %d, want 1", got)
	}
	if got := n.RetryCount(); got != 1 {
		t.Errorf("RetryCount() = %d, want 1", got)
	}
}
