// Package coordinator implements §4.6's distributed coordinator: accepts
// worker registrations, maintains the ready-action priority queue, and
// assigns actions to workers by capability match, lowest load factor and
// oldest last-assigned time.
//
// Grounded on internal/batch/batch.go's in-memory scheduler bookkeeping
// (byFullname/built maps protected by nothing more than single-goroutine
// ownership) generalized to a concurrent, network-facing coordinator, and
// on the priority-queue idiom from the pack's dag-executor (container/heap
// min-heap over pending work) for the ready_queue.
package coordinator

import (
	"container/heap"
	"strconv"
	"sync"
	"time"

	"github.com/forgebuild/forge/internal/wire"
)

// WorkerState is the coordinator's view of one connected worker, per §3
// "WorkerState / PeerRegistry".
type WorkerState struct {
	ID              string
	Address         string
	LastHeartbeat   time.Time
	QueueDepth      int
	LoadFactor      float64
	Capabilities    []string
	Liveness        wire.Liveness
	LastAssignedAt  time.Time
}

func (w *WorkerState) hasCapabilities(required []string) bool {
	have := make(map[string]bool, len(w.Capabilities))
	for _, c := range w.Capabilities {
		have[c] = true
	}
	for _, r := range required {
		if !have[r] {
			return false
		}
	}
	return true
}

// pendingItem is one entry in the ready-action min-heap, ordered by
// priority (higher priority first, per spec's "priority" field on
// ActionRequest), ties broken by insertion order for fairness.
type pendingItem struct {
	action   wire.ActionRequest
	seq      int64
}

type priorityQueue []*pendingItem

func (pq priorityQueue) Len() int { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].action.Priority != pq[j].action.Priority {
		return pq[i].action.Priority > pq[j].action.Priority // higher priority first
	}
	return pq[i].seq < pq[j].seq
}
func (pq priorityQueue) Swap(i, j int) { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x interface{}) { *pq = append(*pq, x.(*pendingItem)) }
func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return item
}

// HeartbeatGrace is how long a worker may go without a heartbeat before
// being marked Dead, per §4.6.
const HeartbeatGrace = 15 * time.Second

// Coordinator owns the pending-action queue and the worker registry. It
// persists no state beyond this in-memory view: a crash loses in-flight
// work, per spec, and callers must re-dispatch from the scheduler's own
// record of what completed.
type Coordinator struct {
	mu      sync.Mutex
	workers map[string]*WorkerState
	queue   priorityQueue
	seq     int64

	// inFlight maps an action id to the worker it was dispatched to, so a
	// dead worker's actions can be identified for re-dispatch.
	inFlight map[string]string

	nextWorkerID int64
}

func New() *Coordinator {
	return &Coordinator{
		workers:  make(map[string]*WorkerState),
		inFlight: make(map[string]string),
	}
}

// Register admits a new worker and returns its durable id. Per SPEC_FULL.md's
// resolution of the distributed-worker-id open question, the worker starts
// with a self-assigned placeholder and overwrites it with this id on ack.
func (c *Coordinator) Register(reg wire.Registration) wire.RegistrationAck {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextWorkerID++
	id := formatWorkerID(c.nextWorkerID)
	c.workers[id] = &WorkerState{
		ID:            id,
		Address:       reg.Address,
		Capabilities:  reg.Capabilities,
		Liveness:      wire.LivenessAlive,
		LastHeartbeat: time.Now(),
	}
	return wire.RegistrationAck{WorkerID: id}
}

func formatWorkerID(n int64) string {
	return "worker-" + strconv.FormatInt(n, 10)
}

// Heartbeat updates a worker's liveness and load metrics.
func (c *Coordinator) Heartbeat(hb wire.HeartBeat) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.workers[hb.WorkerID]
	if !ok {
		return
	}
	w.LastHeartbeat = time.Now()
	w.QueueDepth = hb.QueueDepth
	w.LoadFactor = hb.LoadFactor
	w.Liveness = wire.LivenessAlive
}

// Submit enqueues an action for dispatch.
func (c *Coordinator) Submit(a wire.ActionRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	heap.Push(&c.queue, &pendingItem{action: a, seq: c.seq})
}

// Assign selects the best-matching live worker for the action at the head
// of the queue (skipping ahead until one fits), per §4.6's assignment
// policy: capability match first, then lowest load_factor, then oldest
// last_assigned_at. Returns false if no worker currently qualifies for any
// pending action.
func (c *Coordinator) Assign() (wire.ActionRequest, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reapDeadLocked()

	var skipped []*pendingItem
	defer func() {
		for _, item := range skipped {
			heap.Push(&c.queue, item)
		}
	}()

	for c.queue.Len() > 0 {
		item := heap.Pop(&c.queue).(*pendingItem)
		workerID, ok := c.bestWorkerLocked(item.action.CapabilitiesRequired)
		if !ok {
			skipped = append(skipped, item)
			continue
		}
		c.workers[workerID].LastAssignedAt = time.Now()
		c.inFlight[item.action.ID] = workerID
		return item.action, workerID, true
	}
	return wire.ActionRequest{}, "", false
}

func (c *Coordinator) bestWorkerLocked(required []string) (string, bool) {
	var best *WorkerState
	for _, w := range c.workers {
		if w.Liveness != wire.LivenessAlive {
			continue
		}
		if !w.hasCapabilities(required) {
			continue
		}
		if best == nil ||
			w.LoadFactor < best.LoadFactor ||
			(w.LoadFactor == best.LoadFactor && w.LastAssignedAt.Before(best.LastAssignedAt)) {
			best = w
		}
	}
	if best == nil {
		return "", false
	}
	return best.ID, true
}

// reapDeadLocked marks workers whose heartbeat has lapsed as Dead and
// returns their in-flight action ids for re-dispatch by the caller (the
// scheduler layer re-submits via Submit).
func (c *Coordinator) reapDeadLocked() []string {
	var orphaned []string
	now := time.Now()
	for id, w := range c.workers {
		if w.Liveness == wire.LivenessAlive && now.Sub(w.LastHeartbeat) > HeartbeatGrace {
			w.Liveness = wire.LivenessDead
			for actionID, workerID := range c.inFlight {
				if workerID == id {
					orphaned = append(orphaned, actionID)
					delete(c.inFlight, actionID)
				}
			}
		}
	}
	return orphaned
}

// Complete records an action's result, clearing it from the in-flight set.
func (c *Coordinator) Complete(result wire.ActionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, result.ID)
}

// WorkerSnapshot returns a copy of the current worker registry, for
// telemetry/debugging.
func (c *Coordinator) WorkerSnapshot() map[string]WorkerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]WorkerState, len(c.workers))
	for id, w := range c.workers {
		out[id] = *w
	}
	return out
}
