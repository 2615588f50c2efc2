// Package worker implements §4.6's distributed worker and §4.8's
// work-stealing protocol: a per-worker WorkStealingDeque (owner-only LIFO
// at one end, cross-thread FIFO steal at the other), a peer registry, and
// the main pop-local/request-coordinator/steal-peer loop.
//
// Grounded on internal/batch/batch.go's scheduler loop shape (a worker
// goroutine draining a channel, reporting results, updating live status)
// generalized from a single shared channel to a genuinely distributed,
// per-worker deque with lateral stealing.
package worker

import (
	"sync"

	"github.com/forgebuild/forge/internal/wire"
)

// WorkStealingDeque holds one worker's pending ActionRequests. The owner
// pushes and pops from the bottom (LIFO, best cache locality); thieves
// steal from the top (FIFO, oldest task, least recent locality), per
// §4.8.
type WorkStealingDeque struct {
	mu    sync.Mutex
	items []wire.ActionRequest
}

func NewWorkStealingDeque() *WorkStealingDeque {
	return &WorkStealingDeque{}
}

// PushBottom is owner-only: adds a new task to the LIFO end.
func (d *WorkStealingDeque) PushBottom(a wire.ActionRequest) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items = append(d.items, a)
}

// PopBottom is owner-only: takes the most recently pushed task.
func (d *WorkStealingDeque) PopBottom() (wire.ActionRequest, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.items)
	if n == 0 {
		return wire.ActionRequest{}, false
	}
	a := d.items[n-1]
	d.items = d.items[:n-1]
	return a, true
}

// StealTop is cross-thread: takes the oldest pending task, if the deque
// has more than minLocalReserve items (the victim keeps a small local
// reserve rather than being drained to zero by a single thief, per §4.8's
// "queue_size > min_local_reserve" acceptance rule).
func (d *WorkStealingDeque) StealTop(minLocalReserve int) (wire.ActionRequest, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.items) <= minLocalReserve {
		return wire.ActionRequest{}, false
	}
	a := d.items[0]
	d.items = d.items[1:]
	return a, true
}

func (d *WorkStealingDeque) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}
