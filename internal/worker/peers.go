package worker

import (
	"math/rand"
	"sync"
	"time"

	"github.com/forgebuild/forge/internal/wire"
)

// PeerInfo is one entry in a worker's PeerRegistry, gossiped via
// PeerAnnounce per §4.6/§4.8.
type PeerInfo struct {
	WorkerID   string
	Address    string
	LoadFactor float64
	Liveness   wire.Liveness
	lastSeen   time.Time
}

// PeerRegistry tracks the other workers a worker knows about, for
// steal-candidate sampling.
type PeerRegistry struct {
	mu    sync.RWMutex
	peers map[string]*PeerInfo
}

func NewPeerRegistry() *PeerRegistry {
	return &PeerRegistry{peers: make(map[string]*PeerInfo)}
}

func (r *PeerRegistry) Announce(a wire.PeerAnnounce) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[a.WorkerID] = &PeerInfo{
		WorkerID:   a.WorkerID,
		Address:    a.Address,
		LoadFactor: a.LoadFactor,
		Liveness:   wire.LivenessAlive,
		lastSeen:   time.Now(),
	}
}

// MarkDead flags a peer as unreachable after a network error talking to
// it, per §4.8 step 4.
func (r *PeerRegistry) MarkDead(workerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.peers[workerID]; ok {
		p.Liveness = wire.LivenessDead
	}
}

// SampleCandidates returns up to n live peers, weighted inversely by load
// factor (lower load more likely to be picked) via weighted random
// sampling without replacement, per §4.8 step 1.
func (r *PeerRegistry) SampleCandidates(n int) []PeerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var alive []PeerInfo
	for _, p := range r.peers {
		if p.Liveness == wire.LivenessAlive {
			alive = append(alive, *p)
		}
	}
	if len(alive) <= n {
		return alive
	}

	weights := make([]float64, len(alive))
	total := 0.0
	for i, p := range alive {
		w := 1.0 / (p.LoadFactor + 0.01) // +epsilon avoids division by zero at load 0
		weights[i] = w
		total += w
	}

	out := make([]PeerInfo, 0, n)
	chosen := make(map[int]bool, n)
	for len(out) < n && len(chosen) < len(alive) {
		r := rand.Float64() * total
		acc := 0.0
		for i, w := range weights {
			if chosen[i] {
				continue
			}
			acc += w
			if r <= acc {
				chosen[i] = true
				out = append(out, alive[i])
				total -= w
				break
			}
		}
	}
	return out
}
