package worker

import (
	"context"
	"io/ioutil"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/forgebuild/forge/internal/artifact"
	"github.com/forgebuild/forge/internal/fingerprint"
	"github.com/forgebuild/forge/internal/sandbox"
	"github.com/forgebuild/forge/internal/wire"
	"golang.org/x/xerrors"
)

// DefaultHeartbeatInterval matches §4.6: "Workers heartbeat to the
// coordinator on a fixed interval (default 5 s)".
const DefaultHeartbeatInterval = 5 * time.Second

const minLocalReserve = 1

// Transport is the minimal surface a Worker needs against the
// coordinator and peers; production wiring implements it over the §6.4
// wire.Frame protocol on a TCP connection, tests implement it in-memory.
type Transport interface {
	Register(wire.Registration) (wire.RegistrationAck, error)
	SendHeartbeat(wire.HeartBeat) error
	RequestWork(wire.WorkRequest) (wire.ActionRequest, bool, error)
	SendResult(wire.ActionResult) error
	Steal(peerAddr string, req wire.StealRequest) (wire.StealResponse, error)
}

// Worker runs the §4.6 main loop: pop local, else request coordinator,
// else steal from a peer; execute in the sandbox; report the result.
type Worker struct {
	Transport Transport
	Sandbox   sandbox.Backend
	Artifacts *artifact.Store
	Peers     *PeerRegistry
	Deque     *WorkStealingDeque

	QueueCapacity int
	MaxConcurrent int
	Capabilities  []string

	id          atomic.Value // string; placeholder until registration ack
	active      int32        // atomic count of in-flight actions
	stealAttempt int32       // atomic, reset on any success
}

// NewWorker constructs a Worker with a random placeholder id, overwritten
// once the coordinator acknowledges registration (SPEC_FULL.md's
// resolution of the worker-id open question).
func NewWorker(t Transport, sb sandbox.Backend, queueCap, maxConcurrent int, caps []string) *Worker {
	w := &Worker{
		Transport:     t,
		Sandbox:       sb,
		Peers:         NewPeerRegistry(),
		Deque:         NewWorkStealingDeque(),
		QueueCapacity: queueCap,
		MaxConcurrent: maxConcurrent,
		Capabilities:  caps,
	}
	w.id.Store(placeholderID())
	return w
}

func placeholderID() string {
	return "unregistered-" + randomSuffix()
}

func randomSuffix() string {
	const alphabet = "0123456789abcdef"
	buf := make([]byte, 8)
	for i := range buf {
		buf[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(buf)
}

func (w *Worker) ID() string { return w.id.Load().(string) }

// Register connects to the coordinator and adopts its assigned id.
func (w *Worker) Register(address string) error {
	ack, err := w.Transport.Register(wire.Registration{
		Address:       address,
		Capabilities:  w.Capabilities,
		QueueCap:      w.QueueCapacity,
		MaxConcurrent: w.MaxConcurrent,
	})
	if err != nil {
		return xerrors.Errorf("worker: register: %w", err)
	}
	w.id.Store(ack.WorkerID)
	return nil
}

// LoadFactor computes §4.6's published metric:
//
//	0.7 * (queue_size / queue_capacity) + 0.3 * (active_actions / max_concurrent)
func (w *Worker) LoadFactor() float64 {
	qcap := w.QueueCapacity
	if qcap <= 0 {
		qcap = 1
	}
	maxc := w.MaxConcurrent
	if maxc <= 0 {
		maxc = 1
	}
	queueRatio := float64(w.Deque.Len()) / float64(qcap)
	activeRatio := float64(atomic.LoadInt32(&w.active)) / float64(maxc)
	return 0.7*queueRatio + 0.3*activeRatio
}

// HeartbeatLoop runs until ctx is cancelled, sending a HeartBeat on
// interval.
func (w *Worker) HeartbeatLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = w.Transport.SendHeartbeat(wire.HeartBeat{
				WorkerID:    w.ID(),
				QueueDepth:  w.Deque.Len(),
				LoadFactor:  w.LoadFactor(),
				ActiveCount: int(atomic.LoadInt32(&w.active)),
			})
		}
	}
}

// Run drives the main loop of §4.6 until ctx is cancelled: pop local work,
// else ask the coordinator, else attempt to steal; execute each action in
// the sandbox and report the result.
func (w *Worker) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		action, ok := w.Deque.PopBottom()
		if !ok {
			action, ok = w.requestFromCoordinator()
		}
		if !ok {
			action, ok = w.attemptSteal()
		}
		if !ok {
			w.backoffIdle()
			continue
		}
		atomic.StoreInt32(&w.stealAttempt, 0)

		wg.Add(1)
		atomic.AddInt32(&w.active, 1)
		go func(a wire.ActionRequest) {
			defer wg.Done()
			defer atomic.AddInt32(&w.active, -1)
			result := w.execute(ctx, a)
			_ = w.Transport.SendResult(result)
		}(action)
	}
}

func (w *Worker) requestFromCoordinator() (wire.ActionRequest, bool) {
	a, ok, err := w.Transport.RequestWork(wire.WorkRequest{WorkerID: w.ID(), Capabilities: w.Capabilities})
	if err != nil {
		return wire.ActionRequest{}, false
	}
	return a, ok
}

// attemptSteal implements §4.8's stealing protocol: sample candidates
// weighted inversely by load factor, request the oldest task from one,
// marking it Dead in the PeerRegistry on network error and trying another.
func (w *Worker) attemptSteal() (wire.ActionRequest, bool) {
	const sampleSize = 3
	candidates := w.Peers.SampleCandidates(sampleSize)
	for _, c := range candidates {
		resp, err := w.Transport.Steal(c.Address, wire.StealRequest{
			Thief:         w.ID(),
			Victim:        c.WorkerID,
			PriorityFloor: 0,
		})
		if err != nil {
			w.Peers.MarkDead(c.WorkerID)
			continue
		}
		if resp.Granted {
			return resp.Action, true
		}
	}
	return wire.ActionRequest{}, false
}

// backoffIdle sleeps with exponential backoff and jitter when no work was
// found anywhere, per §4.8: "yielding the thread at low attempts and
// sleeping up to ~100ms at high attempts."
func (w *Worker) backoffIdle() {
	attempt := atomic.AddInt32(&w.stealAttempt, 1)
	if attempt <= 1 {
		// low attempts: just yield, no sleep
		runtime.Gosched()
		return
	}
	base := 2 * time.Millisecond
	d := time.Duration(float64(base) * math.Pow(1.5, float64(attempt)))
	if d > 100*time.Millisecond {
		d = 100 * time.Millisecond
	}
	jitter := time.Duration(rand.Int63n(int64(d) + 1))
	time.Sleep(d/2 + jitter/2)
}

// execute runs one action in the sandbox and translates the outcome to an
// ActionResult. When w.Artifacts is set, declared inputs are materialized
// from the blob store onto disk before the run and declared outputs are
// published back into it afterward, so ActionResult.OutputIDs can be
// forwarded to the coordinator per §3/§6.4 without the caller re-hashing
// anything.
func (w *Worker) execute(ctx context.Context, a wire.ActionRequest) wire.ActionResult {
	start := time.Now()

	if w.Artifacts != nil {
		if err := w.materializeInputs(a.Inputs); err != nil {
			return wire.ActionResult{
				ID:       a.ID,
				Status:   wire.ResultError,
				Duration: time.Since(start),
				Stderr:   err.Error(),
				ExitCode: -1,
			}
		}
	}

	spec := sandbox.Spec{
		Command:     a.Command,
		Env:         a.Env,
		Timeout:     a.Timeout,
		InputPaths:  specPaths(a.Inputs),
		OutputPaths: specPaths(a.Outputs),
	}
	out, err := w.Sandbox.Run(ctx, spec)
	dur := time.Since(start)
	if err != nil {
		return wire.ActionResult{
			ID:       a.ID,
			Status:   wire.ResultError,
			Duration: dur,
			Stderr:   err.Error(),
			ExitCode: -1,
		}
	}
	status := wire.ResultSuccess
	if out.ExitCode != 0 {
		status = wire.ResultFailure
	}
	result := wire.ActionResult{
		ID:       a.ID,
		Status:   status,
		Duration: dur,
		Stdout:   out.Stdout,
		Stderr:   out.Stderr,
		ExitCode: out.ExitCode,
		ResourceUsage: wire.ResourceUsage{
			CPUTimeNs:   out.CPUTimeNs,
			MaxRSSBytes: out.MaxRSSBytes,
		},
	}
	if status == wire.ResultSuccess && w.Artifacts != nil {
		ids, err := w.publishOutputs(a.Outputs)
		if err != nil {
			result.Status = wire.ResultError
			result.Stderr += "\npublish outputs: " + err.Error()
			return result
		}
		result.OutputIDs = ids
	}
	return result
}

// materializeInputs writes each declared input's blob to its sandbox-
// relative path so the backend can stage it, either as a single file or,
// for directory outputs bundled via artifact.PackCPIO, as an extracted
// tree.
func (w *Worker) materializeInputs(inputs []wire.ArtifactSpec) error {
	for _, in := range inputs {
		data, err := w.Artifacts.Fetch(fingerprint.Content(in.ID))
		if err != nil {
			if in.Optional {
				continue
			}
			return xerrors.Errorf("materialize input %s: %w", in.Path, err)
		}
		if err := os.MkdirAll(filepath.Dir(in.Path), 0755); err != nil {
			return xerrors.Errorf("materialize input %s: %w", in.Path, err)
		}
		mode := os.FileMode(0644)
		if in.Executable {
			mode = 0755
		}
		if err := ioutil.WriteFile(in.Path, data, mode); err != nil {
			return xerrors.Errorf("materialize input %s: %w", in.Path, err)
		}
	}
	return nil
}

// publishOutputs uploads each declared output path -- a cpio archive of
// the tree if it is a directory, the raw bytes otherwise -- and returns
// their blob ids in the same order as outputs.
func (w *Worker) publishOutputs(outputs []wire.ArtifactSpec) ([]string, error) {
	ids := make([]string, 0, len(outputs))
	for _, out := range outputs {
		fi, err := os.Stat(out.Path)
		if err != nil {
			if out.Optional {
				continue
			}
			return nil, xerrors.Errorf("publish output %s: %w", out.Path, err)
		}
		var data []byte
		if fi.IsDir() {
			data, err = artifact.PackCPIO(out.Path)
		} else {
			data, err = ioutil.ReadFile(out.Path)
		}
		if err != nil {
			return nil, xerrors.Errorf("publish output %s: %w", out.Path, err)
		}
		id, err := w.Artifacts.Upload(data)
		if err != nil {
			return nil, xerrors.Errorf("publish output %s: %w", out.Path, err)
		}
		ids = append(ids, string(id))
	}
	return ids, nil
}

func specPaths(specs []wire.ArtifactSpec) []string {
	out := make([]string, len(specs))
	for i, s := range specs {
		out[i] = s.Path
	}
	return out
}
