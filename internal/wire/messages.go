package wire

import "time"

// ArtifactSpec names a content-addressed blob and where it is staged
// inside the sandbox, per §3/§6.4.
type ArtifactSpec struct {
	ID         string `cbor:"1,keyasint"` // content-addressed blob id (BLAKE3 hex)
	Path       string `cbor:"2,keyasint"` // sandbox-relative
	Optional   bool   `cbor:"3,keyasint"`
	Executable bool   `cbor:"4,keyasint"`
}

// ActionRequest is one unit of distributed work.
type ActionRequest struct {
	ID                   string            `cbor:"1,keyasint"`
	Command              []string          `cbor:"2,keyasint"`
	Inputs               []ArtifactSpec    `cbor:"3,keyasint"`
	Outputs              []ArtifactSpec    `cbor:"4,keyasint"`
	Env                  map[string]string `cbor:"5,keyasint"`
	Timeout              time.Duration     `cbor:"6,keyasint"`
	Priority             int               `cbor:"7,keyasint"`
	CapabilitiesRequired []string          `cbor:"8,keyasint"`
}

// ResultStatus enumerates ActionResult's outcome per §3.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "Success"
	ResultFailure ResultStatus = "Failure"
	ResultError   ResultStatus = "Error"
)

// ResourceUsage reports what an action consumed, surfaced back to the
// coordinator and, ultimately, telemetry.
type ResourceUsage struct {
	CPUTimeNs   int64 `cbor:"1,keyasint"`
	MaxRSSBytes int64 `cbor:"2,keyasint"`
}

// ActionResult reports one action's completion.
type ActionResult struct {
	ID            string        `cbor:"1,keyasint"`
	Status        ResultStatus  `cbor:"2,keyasint"`
	Duration      time.Duration `cbor:"3,keyasint"`
	OutputIDs     []string      `cbor:"4,keyasint"`
	Stdout        string        `cbor:"5,keyasint"`
	Stderr        string        `cbor:"6,keyasint"`
	ExitCode      int           `cbor:"7,keyasint"`
	ResourceUsage ResourceUsage `cbor:"8,keyasint"`
}

// Liveness enumerates a worker's perceived state in a PeerRegistry.
type Liveness string

const (
	LivenessAlive Liveness = "Alive"
	LivenessDead  Liveness = "Dead"
)

// Registration is sent by a worker connecting to the coordinator for the
// first time; the coordinator replies with the worker's durable id (see
// §4.6/SPEC_FULL.md's open-question resolution on placeholder ids).
type Registration struct {
	Address      string   `cbor:"1,keyasint"`
	Capabilities []string `cbor:"2,keyasint"`
	QueueCap     int      `cbor:"3,keyasint"`
	MaxConcurrent int     `cbor:"4,keyasint"`
}

// RegistrationAck is the coordinator's reply, assigning the durable
// WorkerId.
type RegistrationAck struct {
	WorkerID string `cbor:"1,keyasint"`
}

// HeartBeat is sent by a worker on a fixed interval (default 5s) with its
// current load factor and queue depth, per §4.6.
type HeartBeat struct {
	WorkerID    string  `cbor:"1,keyasint"`
	QueueDepth  int     `cbor:"2,keyasint"`
	LoadFactor  float64 `cbor:"3,keyasint"`
	ActiveCount int     `cbor:"4,keyasint"`
}

// WorkRequest is sent by a worker with an empty deque asking the
// coordinator for more work.
type WorkRequest struct {
	WorkerID     string   `cbor:"1,keyasint"`
	Capabilities []string `cbor:"2,keyasint"`
}

// PeerAnnounce gossips one worker's address and load factor to others, for
// steal-candidate sampling per §4.8.
type PeerAnnounce struct {
	WorkerID   string  `cbor:"1,keyasint"`
	Address    string  `cbor:"2,keyasint"`
	LoadFactor float64 `cbor:"3,keyasint"`
}

// StealRequest is sent by a thief worker directly to a victim peer.
type StealRequest struct {
	Thief        string `cbor:"1,keyasint"`
	Victim       string `cbor:"2,keyasint"`
	PriorityFloor int   `cbor:"3,keyasint"`
}

// StealResponse carries the stolen action, if any.
type StealResponse struct {
	Granted bool          `cbor:"1,keyasint"`
	Action  ActionRequest `cbor:"2,keyasint"`
}
