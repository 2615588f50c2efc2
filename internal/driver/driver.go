// Package driver defines the capability-set interface that replaces the
// teacher's per-language switch statements, per §9's redesign flag on
// class-based polymorphism: "drivers register into a registry keyed by
// language enum."
//
// Grounded on distri's own per-language build files (buildc.go,
// buildcmake.go, buildmeson.go, buildpython.go, buildproto.go,
// buildperl.go, buildgo.go, buildgomod.go), each a free function selected
// by a switch in the teacher; this package generalizes that switch into an
// explicit registry.
package driver

import (
	"context"

	"github.com/forgebuild/forge/internal/services"
	"github.com/forgebuild/forge/internal/target"
)

// BuildContext carries everything a driver needs for one node's build:
// sources, flags, env, working directories, plus the ambient Services
// struct (logger/tracer) threaded through per §9.
type BuildContext struct {
	Node       *target.Node
	WorkDir    string
	OutputDir  string
	DepOutputs map[target.Id]string // dependency id -> its output path
	Services   *services.Services
}

// BuildOutcome is what a driver reports back for one node.
type BuildOutcome struct {
	OutputHash string // content fingerprint of the produced output
	OutputPath string
}

// Driver is the capability set a language backend implements.
type Driver interface {
	// Build invokes the underlying toolchain for one node.
	Build(ctx context.Context, bc *BuildContext) (BuildOutcome, error)
	// Analyze optionally extracts AST symbols for incremental analysis;
	// drivers that don't support symbol-level incrementality may return
	// ErrAnalyzeUnsupported. The analyzer package does not call Analyze;
	// it works from whatever FileASTs the caller has put in the index.
	Analyze(ctx context.Context, path string) ([]Symbol, error)
	// IsAvailable reports whether the underlying toolchain binary is
	// present and usable on this host. The result is not cached: the
	// executor calls it on every Run.
	IsAvailable() bool
}

// Symbol is the subset of astindex.Symbol a driver can cheaply produce.
// The richer type lives in astindex; nothing in this package converts
// between the two.
type Symbol struct {
	Name                string
	Kind                string
	ContentHash         string
	ReferencedSymbols   []string
}

// Registry maps target.Language to its Driver, per §9.
type Registry struct {
	drivers map[target.Language]Driver
}

func NewRegistry() *Registry {
	return &Registry{drivers: make(map[target.Language]Driver)}
}

func (r *Registry) Register(lang target.Language, d Driver) {
	r.drivers[lang] = d
}

func (r *Registry) For(lang target.Language) (Driver, bool) {
	d, ok := r.drivers[lang]
	return d, ok
}

// ErrAnalyzeUnsupported is returned by Analyze when a driver has no
// symbol-level insight into a file's contents.
type ErrAnalyzeUnsupported struct{ Language target.Language }

func (e *ErrAnalyzeUnsupported) Error() string {
	return "driver: symbol analysis unsupported for language " + string(e.Language)
}
