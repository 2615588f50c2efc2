// Package target defines the declarative build target and the mutable
// build-time node that wraps it.
package target

import "fmt"

// Id is a stable identifier for a build target, label-like, e.g.
// "//path/to:name". Produced by the (external) configuration loader and
// immutable thereafter.
type Id string

// Kind enumerates what a target produces.
type Kind int

const (
	KindExecutable Kind = iota
	KindLibrary
	KindTest
	KindCustom
)

func (k Kind) String() string {
	switch k {
	case KindExecutable:
		return "executable"
	case KindLibrary:
		return "library"
	case KindTest:
		return "test"
	case KindCustom:
		return "custom"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Language enumerates the per-target toolchain driver to invoke. The set is
// open-ended; Unknown is reserved for unrecognized values from the config
// loader, which is a ConfigError at load time.
type Language string

const (
	LangUnknown Language = ""
	LangGo      Language = "go"
	LangRust    Language = "rust"
	LangC       Language = "c"
	LangCXX     Language = "cxx"
	LangPython  Language = "python"
	LangJS      Language = "js"
)

// Target is a declarative, immutable unit describing what to build. It is
// constructed once by the configuration loader (out of scope for this
// package) and held for the lifetime of the workspace.
type Target struct {
	ID         Id
	Kind       Kind
	Language   Language
	Sources    []string // ordered; globs already expanded
	Deps       map[Id]struct{}
	Flags      []string // ordered
	Env        map[string]string
	OutputPath string // optional
}

// SortedDeps returns Deps as a slice in lexicographic order, used wherever a
// deterministic iteration order is required (e.g. fingerprint input,
// reproducible diagnostics).
func (t *Target) SortedDeps() []Id {
	out := make([]Id, 0, len(t.Deps))
	for id := range t.Deps {
		out = append(out, id)
	}
	sortIds(out)
	return out
}

func sortIds(ids []Id) {
	// insertion sort is fine; target fan-in is small in practice and this
	// keeps the package free of a sort.Slice closure allocation on the hot
	// digest path.
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}
