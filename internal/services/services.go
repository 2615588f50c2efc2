// Package services replaces the ambient global mutable state the teacher
// leans on throughout internal/build and internal/batch (package-level
// log.Printf, a process-global retry policy, runtime.GOARCH-driven SIMD
// assumptions) with one explicit Services struct, constructed once in
// cmd/forge and threaded through driver.BuildContext, per §9's redesign
// flag: "Replace with an explicit Services struct constructed once and
// threaded through BuildContext. OS signal handlers are the one
// legitimate exception and may use a small set of atomic process-global
// flags."
package services

import (
	"io"
	"log"
	"os"

	"github.com/klauspost/cpuid/v2"

	"github.com/forgebuild/forge/internal/resilience"
)

// Services bundles every ambient concern a driver or scheduler component
// needs, constructed once per process.
type Services struct {
	Logger   *log.Logger
	AuditLog *log.Logger
	Retry    resilience.Policy
	CPU      CPUFeatures
}

// CPUFeatures is resolved once at Services construction instead of being
// read ad hoc from runtime/cpuid globals scattered through driver code,
// so a driver that wants to pass -march=native-equivalent flags has a
// stable, already-detected answer.
type CPUFeatures struct {
	HasAVX2   bool
	HasAVX512 bool
	NumCores  int
}

func detectCPUFeatures() CPUFeatures {
	return CPUFeatures{
		HasAVX2:   cpuid.CPU.Supports(cpuid.AVX2),
		HasAVX512: cpuid.CPU.Supports(cpuid.AVX512F),
		NumCores:  cpuid.CPU.LogicalCores,
	}
}

// New constructs the default Services: logger and audit log to stderr
// (redirect via Option for tests or daemonized runs), the default retry
// policy, and one-time CPU feature detection.
func New(opts ...Option) *Services {
	s := &Services{
		Logger:   log.New(os.Stderr, "", log.LstdFlags),
		AuditLog: log.New(os.Stderr, "audit: ", log.LstdFlags),
		Retry:    resilience.DefaultPolicy(),
		CPU:      detectCPUFeatures(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type Option func(*Services)

func WithLogOutput(w io.Writer) Option {
	return func(s *Services) { s.Logger = log.New(w, "", log.LstdFlags) }
}

func WithAuditOutput(w io.Writer) Option {
	return func(s *Services) { s.AuditLog = log.New(w, "audit: ", log.LstdFlags) }
}

func WithRetry(p resilience.Policy) Option {
	return func(s *Services) { s.Retry = p }
}
