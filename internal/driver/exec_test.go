package driver

import (
	"context"
	"testing"

	"github.com/forgebuild/forge/internal/target"
)

func TestExecDriverIsAvailable(t *testing.T) {
	d := &ExecDriver{Lang: target.LangC, Command: "true"}
	if !d.IsAvailable() {
		t.Error("IsAvailable() = false for a binary that should be on PATH (true)")
	}
	missing := &ExecDriver{Lang: target.LangC, Command: "definitely-not-a-real-binary-xyz"}
	if missing.IsAvailable() {
		t.Error("IsAvailable() = true for a nonexistent binary")
	}
}

func TestExecDriverBuildSuccess(t *testing.T) {
	d := &ExecDriver{Lang: target.LangC, Command: "true"}
	node := &target.Node{Target: &target.Target{ID: "//:t", OutputPath: "out/t"}}
	bc := &BuildContext{Node: node, WorkDir: t.TempDir()}
	outcome, err := d.Build(context.Background(), bc)
	if err != nil {
		t.Fatalf("Build() = %v, want nil", err)
	}
	if outcome.OutputPath != "out/t" {
		t.Errorf("OutputPath = %q, want %q", outcome.OutputPath, "out/t")
	}
}

func TestExecDriverBuildFailureIsBuildFailureCode(t *testing.T) {
	d := &ExecDriver{Lang: target.LangC, Command: "false"}
	node := &target.Node{Target: &target.Target{ID: "//:t"}}
	bc := &BuildContext{Node: node, WorkDir: t.TempDir()}
	_, err := d.Build(context.Background(), bc)
	if err == nil {
		t.Fatal("Build() with a failing command = nil, want error")
	}
	te, ok := err.(*target.Error)
	if !ok {
		t.Fatalf("Build() error = %T, want *target.Error", err)
	}
	if te.Code != target.CodeBuildFailure {
		t.Errorf("Code = %v, want CodeBuildFailure", te.Code)
	}
}

func TestExecDriverAnalyzeUnsupported(t *testing.T) {
	d := &ExecDriver{Lang: target.LangC, Command: "true"}
	_, err := d.Analyze(context.Background(), "a.c")
	if _, ok := err.(*ErrAnalyzeUnsupported); !ok {
		t.Errorf("Analyze() error = %T, want *ErrAnalyzeUnsupported", err)
	}
}

func TestRegistryRegisterAndFor(t *testing.T) {
	r := NewRegistry()
	d := &ExecDriver{Lang: target.LangRust, Command: "rustc"}
	r.Register(target.LangRust, d)

	got, ok := r.For(target.LangRust)
	if !ok || got != d {
		t.Errorf("For(rust) = (%v,%v), want the registered driver", got, ok)
	}
	if _, ok := r.For(target.LangPython); ok {
		t.Error("For(python) = true for an unregistered language")
	}
}
