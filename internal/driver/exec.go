package driver

import (
	"bytes"
	"context"
	"os"
	"os/exec"

	"github.com/forgebuild/forge/internal/target"
	"golang.org/x/xerrors"
)

// ExecDriver invokes an external toolchain binary with the target's Flags
// as arguments and Env merged into the subprocess environment, exactly
// mirroring internal/batch/batch.go's scheduler.build (exec.CommandContext
// + redirected log file) generalized from a single hardcoded "distri
// build" invocation to an arbitrary per-language command name.
type ExecDriver struct {
	Lang    target.Language
	Command string // e.g. "rustc", "gcc", "npm" -- per spec §1's "invoking
	// rustc, gcc, npm, etc" language driver boundary.
}

func (d *ExecDriver) IsAvailable() bool {
	_, err := exec.LookPath(d.Command)
	return err == nil
}

func (d *ExecDriver) Build(ctx context.Context, bc *BuildContext) (BuildOutcome, error) {
	args := append([]string{}, bc.Node.Target.Flags...)
	args = append(args, bc.Node.Target.Sources...)

	cmd := exec.CommandContext(ctx, d.Command, args...)
	cmd.Dir = bc.WorkDir
	cmd.Env = mergeEnv(bc.Node.Target.Env)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return BuildOutcome{}, &target.Error{
			Code:    target.CodeBuildFailure,
			Message: stderr.String(),
			Cause:   xerrors.Errorf("%s %v: %w", d.Command, args, err),
		}
	}
	return BuildOutcome{OutputPath: bc.Node.Target.OutputPath}, nil
}

func (d *ExecDriver) Analyze(ctx context.Context, path string) ([]Symbol, error) {
	return nil, &ErrAnalyzeUnsupported{Language: d.Lang}
}

func mergeEnv(overrides map[string]string) []string {
	env := os.Environ()
	for k, v := range overrides {
		env = append(env, k+"="+v)
	}
	return env
}
