//go:build darwin

package sandbox

import (
	"bytes"
	"context"
	"os/exec"

	"golang.org/x/xerrors"
)

// DarwinBackend isolates an action with a sandbox-exec profile, per §4.9's
// macOS row. It does not enforce MaxMemoryBytes/MaxCPUCores, and Run fills
// in no resource accounting (CPU time, peak RSS) in its Output.
type DarwinBackend struct {
	// Profile is the sandbox-exec policy applied to the command. The zero
	// value is an empty profile; NewDarwinBackend sets defaultDarwinProfile,
	// which denies by default (network included) and allows writes only
	// under spec.TempPaths[0], or /tmp when TempPaths is empty.
	Profile string
}

func NewDarwinBackend() *DarwinBackend {
	return &DarwinBackend{Profile: defaultDarwinProfile}
}

const defaultDarwinProfile = `(version 1)
(deny default)
(allow process-fork)
(allow process-exec)
(allow file-read*)
(allow file-write* (subpath (param "WRITABLE")))
`

func (b *DarwinBackend) Run(ctx context.Context, spec Spec) (Output, error) {
	if len(spec.Command) == 0 {
		return Output{}, xerrors.Errorf("sandbox: empty command")
	}
	writable := "/tmp"
	if len(spec.TempPaths) > 0 {
		writable = spec.TempPaths[0]
	}
	args := append([]string{"-p", b.Profile, "-D", "WRITABLE=" + writable}, spec.Command...)
	cmd := exec.CommandContext(ctx, "sandbox-exec", args...)
	cmd.Env = mapEnv(spec.Env)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return Output{}, xerrors.Errorf("sandbox: start %v: %w", cmd.Args, err)
	}
	stop, timedOut := watch(ctx, cmd, spec.Timeout, gracePeriod(spec))
	err := cmd.Wait()
	stop()

	out := Output{Stdout: stdout.String(), Stderr: stderr.String(), TimedOut: *timedOut}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			out.ExitCode = exitErr.ExitCode()
			return out, nil
		}
		return out, xerrors.Errorf("sandbox: wait %v: %w", cmd.Args, err)
	}
	return out, nil
}
