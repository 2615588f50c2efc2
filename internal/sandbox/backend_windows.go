//go:build windows

package sandbox

import (
	"bytes"
	"context"
	"os/exec"

	"golang.org/x/xerrors"
)

// WindowsBackend runs the action unsandboxed aside from the timeout
// watchdog. §4.9 calls for job objects and restricted tokens on Windows;
// neither is implemented here, so this backend provides no filesystem or
// resource isolation and should not be used for untrusted actions.
type WindowsBackend struct{}

func NewWindowsBackend() *WindowsBackend { return &WindowsBackend{} }

func (b *WindowsBackend) Run(ctx context.Context, spec Spec) (Output, error) {
	if len(spec.Command) == 0 {
		return Output{}, xerrors.Errorf("sandbox: empty command")
	}
	cmd := exec.CommandContext(ctx, spec.Command[0], spec.Command[1:]...)
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
