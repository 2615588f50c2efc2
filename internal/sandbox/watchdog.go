package sandbox

import (
	"context"
	"os/exec"
	"time"
)

// watch enforces spec.Timeout against cmd: a watchdog goroutine sends
// SIGTERM on expiry, then SIGKILL after gracePeriod if the process has not
// exited, per §4.9's "Timeout enforcement" note. It returns a function the
// caller defers to stop the watchdog once the command has actually exited,
// and a pointer that is set true if the watchdog fired.
func watch(ctx context.Context, cmd *exec.Cmd, timeout time.Duration, grace time.Duration) (stop func(), timedOut *bool) {
	timedOut = new(bool)
	if timeout <= 0 {
		return func() {}, timedOut
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-done:
			return
		case <-time.After(timeout):
		case <-ctx.Done():
			return
		}
		*timedOut = true
		if cmd.Process == nil {
			return
		}
		cmd.Process.Signal(terminateSignal())
		select {
		case <-done:
			return
		case <-time.After(grace):
			cmd.Process.Kill()
		}
	}()
	return func() { close(done) }, timedOut
}
