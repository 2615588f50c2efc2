//go:build !windows

package sandbox

import (
	"os"
	"syscall"
)

func terminateSignal() os.Signal { return syscall.SIGTERM }
