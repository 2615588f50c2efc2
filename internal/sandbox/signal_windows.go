//go:build windows

package sandbox

import "os"

func terminateSignal() os.Signal { return os.Kill }
