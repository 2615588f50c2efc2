//go:build linux

package main

import (
	"io/ioutil"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// bumpRlimitNOFILE raises RLIMIT_NOFILE to the kernel-wide maximum, mirroring
// distri.go's bumpRlimitNOFILE. A wave with a wide fan-out opens a cache
// entry, a log file, and a driver subprocess's stdout/stderr pipe per
// concurrent target; the default 1024 soft limit is exhausted well before
// -jobs catches up with a large machine's core count.
func bumpRlimitNOFILE() error {
	// The smaller of the two is the highest value Linux allows:
	// https://github.com/torvalds/linux/blob/2be7d348fe924f0c5583c6a805bd42cecda93104/kernel/sys.c#L1526-L1541
	var fileMax, nrOpen uint64
	{
		b, err := ioutil.ReadFile("/proc/sys/fs/file-max")
		if err != nil {
			return err
		}
		fileMax, err = strconv.ParseUint(strings.TrimSpace(string(b)), 0, 64)
		if err != nil {
			return err
		}
	}
	{
		b, err := ioutil.ReadFile("/proc/sys/fs/nr_open")
		if err != nil {
			return err
		}
		nrOpen, err = strconv.ParseUint(strings.TrimSpace(string(b)), 0, 64)
		if err != nil {
			return err
		}
	}
	max := fileMax
	if nrOpen < max {
		max = nrOpen
	}
	set := unix.Rlimit{Max: max, Cur: max}
	return unix.Setrlimit(unix.RLIMIT_NOFILE, &set)
}
