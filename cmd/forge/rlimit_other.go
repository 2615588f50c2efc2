//go:build !linux

package main

// bumpRlimitNOFILE is a no-op outside Linux; the /proc-based file
// descriptor ceilings it reads on Linux have no equivalent here.
func bumpRlimitNOFILE() error { return nil }
