//go:build linux

package acquisition

import (
	"golang.org/x/sys/unix"
)

// setThreadPriority applies a nice value to the calling OS thread. The caller
// must have locked the goroutine to its thread.
func setThreadPriority(nice int) error {
	if nice == 0 {
		return nil
	}
	return unix.Setpriority(unix.PRIO_PROCESS, unix.Gettid(), nice)
}
