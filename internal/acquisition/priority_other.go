//go:build !linux

package acquisition

import "github.com/pkg/errors"

func setThreadPriority(nice int) error {
	if nice == 0 {
		return nil
	}
	return errors.New("thread priority is only supported on linux")
}
