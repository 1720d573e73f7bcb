//go:build !(linux || darwin || freebsd)

package writer

import "time"

func processCPUTime() (time.Duration, bool) {
	return 0, false
}
