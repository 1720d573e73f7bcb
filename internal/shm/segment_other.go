//go:build !(linux || darwin || freebsd)

package shm

import "os"

func openSegment(name, path string, mode Mode, capacity int) (*Segment, error) {
	return nil, ErrUnsupported
}

func unmap(mem []byte) error { return nil }

func lockFile(file *os.File, exclusive bool) error { return ErrUnsupported }

func unlockFile(file *os.File) error { return ErrUnsupported }
