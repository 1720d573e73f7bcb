//go:build linux || darwin || freebsd

package shm

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// A peer that has just created the file sizes it right after. Openers that
// find it empty poll the size for a few milliseconds before giving up.
var (
	sizeWaitAttempts = 5
	sizeWaitDelay    = time.Millisecond
)

func openSegment(name, path string, mode Mode, capacity int) (*Segment, error) {
	var (
		file    *os.File
		created bool
		err     error
		prot    = unix.PROT_READ
	)

	switch mode {
	case ReadWrite:
		prot |= unix.PROT_WRITE
		file, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			created = true
		} else if errors.Is(err, fs.ErrExist) {
			file, err = os.OpenFile(path, os.O_RDWR, 0)
		}
	case ReadOnly:
		file, err = os.OpenFile(path, os.O_RDONLY, 0)
	default:
		return nil, fmt.Errorf("%w: unknown mode %d", ErrOpen, mode)
	}
	if err != nil {
		return nil, classifyOpenError(name, err)
	}

	// Ensure cleanup on error
	cleanup := func() {
		file.Close()
		if created {
			os.Remove(path)
		}
	}

	size := 0
	if created {
		if err := file.Truncate(int64(capacity)); err != nil {
			cleanup()
			return nil, fmt.Errorf("%w %s: resize: %v", ErrOpen, name, err)
		}
		size = capacity
	} else {
		size, err = waitForSize(file)
		if err != nil {
			cleanup()
			return nil, classifyOpenError(name, err)
		}
	}

	if size == 0 {
		// The creator has not sized the file yet.
		cleanup()
		if mode == ReadOnly {
			return nil, fmt.Errorf("%w: %s is not initialised", ErrNotFound, name)
		}
		return nil, fmt.Errorf("%w %s: segment is not initialised", ErrOpen, name)
	}
	if size < MinCapacity {
		cleanup()
		return nil, &CorruptError{Length: uint32(size), Limit: MinCapacity}
	}

	mem, err := unix.Mmap(int(file.Fd()), 0, size, prot, unix.MAP_SHARED)
	if err != nil {
		cleanup()
		return nil, classifyOpenError(name, fmt.Errorf("mmap: %w", err))
	}

	return &Segment{
		name: name,
		path: path,
		mode: mode,
		file: file,
		mem:  mem,
	}, nil
}

func waitForSize(file *os.File) (int, error) {
	delay := sizeWaitDelay
	for attempt := 1; ; attempt++ {
		info, err := file.Stat()
		if err != nil {
			return 0, err
		}
		if info.Size() > 0 || attempt >= sizeWaitAttempts {
			return int(info.Size()), nil
		}
		time.Sleep(delay)
		delay *= 2
	}
}

func unmap(mem []byte) error {
	if len(mem) == 0 {
		return nil
	}
	if err := unix.Munmap(mem); err != nil {
		return fmt.Errorf("munmap failed: %w", err)
	}
	return nil
}

func lockFile(file *os.File, exclusive bool) error {
	how := unix.LOCK_SH
	if exclusive {
		how = unix.LOCK_EX
	}
	for {
		err := unix.Flock(int(file.Fd()), how)
		if err != unix.EINTR {
			if err != nil {
				return fmt.Errorf("flock failed: %w", err)
			}
			return nil
		}
	}
}

func unlockFile(file *os.File) error {
	if err := unix.Flock(int(file.Fd()), unix.LOCK_UN); err != nil {
		return fmt.Errorf("flock unlock failed: %w", err)
	}
	return nil
}
