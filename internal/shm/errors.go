package shm

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a read-only open finds no segment by that name.
	ErrNotFound = errors.New("shared memory segment not found")
	// ErrReadOnlyMode is returned when a mutation is attempted through a read-only handle.
	ErrReadOnlyMode = errors.New("segment opened in read-only mode")
	// ErrOutOfRange is returned for raw accesses outside [0, capacity).
	ErrOutOfRange = errors.New("access out of segment range")
	// ErrTooLarge is returned when a payload does not fit in the segment.
	ErrTooLarge = errors.New("payload too large for segment")
	// ErrEmpty is returned when the frame length field is zero.
	ErrEmpty = errors.New("segment is empty")
	// ErrCorrupt is returned when the frame length field is out of bounds.
	ErrCorrupt = errors.New("segment frame is corrupt")
	// ErrInvalidName is returned for empty names or names containing a path separator.
	ErrInvalidName = errors.New("invalid segment name")
	// ErrPermission is returned when the OS denies access to the segment.
	ErrPermission = errors.New("permission denied for segment")
	// ErrOpen wraps any other OS failure while creating or mapping a segment.
	ErrOpen = errors.New("failed to open segment")
	// ErrClosed is returned when a closed handle is used.
	ErrClosed = errors.New("segment handle closed")
	// ErrUnsupported is returned on platforms without mmap support.
	ErrUnsupported = errors.New("shared memory not supported on this platform")
)

// TooLargeError reports a payload that exceeds the available payload space.
type TooLargeError struct {
	Size  int
	Limit int
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("payload too large: %d bytes exceeds limit of %d bytes", e.Size, e.Limit)
}

// Is makes errors.Is(err, ErrTooLarge) hold for *TooLargeError.
func (e *TooLargeError) Is(target error) bool {
	return target == ErrTooLarge
}

// CorruptError reports a length field that cannot be trusted.
type CorruptError struct {
	Length uint32
	Limit  int
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt frame: length %d outside [0, %d]", e.Length, e.Limit)
}

func (e *CorruptError) Is(target error) bool {
	return target == ErrCorrupt
}

// RangeError reports a raw access beyond the segment bounds.
type RangeError struct {
	Offset   int
	Length   int
	Capacity int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("access [%d, %d) outside segment capacity %d", e.Offset, e.Offset+e.Length, e.Capacity)
}

func (e *RangeError) Is(target error) bool {
	return target == ErrOutOfRange
}
