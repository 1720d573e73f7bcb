package shm

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Capacity limits
const (
	// DefaultCapacity is used when a read-write open creates a segment.
	DefaultCapacity = 64 * 1024
	// MaxCapacity is the hard ceiling for a segment.
	MaxCapacity = 1024 * 1024
	// MinCapacity leaves room for the header and at least one payload byte.
	MinCapacity = FrameHeaderSize + 1

	segmentPrefix = "shmbridge_"
	devShm        = "/dev/shm"
)

// Mode selects what an opener may do with a segment.
type Mode int

const (
	// ReadOnly never creates a segment and rejects every mutation.
	ReadOnly Mode = iota
	// ReadWrite creates the segment when absent.
	ReadWrite
)

// String returns the configuration spelling of the mode
func (m Mode) String() string {
	switch m {
	case ReadOnly:
		return "read_only"
	case ReadWrite:
		return "read_write"
	default:
		return "unknown"
	}
}

// ParseMode converts "read_only"/"read_write" (also "ro"/"rw") into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "read_only", "readonly", "ro":
		return ReadOnly, nil
	case "read_write", "readwrite", "rw", "":
		return ReadWrite, nil
	default:
		return ReadOnly, fmt.Errorf("unknown segment mode %q", s)
	}
}

// Options configures how a segment is located and created.
type Options struct {
	// Capacity applies only when the open creates the segment.
	Capacity int
	// Dir overrides the backing directory (default /dev/shm, else os.TempDir()).
	Dir string
}

func (o Options) capacity() int {
	if o.Capacity <= 0 {
		return DefaultCapacity
	}
	return o.Capacity
}

// Segment is an open, mapped view of a named shared memory object. A Segment
// is owned by one opener for the duration of one logical operation and must
// be closed on every exit path; see With.
type Segment struct {
	name string
	path string
	mode Mode
	file *os.File
	mem  []byte
}

// Open maps the segment called name. ReadOnly fails with ErrNotFound when the
// segment does not exist. ReadWrite creates it with opts.Capacity when absent
// and otherwise maps whatever capacity is already allocated.
func Open(name string, mode Mode, opts Options) (*Segment, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	capacity := opts.capacity()
	if capacity < MinCapacity || capacity > MaxCapacity {
		return nil, fmt.Errorf("%w: capacity %d outside [%d, %d]", ErrOutOfRange, capacity, MinCapacity, MaxCapacity)
	}

	return openSegment(name, SegmentPath(opts.Dir, name), mode, capacity)
}

// With opens the segment, runs fn and closes the segment regardless of how fn exits.
func With(name string, mode Mode, opts Options, fn func(*Segment) error) (err error) {
	seg, err := Open(name, mode, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := seg.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(seg)
}

// Name returns the segment name
func (s *Segment) Name() string { return s.name }

// Path returns the backing file path
func (s *Segment) Path() string { return s.path }

// Mode returns the mode the segment was opened with
func (s *Segment) Mode() Mode { return s.mode }

// Capacity returns the mapped size in bytes.
func (s *Segment) Capacity() int { return len(s.mem) }

// ReadAt copies length bytes starting at offset.
func (s *Segment) ReadAt(offset, length int) ([]byte, error) {
	if s.mem == nil {
		return nil, ErrClosed
	}
	if err := s.checkRange(offset, length); err != nil {
		return nil, err
	}

	out := make([]byte, length)
	copy(out, s.mem[offset:offset+length])
	return out, nil
}

// WriteAt copies data into the segment at offset.
func (s *Segment) WriteAt(offset int, data []byte) error {
	if s.mem == nil {
		return ErrClosed
	}
	if s.mode != ReadWrite {
		return ErrReadOnlyMode
	}
	if err := s.checkRange(offset, len(data)); err != nil {
		return err
	}

	copy(s.mem[offset:], data)
	return nil
}

// Lock takes an advisory lock on the backing file. It is visible to every
// process that locks the same segment; it does nothing for processes that
// never call Lock.
func (s *Segment) Lock(exclusive bool) error {
	if s.file == nil {
		return ErrClosed
	}
	return lockFile(s.file, exclusive)
}

// Unlock releases the advisory lock taken by Lock.
func (s *Segment) Unlock() error {
	if s.file == nil {
		return ErrClosed
	}
	return unlockFile(s.file)
}

// Close unmaps the view and closes the file. Closing twice is a no-op.
func (s *Segment) Close() error {
	var errs []error
	if s.mem != nil {
		if err := unmap(s.mem); err != nil {
			errs = append(errs, err)
		}
		s.mem = nil
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			errs = append(errs, err)
		}
		s.file = nil
	}
	return errors.Join(errs...)
}

func (s *Segment) checkRange(offset, length int) error {
	if offset < 0 || length < 0 || offset > len(s.mem) || length > len(s.mem)-offset {
		return &RangeError{Offset: offset, Length: length, Capacity: len(s.mem)}
	}
	return nil
}

// ValidateName rejects names that cannot be used as a single path element.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// SegmentPath returns the backing file path for name.
func SegmentPath(dir, name string) string {
	if dir == "" {
		dir = defaultDir()
	}
	return filepath.Join(dir, segmentPrefix+name)
}

// Exists reports whether a segment called name is currently present.
func Exists(dir, name string) bool {
	if ValidateName(name) != nil {
		return false
	}
	_, err := os.Stat(SegmentPath(dir, name))
	return err == nil
}

// Unlink removes the named segment. Processes that still map it keep their
// view; the next ReadWrite open creates a fresh segment. Removing a missing
// segment is not an error.
func Unlink(dir, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := os.Remove(SegmentPath(dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to unlink segment %s: %w", name, err)
	}
	return nil
}

func defaultDir() string {
	if info, err := os.Stat(devShm); err == nil && info.IsDir() {
		return devShm
	}
	return os.TempDir()
}

// classifyOpenError maps OS failures onto the segment error taxonomy.
func classifyOpenError(name string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %s: %v", ErrPermission, name, err)
	default:
		return fmt.Errorf("%w %s: %v", ErrOpen, name, err)
	}
}
