package channel

import (
	"fmt"

	"github.com/GriffinCanCode/shmbridge/internal/shm"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

// Config describes which segment a Channel binds to and how.
type Config struct {
	Name     string
	Mode     shm.Mode
	Capacity int
	Dir      string
	// CrossProcessLock wraps every access in an advisory flock on the
	// segment file. Off by default: only processes that also enable it
	// are excluded.
	CrossProcessLock bool
}

// Info describes the channel's segment.
type Info struct {
	Name        string `json:"name"`
	Mode        string `json:"mode"`
	MaxSize     int    `json:"max_size"`
	Capacity    int    `json:"capacity"`
	HasData     bool   `json:"has_data"`
	ContentType string `json:"content_type,omitempty"`
}

// Channel is a one-slot mailbox over a named segment. Each operation opens
// the segment, acts on the frame and releases the mapping before returning.
//
// Within a process, callers that need their operations serialised must
// coordinate themselves (see resilience.Coordinator). Across processes
// nothing is ordered unless every participant enables CrossProcessLock.
type Channel struct {
	cfg    Config
	opts   shm.Options
	logger *zap.Logger
}

// Open binds a channel to cfg.Name. A read-only channel fails with
// shm.ErrNotFound when no segment exists; a read-write channel creates it.
func Open(cfg Config, logger *zap.Logger) (*Channel, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Capacity == 0 {
		cfg.Capacity = shm.DefaultCapacity
	}

	c := &Channel{
		cfg:    cfg,
		opts:   shm.Options{Capacity: cfg.Capacity, Dir: cfg.Dir},
		logger: logger.With(zap.String("segment", cfg.Name), zap.Stringer("mode", cfg.Mode)),
	}

	if err := shm.With(cfg.Name, cfg.Mode, c.opts, func(seg *shm.Segment) error {
		c.logger.Debug("Segment opened",
			zap.String("path", seg.Path()),
			zap.Int("capacity", seg.Capacity()))
		return nil
	}); err != nil {
		return nil, err
	}

	return c, nil
}

// Name returns the segment name
func (c *Channel) Name() string { return c.cfg.Name }

// Mode returns the channel mode
func (c *Channel) Mode() shm.Mode { return c.cfg.Mode }

// Write replaces the stored payload. The previous frame is left untouched
// when the payload does not fit.
func (c *Channel) Write(payload []byte) error {
	if c.cfg.Mode != shm.ReadWrite {
		return shm.ErrReadOnlyMode
	}

	return c.with(c.cfg.Mode, true, func(seg *shm.Segment) error {
		frame, err := shm.EncodeFrame(payload, seg.Capacity())
		if err != nil {
			return err
		}
		if err := seg.WriteAt(0, frame); err != nil {
			return err
		}
		c.logger.Debug("Frame written", zap.Int("bytes", len(payload)))
		return nil
	})
}

// Read returns a copy of the stored payload. shm.ErrEmpty means nothing is
// stored; shm.ErrCorrupt means the length field cannot be trusted.
func (c *Channel) Read() ([]byte, error) {
	return c.readFrame(c.cfg.Mode)
}

// Peek is Read through a read-only mapping. It never creates a segment that
// has been removed, so observers can poll it on a read-write channel.
func (c *Channel) Peek() ([]byte, error) {
	return c.readFrame(shm.ReadOnly)
}

func (c *Channel) readFrame(mode shm.Mode) ([]byte, error) {
	var payload []byte
	err := c.with(mode, false, func(seg *shm.Segment) error {
		header, err := seg.ReadAt(0, shm.FrameHeaderSize)
		if err != nil {
			return err
		}
		n, err := shm.FrameLength(header, seg.Capacity())
		if err != nil {
			return err
		}
		payload, err = seg.ReadAt(shm.FrameHeaderSize, n)
		return err
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// Clear zeroes the length field only; payload bytes stay until overwritten.
func (c *Channel) Clear() error {
	if c.cfg.Mode != shm.ReadWrite {
		return shm.ErrReadOnlyMode
	}

	return c.with(c.cfg.Mode, true, func(seg *shm.Segment) error {
		if err := seg.WriteAt(0, shm.EmptyHeader()); err != nil {
			return err
		}
		c.logger.Debug("Frame cleared")
		return nil
	})
}

// Info reports the segment's limits and whether a readable payload is stored.
// It never fails: a missing segment reports zero capacity and no data.
func (c *Channel) Info() Info {
	info := Info{
		Name:    c.cfg.Name,
		Mode:    c.cfg.Mode.String(),
		MaxSize: shm.MaxPayloadSize(c.cfg.Capacity),
	}

	err := shm.With(c.cfg.Name, shm.ReadOnly, c.opts, func(seg *shm.Segment) error {
		info.Capacity = seg.Capacity()
		info.MaxSize = shm.MaxPayloadSize(seg.Capacity())
		return nil
	})
	if err != nil {
		c.logger.Debug("Info probe failed", zap.Error(err))
		return info
	}

	payload, err := c.Peek()
	info.HasData = err == nil
	if info.HasData {
		info.ContentType = mimetype.Detect(payload).String()
	}
	return info
}

// with opens the segment for one operation, holding the advisory lock when
// configured, and releases everything on return.
func (c *Channel) with(mode shm.Mode, exclusive bool, fn func(*shm.Segment) error) error {
	return shm.With(c.cfg.Name, mode, c.opts, func(seg *shm.Segment) error {
		if !c.cfg.CrossProcessLock {
			return fn(seg)
		}
		if err := seg.Lock(exclusive); err != nil {
			return fmt.Errorf("lock segment %s: %w", c.cfg.Name, err)
		}
		defer seg.Unlock()
		return fn(seg)
	})
}
