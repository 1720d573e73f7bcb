package writer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/shmbridge/internal/envelope"
	"github.com/GriffinCanCode/shmbridge/internal/shm"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config configures a Writer
type Config struct {
	Kind     envelope.Kind
	Interval time.Duration
	// Count stops the writer after that many writes; zero runs until cancelled
	Count int
}

// Writer periodically stores a fresh record describing this process
type Writer struct {
	protocol *envelope.Protocol
	cfg      Config
	limiter  *rate.Limiter
	logger   *zap.Logger

	id       string
	hostname string
	pid      int
	seq      atomic.Uint64
	cpu      cpuSampler
}

// New creates a writer. The writer ID is a fresh UUID.
func New(protocol *envelope.Protocol, cfg Config, logger *zap.Logger) (*Writer, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("invalid interval %s", cfg.Interval)
	}
	if _, err := envelope.ParseKind(cfg.Kind.String()); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	return &Writer{
		protocol: protocol,
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Every(cfg.Interval), 1),
		logger:   logger,
		id:       uuid.NewString(),
		hostname: hostname,
		pid:      os.Getpid(),
	}, nil
}

// ID returns the writer ID recorded in envelope metadata
func (w *Writer) ID() string {
	return w.id
}

// Sequence returns the number of writes attempted so far
func (w *Writer) Sequence() uint64 {
	return w.seq.Load()
}

// Run writes one record per interval until ctx is done or Count writes were
// made. Failed writes are logged and skipped, except for failures that no
// later write can fix (read-only channel, record too large).
func (w *Writer) Run(ctx context.Context) error {
	w.logger.Info("Writer started",
		zap.String("writer_id", w.id),
		zap.Stringer("kind", w.cfg.Kind),
		zap.Duration("interval", w.cfg.Interval))

	for w.cfg.Count == 0 || w.seq.Load() < uint64(w.cfg.Count) {
		if err := w.limiter.Wait(ctx); err != nil {
			break
		}

		err := w.WriteOnce(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, shm.ErrReadOnlyMode), errors.Is(err, shm.ErrTooLarge):
			return err
		default:
			w.logger.Warn("Write failed", zap.Uint64("sequence", w.seq.Load()), zap.Error(err))
		}
	}

	w.logger.Info("Writer stopped", zap.Uint64("writes", w.seq.Load()))
	return nil
}

// WriteOnce samples and stores a single record
func (w *Writer) WriteOnce(ctx context.Context) error {
	seq := w.seq.Add(1)
	rec := w.Sample(seq)

	err := w.protocol.WriteRecord(ctx, rec, map[string]any{
		"writer_id": w.id,
		"hostname":  w.hostname,
		"pid":       w.pid,
		"sequence":  seq,
	})
	if err != nil {
		return err
	}

	w.logger.Debug("Record written", zap.Uint64("sequence", seq), zap.Stringer("kind", rec.Kind()))
	return nil
}

// Sample builds the record for the configured kind
func (w *Writer) Sample(seq uint64) envelope.Record {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	switch w.cfg.Kind {
	case envelope.KindMessage:
		return envelope.Message{
			Content: fmt.Sprintf("heartbeat %d from %s", seq, w.hostname),
			Sender:  "writer-" + w.id[:8],
		}
	case envelope.KindConfiguration:
		return envelope.Configuration{
			Version: fmt.Sprintf("%d", seq),
			Settings: map[string]any{
				"interval_ms": w.cfg.Interval.Milliseconds(),
				"kind":        w.cfg.Kind.String(),
				"go_version":  runtime.Version(),
			},
		}
	case envelope.KindMetrics:
		return envelope.Metrics{
			Name:  "heap_alloc",
			Value: float64(mem.HeapAlloc),
			Unit:  "bytes",
			Tags: map[string]string{
				"host":       w.hostname,
				"goroutines": fmt.Sprintf("%d", runtime.NumGoroutine()),
			},
		}
	default:
		cpu := w.cpu.percent()
		status := "healthy"
		if cpu > 80 {
			status = "busy"
		}
		return envelope.SystemStatus{
			Status:      status,
			CPUUsage:    cpu,
			MemoryUsage: mem.Sys,
		}
	}
}

// cpuSampler turns cumulative process CPU time into a percentage of the wall
// time elapsed since the previous sample.
type cpuSampler struct {
	lastCPU  time.Duration
	lastWall time.Time
}

func (s *cpuSampler) percent() float64 {
	cpu, ok := processCPUTime()
	if !ok {
		return 0
	}
	now := time.Now()
	defer func() {
		s.lastCPU = cpu
		s.lastWall = now
	}()

	if s.lastWall.IsZero() {
		return 0
	}
	wall := now.Sub(s.lastWall)
	if wall <= 0 {
		return 0
	}
	return float64(cpu-s.lastCPU) / float64(wall) * 100
}
