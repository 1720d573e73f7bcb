package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrTimeout is returned when the mutual-exclusion token is not acquired in time.
	ErrTimeout = errors.New("timed out waiting for channel access")
	// ErrRetriesExhausted is matched by every *RetriesExhaustedError.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// RetriesExhaustedError is returned after every attempt of an operation failed.
type RetriesExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() []error {
	return []error{ErrRetriesExhausted, e.Err}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. The Coordinator returns the
// wrapped error immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// RetrySettings configures the Coordinator
type RetrySettings struct {
	// MaxRetries is the total number of attempts, including the first
	MaxRetries int
	// RetryDelay is the fixed pause between attempts
	RetryDelay time.Duration
	// OperationTimeout bounds the wait for the mutual-exclusion token
	OperationTimeout time.Duration
	// OnRetry is called for every swallowed non-final failure
	OnRetry func(op string, attempt int, err error)
}

// DefaultRetrySettings returns 3 attempts, 100ms apart, 30s token wait.
func DefaultRetrySettings() RetrySettings {
	return RetrySettings{
		MaxRetries:       3,
		RetryDelay:       100 * time.Millisecond,
		OperationTimeout: 30 * time.Second,
	}
}

// Coordinator serialises operations within one process and retries
// transient failures. The token is process-local: another process using the
// same segment is not excluded.
type Coordinator struct {
	settings RetrySettings
	token    *semaphore.Weighted
	logger   *zap.Logger
}

// NewCoordinator creates a coordinator with its own mutual-exclusion token
func NewCoordinator(settings RetrySettings, logger *zap.Logger) *Coordinator {
	defaults := DefaultRetrySettings()
	if settings.MaxRetries <= 0 {
		settings.MaxRetries = defaults.MaxRetries
	}
	if settings.RetryDelay < 0 {
		settings.RetryDelay = 0
	}
	if settings.OperationTimeout <= 0 {
		settings.OperationTimeout = defaults.OperationTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Coordinator{
		settings: settings,
		token:    semaphore.NewWeighted(1),
		logger:   logger,
	}
}

// Settings returns the effective settings
func (c *Coordinator) Settings() RetrySettings {
	return c.settings
}

// Do acquires the token and runs fn up to MaxRetries times, sleeping
// RetryDelay between attempts. Errors wrapped with Permanent end the loop at
// once and are returned unwrapped. When every attempt fails the result is a
// *RetriesExhaustedError.
func (c *Coordinator) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	acquireCtx, cancel := context.WithTimeout(ctx, c.settings.OperationTimeout)
	defer cancel()

	if err := c.token.Acquire(acquireCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s after %s", ErrTimeout, op, c.settings.OperationTimeout)
	}
	defer c.token.Release(1)

	var lastErr error
	for attempt := 1; attempt <= c.settings.MaxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err

		if attempt == c.settings.MaxRetries {
			break
		}

		c.logger.Warn("Operation failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", c.settings.MaxRetries),
			zap.Error(err))
		if c.settings.OnRetry != nil {
			c.settings.OnRetry(op, attempt, err)
		}

		if err := sleep(ctx, c.settings.RetryDelay); err != nil {
			return err
		}
	}

	c.logger.Error("Operation retries exhausted",
		zap.String("op", op),
		zap.Int("attempts", c.settings.MaxRetries),
		zap.Error(lastErr))

	return &RetriesExhaustedError{Op: op, Attempts: c.settings.MaxRetries, Err: lastErr}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
