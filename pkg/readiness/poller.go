// Package readiness implements bounded-retry waiting for asynchronous
// external conditions, such as a freshly provisioned instance's SSH daemon
// coming up or cloud-init finishing.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Probe checks the external condition once. A nil return means ready. Errors
// whose chain exposes Temporary() == true (connection refused, host not yet
// resolvable) are recoverable and retried; any other error fails fast, since
// it usually indicates misconfiguration rather than "not yet".
type Probe func(ctx context.Context) error

// Reporter receives per-attempt progress. It matches the step engine's detail
// level so attempts are not shown at default verbosity.
type Reporter interface {
	Detail(text string)
	Debug(text string)
}

// TimeoutError is returned when every attempt was recoverable-but-failing.
// It suggests retrying later, unlike a hard probe error.
type TimeoutError struct {
	Attempts int
	Interval time.Duration
	LastErr  error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("condition not ready after %d attempts (%s apart): %v",
		e.Attempts, e.Interval, e.LastErr)
}

func (e *TimeoutError) Unwrap() error { return e.LastErr }

// Troubleshoot returns expanded guidance for the error.
func (e *TimeoutError) Troubleshoot() string {
	return "the instance may still be booting; re-run the command to poll again, or raise verbosity to see individual attempts"
}

// temporary mirrors the convention of net.Error and the SSH transport's
// error type.
type temporary interface {
	Temporary() bool
}

// Recoverable reports whether err may succeed on retry.
func Recoverable(err error) bool {
	var t temporary
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return false
}

// Wait polls probe until it succeeds, fails hard, or maxAttempts recoverable
// failures have elapsed with interval between them. Each attempt is reported
// at detail level as "attempt i/n". Context cancellation aborts the wait.
func Wait(ctx context.Context, probe Probe, maxAttempts int, interval time.Duration, report Reporter) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		report.Detail(fmt.Sprintf("attempt %d/%d", attempt, maxAttempts))

		err := probe(ctx)
		if err == nil {
			return nil
		}
		if !Recoverable(err) {
			return fmt.Errorf("probe failed: %w", err)
		}
		report.Debug(fmt.Sprintf("attempt %d/%d failed: %v", attempt, maxAttempts, err))
		lastErr = err

		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}

	return &TimeoutError{Attempts: maxAttempts, Interval: interval, LastErr: lastErr}
}
