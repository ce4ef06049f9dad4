package readiness

import (
	"context"
	"errors"
	"testing"
	"time"
)

// recoverableErr is a probe failure that may clear up on retry.
type recoverableErr struct{ msg string }

func (e *recoverableErr) Error() string   { return e.msg }
func (e *recoverableErr) Temporary() bool { return true }

// recorder collects detail/debug reports.
type recorder struct {
	details []string
	debugs  []string
}

func (r *recorder) Detail(text string) { r.details = append(r.details, text) }
func (r *recorder) Debug(text string)  { r.debugs = append(r.debugs, text) }

func TestWaitReadyImmediately(t *testing.T) {
	rec := &recorder{}
	calls := 0
	err := Wait(context.Background(), func(context.Context) error {
		calls++
		return nil
	}, 5, time.Millisecond, rec)

	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if calls != 1 {
		t.Errorf("probe called %d times, want 1", calls)
	}
	if len(rec.details) != 1 || rec.details[0] != "attempt 1/5" {
		t.Errorf("details = %v, want single \"attempt 1/5\"", rec.details)
	}
}

func TestWaitEventuallyReady(t *testing.T) {
	calls := 0
	err := Wait(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return &recoverableErr{msg: "connection refused"}
		}
		return nil
	}, 5, time.Millisecond, &recorder{})

	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if calls != 3 {
		t.Errorf("probe called %d times, want 3", calls)
	}
}

// TestWaitExhaustsAttempts checks the timeout error and that exactly one
// detail report is emitted per attempt.
func TestWaitExhaustsAttempts(t *testing.T) {
	rec := &recorder{}
	cause := &recoverableErr{msg: "connection refused"}
	calls := 0

	err := Wait(context.Background(), func(context.Context) error {
		calls++
		return cause
	}, 3, time.Millisecond, rec)

	var timeout *TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected *TimeoutError, got %T: %v", err, err)
	}
	if timeout.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", timeout.Attempts)
	}
	if !errors.Is(err, cause) {
		t.Error("last probe error lost from chain")
	}
	if calls != 3 {
		t.Errorf("probe called %d times, want 3", calls)
	}

	want := []string{"attempt 1/3", "attempt 2/3", "attempt 3/3"}
	if len(rec.details) != len(want) {
		t.Fatalf("details = %v, want %v", rec.details, want)
	}
	for i := range want {
		if rec.details[i] != want[i] {
			t.Errorf("details[%d] = %q, want %q", i, rec.details[i], want[i])
		}
	}
	if timeout.Troubleshoot() == "" {
		t.Error("expected troubleshooting text")
	}
}

// TestWaitFailsFastOnHardError verifies non-recoverable probe errors are not
// retried.
func TestWaitFailsFastOnHardError(t *testing.T) {
	hard := errors.New("permission denied (publickey)")
	calls := 0

	err := Wait(context.Background(), func(context.Context) error {
		calls++
		return hard
	}, 5, time.Millisecond, &recorder{})

	if !errors.Is(err, hard) {
		t.Fatalf("expected hard error in chain, got %v", err)
	}
	var timeout *TimeoutError
	if errors.As(err, &timeout) {
		t.Error("hard error must not be reported as a readiness timeout")
	}
	if calls != 1 {
		t.Errorf("probe called %d times, want 1", calls)
	}
}

func TestWaitHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Wait(ctx, func(context.Context) error {
		return &recoverableErr{msg: "not yet"}
	}, 10, time.Hour, &recorder{})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRecoverable(t *testing.T) {
	if !Recoverable(&recoverableErr{msg: "x"}) {
		t.Error("temporary error not recoverable")
	}
	if Recoverable(errors.New("plain")) {
		t.Error("plain error recoverable")
	}
	// Wrapped temporary errors are still recoverable.
	wrapped := &recoverableErr{msg: "inner"}
	if !Recoverable(errWrap{wrapped}) {
		t.Error("wrapped temporary error not recoverable")
	}
}

type errWrap struct{ err error }

func (e errWrap) Error() string { return "wrap: " + e.err.Error() }
func (e errWrap) Unwrap() error { return e.err }
