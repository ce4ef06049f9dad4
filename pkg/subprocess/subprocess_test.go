package subprocess

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRunCapturesOutput(t *testing.T) {
	stdout, stderr, err := NewRunner().Run(context.Background(), t.TempDir(), "sh", "-c", "echo out; echo err >&2")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stdout != "out" {
		t.Errorf("stdout = %q, want out", stdout)
	}
	if stderr != "err" {
		t.Errorf("stderr = %q, want err", stderr)
	}
}

func TestRunNonZeroExitIsExitError(t *testing.T) {
	_, _, err := NewRunner().Run(context.Background(), t.TempDir(), "sh", "-c", "echo broken >&2; exit 3")
	if err == nil {
		t.Fatal("expected an error")
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("error = %T, want *ExitError", err)
	}
	if exitErr.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", exitErr.ExitCode)
	}
	if !strings.Contains(exitErr.Stderr, "broken") {
		t.Errorf("stderr not captured: %q", exitErr.Stderr)
	}
	if !strings.Contains(exitErr.Error(), "exit") {
		t.Errorf("message = %q", exitErr.Error())
	}
}

func TestRunMissingBinary(t *testing.T) {
	_, _, err := NewRunner().Run(context.Background(), t.TempDir(), "definitely-not-a-binary")
	if err == nil {
		t.Fatal("expected an error for a missing binary")
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		t.Errorf("missing binary should not be an ExitError, got %v", exitErr)
	}
}

func TestRunHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := NewRunner().Run(ctx, t.TempDir(), "sh", "-c", "sleep 10")
	if err == nil {
		t.Fatal("expected an error for a cancelled context")
	}
}
