package journal

import (
	"context"
	"errors"
	"testing"

	"github.com/torrust/torrust-tracker-deployer/pkg/environment"
)

func setupJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), ""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestTransitionLifecycle(t *testing.T) {
	j := setupJournal(t)
	ctx := context.Background()

	id, err := j.TransitionStarted(ctx, "demo", environment.TransitionProvision, environment.StateCreated)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if id == "" {
		t.Fatal("empty transition id")
	}

	if err := j.StepEvent(ctx, id, 1, "render templates", StatusStarted, ""); err != nil {
		t.Fatalf("step event: %v", err)
	}
	if err := j.StepEvent(ctx, id, 1, "render templates", StatusCompleted, ""); err != nil {
		t.Fatalf("step event: %v", err)
	}
	if err := j.TransitionCompleted(ctx, id, environment.StateProvisioned); err != nil {
		t.Fatalf("complete: %v", err)
	}

	records, err := j.Transitions(ctx, "demo")
	if err != nil {
		t.Fatalf("transitions: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d transition records, want 1", len(records))
	}
	rec := records[0]
	if rec.Status != StatusCompleted || rec.ToState != "provisioned" || rec.FromState != "created" {
		t.Errorf("record = %+v", rec)
	}
	if rec.CompletedAt == nil {
		t.Error("completed_at not set")
	}

	events, err := j.StepEvents(ctx, id)
	if err != nil {
		t.Fatalf("step events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d step events, want 2", len(events))
	}
	if events[0].Status != StatusStarted || events[1].Status != StatusCompleted {
		t.Errorf("events = %+v", events)
	}
}

func TestTransitionFailed(t *testing.T) {
	j := setupJournal(t)
	ctx := context.Background()

	id, err := j.TransitionStarted(ctx, "demo", environment.TransitionProvision, environment.StateCreated)
	if err != nil {
		t.Fatal(err)
	}
	cause := errors.New("step 3/5 (apply) failed: quota exceeded")
	if err := j.TransitionFailed(ctx, id, environment.StateProvisionFailed, cause); err != nil {
		t.Fatalf("fail: %v", err)
	}

	records, err := j.Transitions(ctx, "demo")
	if err != nil {
		t.Fatal(err)
	}
	if records[0].Status != StatusFailed {
		t.Errorf("status = %q", records[0].Status)
	}
	if records[0].Error != cause.Error() {
		t.Errorf("error = %q", records[0].Error)
	}
	if records[0].ToState != "provision_failed" {
		t.Errorf("to_state = %q", records[0].ToState)
	}
}

func TestTransitionsOrderedMostRecentFirst(t *testing.T) {
	j := setupJournal(t)
	ctx := context.Background()

	for _, tr := range []environment.Transition{
		environment.TransitionProvision,
		environment.TransitionConfigure,
	} {
		id, err := j.TransitionStarted(ctx, "demo", tr, environment.StateCreated)
		if err != nil {
			t.Fatal(err)
		}
		if err := j.TransitionCompleted(ctx, id, environment.StateProvisioned); err != nil {
			t.Fatal(err)
		}
	}

	records, err := j.Transitions(ctx, "demo")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records", len(records))
	}
	if records[0].StartedAt.Before(records[1].StartedAt) {
		t.Error("records not ordered most recent first")
	}
}

func TestTransitionsScopedToEnvironment(t *testing.T) {
	j := setupJournal(t)
	ctx := context.Background()

	if _, err := j.TransitionStarted(ctx, "demo", environment.TransitionProvision, environment.StateCreated); err != nil {
		t.Fatal(err)
	}
	if _, err := j.TransitionStarted(ctx, "other", environment.TransitionProvision, environment.StateCreated); err != nil {
		t.Fatal(err)
	}

	records, err := j.Transitions(ctx, "demo")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Environment != "demo" {
		t.Errorf("records = %+v", records)
	}
}

// TestStepEventWithoutTransition covers the degraded path where recording the
// transition start failed and steps have no id to attach to.
func TestStepEventWithoutTransition(t *testing.T) {
	j := setupJournal(t)
	if err := j.StepEvent(context.Background(), "", 1, "render", StatusStarted, ""); err != nil {
		t.Errorf("step event with empty id must be a no-op, got %v", err)
	}
}
