package environment

import (
	"errors"
	"testing"
)

// allStates lists every lifecycle state for exhaustive whitelist checks.
var allStates = []State{
	StateCreated,
	StateProvisioning, StateProvisionFailed, StateProvisioned,
	StateConfiguring, StateConfigureFailed, StateConfigured,
	StateReleasing, StateReleaseFailed, StateReleased,
	StateRunning, StateRunFailed,
	StateDestroying, StateDestroyFailed, StateDestroyed,
}

var allTransitions = []Transition{
	TransitionProvision, TransitionConfigure, TransitionRelease,
	TransitionRun, TransitionDestroy,
}

// TestCanTransitionWhitelist enumerates every (state, transition) pair and
// asserts the whitelist matches the lifecycle design exactly.
func TestCanTransitionWhitelist(t *testing.T) {
	allowed := map[Transition]map[State]bool{
		TransitionProvision: {
			StateCreated: true, StateProvisioning: true, StateProvisionFailed: true,
		},
		TransitionConfigure: {
			StateProvisioned: true, StateConfiguring: true, StateConfigureFailed: true,
		},
		TransitionRelease: {
			StateConfigured: true, StateReleasing: true, StateReleaseFailed: true,
		},
		TransitionRun: {
			StateReleased: true, StateRunning: true, StateRunFailed: true,
		},
		TransitionDestroy: {}, // everything but destroyed, filled below
	}
	for _, s := range allStates {
		if s != StateDestroyed {
			allowed[TransitionDestroy][s] = true
		}
	}

	for _, tr := range allTransitions {
		for _, s := range allStates {
			want := allowed[tr][s]
			if got := CanTransition(s, tr); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", s, tr, got, want)
			}
		}
	}
}

func TestCanTransitionUnknownTransition(t *testing.T) {
	if CanTransition(StateCreated, Transition("reboot")) {
		t.Error("unknown transition must never be legal")
	}
}

func TestBeginTransitionIllegal(t *testing.T) {
	env := mustNew(t, "demo")

	err := env.BeginTransition(TransitionRun)
	if err == nil {
		t.Fatal("expected error running from created state")
	}

	var illegal *IllegalTransitionError
	if !errors.As(err, &illegal) {
		t.Fatalf("expected *IllegalTransitionError, got %T", err)
	}
	if illegal.Current != StateCreated || illegal.Requested != TransitionRun {
		t.Errorf("error context = (%s, %s), want (created, run)", illegal.Current, illegal.Requested)
	}
	if env.State != StateCreated {
		t.Errorf("state changed to %s on illegal transition", env.State)
	}
	if len(env.History) != 1 {
		t.Errorf("history grew to %d entries on illegal transition", len(env.History))
	}
	if illegal.Troubleshoot() == "" {
		t.Error("expected troubleshooting text")
	}
}

func TestTransitionOutcomes(t *testing.T) {
	tests := []struct {
		name       string
		transition Transition
		from       State
		transient  State
		success    State
		failed     State
	}{
		{"provision", TransitionProvision, StateCreated, StateProvisioning, StateProvisioned, StateProvisionFailed},
		{"configure", TransitionConfigure, StateProvisioned, StateConfiguring, StateConfigured, StateConfigureFailed},
		{"release", TransitionRelease, StateConfigured, StateReleasing, StateReleased, StateReleaseFailed},
		{"run", TransitionRun, StateReleased, StateRunning, StateRunning, StateRunFailed},
		{"destroy", TransitionDestroy, StateRunning, StateDestroying, StateDestroyed, StateDestroyFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name+"/success", func(t *testing.T) {
			env := mustNew(t, "demo")
			env.State = tt.from
			if err := env.BeginTransition(tt.transition); err != nil {
				t.Fatalf("begin: %v", err)
			}
			if env.State != tt.transient {
				t.Errorf("transient state = %s, want %s", env.State, tt.transient)
			}
			env.CompleteTransition(tt.transition)
			if env.State != tt.success {
				t.Errorf("success state = %s, want %s", env.State, tt.success)
			}
		})
		t.Run(tt.name+"/failure", func(t *testing.T) {
			env := mustNew(t, "demo")
			env.State = tt.from
			if err := env.BeginTransition(tt.transition); err != nil {
				t.Fatalf("begin: %v", err)
			}
			env.FailTransition(tt.transition)
			if env.State != tt.failed {
				t.Errorf("failed state = %s, want %s", env.State, tt.failed)
			}
			// A failed attempt must be retryable.
			if !env.CanTransition(tt.transition) {
				t.Errorf("transition %s not retryable from %s", tt.transition, tt.failed)
			}
		})
	}
}

func TestRunTransitionHistoryNotDuplicated(t *testing.T) {
	env := mustNew(t, "demo")
	env.State = StateReleased

	if err := env.BeginTransition(TransitionRun); err != nil {
		t.Fatalf("begin: %v", err)
	}
	before := len(env.History)
	env.CompleteTransition(TransitionRun)
	if len(env.History) != before {
		t.Errorf("history grew by %d completing run, want 0", len(env.History)-before)
	}
}

func TestTerminalStateRejectsEverything(t *testing.T) {
	for _, tr := range allTransitions {
		if CanTransition(StateDestroyed, tr) {
			t.Errorf("transition %s legal from destroyed", tr)
		}
	}
	if !StateDestroyed.IsTerminal() {
		t.Error("destroyed must be terminal")
	}
}

func TestIsTransient(t *testing.T) {
	transient := map[State]bool{
		StateProvisioning: true, StateConfiguring: true,
		StateReleasing: true, StateDestroying: true,
	}
	for _, s := range allStates {
		if got := s.IsTransient(); got != transient[s] {
			t.Errorf("IsTransient(%s) = %v, want %v", s, got, transient[s])
		}
	}
}
