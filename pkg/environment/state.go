package environment

import "fmt"

// State represents a lifecycle state of an environment.
type State string

const (
	// StateCreated is the initial state after an environment record is created.
	StateCreated State = "created"

	// StateProvisioning indicates a provision transition is in progress.
	StateProvisioning State = "provisioning"

	// StateProvisionFailed indicates the last provision attempt failed.
	StateProvisionFailed State = "provision_failed"

	// StateProvisioned indicates the instance exists and is reachable.
	StateProvisioned State = "provisioned"

	// StateConfiguring indicates a configure transition is in progress.
	StateConfiguring State = "configuring"

	// StateConfigureFailed indicates the last configure attempt failed.
	StateConfigureFailed State = "configure_failed"

	// StateConfigured indicates the instance has its runtime dependencies installed.
	StateConfigured State = "configured"

	// StateReleasing indicates a release transition is in progress.
	StateReleasing State = "releasing"

	// StateReleaseFailed indicates the last release attempt failed.
	StateReleaseFailed State = "release_failed"

	// StateReleased indicates the application artifacts are deployed to the instance.
	StateReleased State = "released"

	// StateRunning indicates the application services are started.
	StateRunning State = "running"

	// StateRunFailed indicates the last run attempt failed.
	StateRunFailed State = "run_failed"

	// StateDestroying indicates a destroy transition is in progress.
	StateDestroying State = "destroying"

	// StateDestroyFailed indicates the last destroy attempt failed.
	StateDestroyFailed State = "destroy_failed"

	// StateDestroyed is the terminal state. The record survives until an
	// explicit purge removes it.
	StateDestroyed State = "destroyed"
)

// IsTerminal returns true for states from which no further transition is legal.
func (s State) IsTerminal() bool {
	return s == StateDestroyed
}

// IsTransient returns true for "-ing" states that are persisted before a
// transition's steps execute. Finding one of these at rest means a prior
// invocation crashed or was killed mid-transition.
func (s State) IsTransient() bool {
	switch s {
	case StateProvisioning, StateConfiguring, StateReleasing, StateDestroying:
		return true
	}
	return false
}

// Transition identifies one lifecycle transition an environment can undergo.
type Transition string

const (
	TransitionProvision Transition = "provision"
	TransitionConfigure Transition = "configure"
	TransitionRelease   Transition = "release"
	TransitionRun       Transition = "run"
	TransitionDestroy   Transition = "destroy"
)

// rule describes the states one transition moves between. Transient is
// persisted before any step runs; Success and Failed are the durable
// outcomes. For the run transition Transient and Success coincide: there is
// no separate "run starting" state.
type rule struct {
	From      []State
	Transient State
	Success   State
	Failed    State
}

// transitionRules is the whitelist of legal (current state, transition)
// pairs. Transient and failed source states are included so that a crashed
// or failed attempt can be retried by re-running the same transition.
var transitionRules = map[Transition]rule{
	TransitionProvision: {
		From:      []State{StateCreated, StateProvisioning, StateProvisionFailed},
		Transient: StateProvisioning,
		Success:   StateProvisioned,
		Failed:    StateProvisionFailed,
	},
	TransitionConfigure: {
		From:      []State{StateProvisioned, StateConfiguring, StateConfigureFailed},
		Transient: StateConfiguring,
		Success:   StateConfigured,
		Failed:    StateConfigureFailed,
	},
	TransitionRelease: {
		From:      []State{StateConfigured, StateReleasing, StateReleaseFailed},
		Transient: StateReleasing,
		Success:   StateReleased,
		Failed:    StateReleaseFailed,
	},
	TransitionRun: {
		From:      []State{StateReleased, StateRunning, StateRunFailed},
		Transient: StateRunning,
		Success:   StateRunning,
		Failed:    StateRunFailed,
	},
	TransitionDestroy: {
		From: []State{
			StateCreated,
			StateProvisioning, StateProvisionFailed, StateProvisioned,
			StateConfiguring, StateConfigureFailed, StateConfigured,
			StateReleasing, StateReleaseFailed, StateReleased,
			StateRunning, StateRunFailed,
			StateDestroying, StateDestroyFailed,
		},
		Transient: StateDestroying,
		Success:   StateDestroyed,
		Failed:    StateDestroyFailed,
	},
}

// CanTransition reports whether the given transition is legal from the
// current state. This is the single place the whitelist is consulted.
func CanTransition(current State, t Transition) bool {
	r, ok := transitionRules[t]
	if !ok {
		return false
	}
	for _, s := range r.From {
		if s == current {
			return true
		}
	}
	return false
}

// IllegalTransitionError is returned when a transition is requested from a
// state outside its whitelist. It is always detected before any external
// side effect.
type IllegalTransitionError struct {
	Environment string
	Current     State
	Requested   Transition
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition: cannot %s environment %q from state %q",
		e.Requested, e.Environment, e.Current)
}

// Troubleshoot returns expanded guidance for the error.
func (e *IllegalTransitionError) Troubleshoot() string {
	r, ok := transitionRules[e.Requested]
	if !ok {
		return fmt.Sprintf("%q is not a known transition", e.Requested)
	}
	return fmt.Sprintf("the %s transition is only legal from states %v; run `deployer show %s` to inspect the current state",
		e.Requested, r.From, e.Environment)
}
