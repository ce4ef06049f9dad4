// Package environment defines the Environment aggregate and its lifecycle
// state machine. The package only validates and records state changes; it
// never calls provisioning or configuration collaborators itself.
package environment

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance for user inputs.
var validate = validator.New()

// SSHCredentials holds the settings used to reach the instance over SSH.
type SSHCredentials struct {
	// User is the remote login user.
	User string `json:"user" validate:"required"`

	// Port is the SSH port on the instance.
	Port int `json:"port" validate:"required,min=1,max=65535"`

	// PrivateKeyPath is the path to the private key used for authentication.
	PrivateKeyPath string `json:"private_key_path" validate:"required"`

	// PublicKeyPath is the path to the matching public key, injected into the
	// instance via cloud-init during provisioning.
	PublicKeyPath string `json:"public_key_path,omitempty"`
}

// TrackerConfig holds the service configuration rendered into the release
// bundle.
type TrackerConfig struct {
	// HTTPPort is the tracker's HTTP announce port.
	HTTPPort int `json:"http_port" validate:"required,min=1,max=65535"`

	// UDPPort is the tracker's UDP announce port.
	UDPPort int `json:"udp_port" validate:"required,min=1,max=65535"`

	// APIPort is the tracker's management API port, also probed by the run
	// transition's health check.
	APIPort int `json:"api_port" validate:"required,min=1,max=65535"`

	// APIToken authenticates management API calls.
	APIToken string `json:"api_token,omitempty"`
}

// UserInputs is the immutable configuration captured when the environment is
// created. It is never modified by later transitions.
type UserInputs struct {
	// Provider selects the provisioning backend profile.
	Provider string `json:"provider" validate:"required,oneof=lxd multipass hetzner"`

	// SSH holds the credentials used to reach the instance.
	SSH SSHCredentials `json:"ssh"`

	// Tracker holds the service configuration.
	Tracker TrackerConfig `json:"tracker"`
}

// RuntimeOutputs holds facts discovered while running transitions, as opposed
// to configuration supplied by the user.
type RuntimeOutputs struct {
	// InstanceAddress is the IP address or hostname of the instance, set by
	// the provision transition (or at creation time for registered instances).
	InstanceAddress string `json:"instance_address,omitempty"`

	// Managed is true when the instance was created by this tool and false
	// when a pre-existing instance was registered into the environment.
	// Destroy only invokes the provisioning backend for managed instances.
	Managed bool `json:"managed"`
}

// StateChange is one entry in the append-only history of an environment.
type StateChange struct {
	State     State     `json:"state"`
	EnteredAt time.Time `json:"entered_at"`
}

// Environment is the aggregate root for one deployment. At rest it is owned
// by the repository; during a transition it is owned by exactly one command
// handler, which the per-environment file lock enforces across processes.
type Environment struct {
	// Name uniquely identifies the environment within one data directory.
	Name string `json:"name" validate:"required,min=1,max=63,hostname_rfc1123"`

	// State is the current lifecycle state.
	State State `json:"state"`

	// Inputs is the immutable configuration from creation.
	Inputs UserInputs `json:"user_inputs"`

	// Outputs holds facts discovered at runtime.
	Outputs RuntimeOutputs `json:"runtime_outputs"`

	// CreatedAt is when the environment record was created.
	CreatedAt time.Time `json:"created_at"`

	// History records every state the environment has entered, in order.
	History []StateChange `json:"history"`
}

// New creates an environment in the created state after validating the name
// and inputs. Environments are only ever created explicitly; loading a
// missing record is an error, never a silent default.
func New(name string, inputs UserInputs) (*Environment, error) {
	env := &Environment{
		Name:      name,
		State:     StateCreated,
		Inputs:    inputs,
		CreatedAt: time.Now().UTC(),
	}
	if err := validate.Struct(env); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	env.enterState(StateCreated)
	return env, nil
}

// Register creates an environment for a pre-existing instance that was not
// provisioned by this tool. The record starts in the provisioned state with
// Managed=false so destroy will not invoke the provisioning backend on it.
func Register(name string, inputs UserInputs, instanceAddress string) (*Environment, error) {
	if instanceAddress == "" {
		return nil, fmt.Errorf("invalid environment: instance address is required to register a pre-existing instance")
	}
	env, err := New(name, inputs)
	if err != nil {
		return nil, err
	}
	env.Outputs.InstanceAddress = instanceAddress
	env.Outputs.Managed = false
	env.enterState(StateProvisioned)
	return env, nil
}

// CanTransition reports whether the transition is legal from the current state.
func (e *Environment) CanTransition(t Transition) bool {
	return CanTransition(e.State, t)
}

// BeginTransition moves the environment into the transition's transient
// state. Callers persist the environment immediately afterwards, before any
// step runs, so a crash mid-transition leaves durable evidence of the
// attempt. Returns *IllegalTransitionError without any side effect when the
// pair is not whitelisted.
func (e *Environment) BeginTransition(t Transition) error {
	if !e.CanTransition(t) {
		return &IllegalTransitionError{
			Environment: e.Name,
			Current:     e.State,
			Requested:   t,
		}
	}
	e.enterState(transitionRules[t].Transient)
	return nil
}

// CompleteTransition moves the environment into the transition's success
// state. It must only be called after BeginTransition for the same
// transition; the state machine does not re-check the whitelist here. For
// transitions whose transient and success states coincide (run) this is a
// no-op so the history does not record the same state twice.
func (e *Environment) CompleteTransition(t Transition) {
	if next := transitionRules[t].Success; e.State != next {
		e.enterState(next)
	}
}

// FailTransition moves the environment into the transition's failed state.
// Failed states are re-attemptable: every transition whitelists its own
// failed state as a legal source.
func (e *Environment) FailTransition(t Transition) {
	e.enterState(transitionRules[t].Failed)
}

// enterState records the state change in the append-only history. Entering
// the state the environment is already in (run re-run, register) is still
// recorded so the history reflects every attempt.
func (e *Environment) enterState(s State) {
	e.State = s
	e.History = append(e.History, StateChange{State: s, EnteredAt: time.Now().UTC()})
}
