// Package engine executes ordered step sequences that effect one lifecycle
// transition on an environment. The engine reports graduated progress through
// an Observer but contains no verbosity policy and imports no output
// formatting code; consumers decide what to surface.
package engine

import (
	"context"

	"github.com/torrust/torrust-tracker-deployer/pkg/environment"
)

// Reporter is the subset of Observer available to steps for fine-grained
// progress. Step boundaries are reported by the engine itself.
type Reporter interface {
	// Detail reports progress within a step (e.g. a polling attempt).
	// Consumers typically surface it only at raised verbosity.
	Detail(text string)

	// Debug reports diagnostic output (e.g. captured subprocess output).
	Debug(text string)
}

// Observer receives progress events while a step sequence executes. All
// methods are invoked synchronously and unconditionally.
type Observer interface {
	Reporter

	// StepStarted is reported before a step runs. index is 1-based.
	StepStarted(index, total int, description string)

	// StepCompleted is reported after a step returns successfully.
	StepCompleted(index int, description string)
}

// NopObserver discards all progress events.
type NopObserver struct{}

func (NopObserver) StepStarted(int, int, string) {}
func (NopObserver) StepCompleted(int, string)    {}
func (NopObserver) Detail(string)                {}
func (NopObserver) Debug(string)                 {}

// Step is one unit of externally visible work within a transition. Steps
// must be idempotent: on failure the whole transition is re-run, so a step
// may see external effects its previous attempt already applied.
//
// Steps communicate through the environment's runtime outputs: a step that
// discovers a fact (such as the instance address) records it there for later
// steps to consume.
type Step interface {
	// Description is a short human-readable summary of the work.
	Description() string

	// Run performs the work against the given environment.
	Run(ctx context.Context, env *environment.Environment, report Reporter) error
}

// StepFunc adapts a function to the Step interface.
type StepFunc struct {
	Desc string
	Fn   func(ctx context.Context, env *environment.Environment, report Reporter) error
}

func (s StepFunc) Description() string { return s.Desc }

func (s StepFunc) Run(ctx context.Context, env *environment.Environment, report Reporter) error {
	return s.Fn(ctx, env, report)
}
