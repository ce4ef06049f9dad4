package engine

import (
	"context"
	"fmt"

	"github.com/torrust/torrust-tracker-deployer/pkg/environment"
	"github.com/torrust/torrust-tracker-deployer/pkg/telemetry"
)

// StepError wraps the first failing step's error together with the step's
// identity. Steps after the failing one never run.
type StepError struct {
	// Index is the 1-based position of the failing step.
	Index int

	// Total is the number of steps in the sequence.
	Total int

	// Description is the failing step's description.
	Description string

	// Err is the underlying failure.
	Err error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d/%d (%s) failed: %v", e.Index, e.Total, e.Description, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// RunSteps executes the sequence in order, reporting step boundaries to the
// observer. It stops at the first failure and returns a *StepError
// identifying the failing step.
func RunSteps(ctx context.Context, steps []Step, env *environment.Environment, obs Observer) error {
	total := len(steps)
	for i, step := range steps {
		index := i + 1
		obs.StepStarted(index, total, step.Description())
		if err := step.Run(ctx, env, obs); err != nil {
			telemetry.ObserveStep("failed")
			return &StepError{
				Index:       index,
				Total:       total,
				Description: step.Description(),
				Err:         err,
			}
		}
		telemetry.ObserveStep("completed")
		obs.StepCompleted(index, step.Description())
	}
	return nil
}
