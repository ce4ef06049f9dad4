package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/torrust/torrust-tracker-deployer/pkg/environment"
	"github.com/torrust/torrust-tracker-deployer/pkg/repository"
	"github.com/torrust/torrust-tracker-deployer/pkg/telemetry"
)

// DefaultLockTimeout bounds how long a command waits for another process to
// release the same environment before giving up.
const DefaultLockTimeout = 30 * time.Second

// Recorder receives durable notifications about transitions and their steps.
// The journal implements it; NopRecorder is used when no journal is open.
// Recording failures are logged but never fail the transition itself.
type Recorder interface {
	// TransitionStarted records a new transition attempt and returns its id.
	TransitionStarted(ctx context.Context, env string, transition environment.Transition, from environment.State) (string, error)

	// TransitionCompleted marks the transition successful.
	TransitionCompleted(ctx context.Context, id string, to environment.State) error

	// TransitionFailed marks the transition failed with the given cause.
	TransitionFailed(ctx context.Context, id string, to environment.State, cause error) error

	// StepEvent records one step boundary or failure.
	StepEvent(ctx context.Context, transitionID string, index int, description, status, detail string) error
}

// NopRecorder discards all journal notifications.
type NopRecorder struct{}

func (NopRecorder) TransitionStarted(context.Context, string, environment.Transition, environment.State) (string, error) {
	return "", nil
}
func (NopRecorder) TransitionCompleted(context.Context, string, environment.State) error { return nil }
func (NopRecorder) TransitionFailed(context.Context, string, environment.State, error) error {
	return nil
}
func (NopRecorder) StepEvent(context.Context, string, int, string, string, string) error { return nil }

// TransitionError is returned when a transition's step sequence fails. It
// wraps the *StepError and names the attempted transition. The matching
// failed state has already been persisted when this error is returned.
type TransitionError struct {
	Environment string
	Transition  environment.Transition
	Step        *StepError
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s of environment %q failed at %v", e.Transition, e.Environment, e.Step)
}

func (e *TransitionError) Unwrap() error { return e.Step }

// Troubleshoot returns expanded guidance for the error.
func (e *TransitionError) Troubleshoot() string {
	return fmt.Sprintf("the environment was left in a re-attemptable failed state; fix the underlying cause and run `deployer %s %s` again (steps are idempotent and the whole transition re-runs from the start)",
		e.Transition, e.Environment)
}

// CommandHandler drives one lifecycle transition: it locks and loads the
// environment, validates the transition, persists the transient state before
// any step runs, executes the step sequence, and persists the outcome. Every
// non-success path ends in a persisted *_failed state.
type CommandHandler struct {
	repo        *repository.Repository
	recorder    Recorder
	lockTimeout time.Duration
}

// NewCommandHandler creates a handler over the given repository. recorder may
// be nil, in which case no journal entries are written.
func NewCommandHandler(repo *repository.Repository, recorder Recorder) *CommandHandler {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &CommandHandler{
		repo:        repo,
		recorder:    recorder,
		lockTimeout: DefaultLockTimeout,
	}
}

// WithLockTimeout overrides the lock acquisition timeout.
func (h *CommandHandler) WithLockTimeout(d time.Duration) *CommandHandler {
	h.lockTimeout = d
	return h
}

// Execute performs the transition on the named environment by running the
// given step sequence. obs may be nil.
//
// On step failure the remaining steps never run, the matching failed state is
// persisted, and a *TransitionError identifying the failing step is returned.
// Already-applied external side effects are not rolled back; re-running the
// transition is the recovery path.
func (h *CommandHandler) Execute(
	ctx context.Context,
	name string,
	transition environment.Transition,
	steps []Step,
	obs Observer,
) (*environment.Environment, error) {
	if obs == nil {
		obs = NopObserver{}
	}
	started := time.Now()

	lock, err := h.repo.Acquire(name, h.lockTimeout)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			log.Warn().Err(err).Str("environment", name).Msg("failed to release environment lock")
		}
	}()

	env, err := h.repo.Load(name)
	if err != nil {
		return nil, err
	}
	from := env.State

	// Rejected before any external side effect.
	if err := env.BeginTransition(transition); err != nil {
		return nil, err
	}

	// The transient state hits disk before the first step runs, so a crash
	// mid-transition is observable and distinguishable from "never started".
	if err := h.repo.Save(env); err != nil {
		return nil, err
	}

	recID, recErr := h.recorder.TransitionStarted(ctx, name, transition, from)
	if recErr != nil {
		log.Warn().Err(recErr).Msg("journal: failed to record transition start")
	}

	log.Info().
		Str("environment", name).
		Str("transition", string(transition)).
		Str("from", string(from)).
		Int("steps", len(steps)).
		Msg("starting transition")

	runErr := RunSteps(ctx, steps, env, h.journaling(ctx, recID, obs))
	if runErr != nil {
		env.FailTransition(transition)
		if err := h.repo.Save(env); err != nil {
			// The failed state could not be persisted; report both problems.
			return nil, fmt.Errorf("persist failed state after %v: %w", runErr, err)
		}

		stepErr, ok := runErr.(*StepError)
		if !ok {
			stepErr = &StepError{Index: 0, Total: len(steps), Description: "unknown", Err: runErr}
		}
		terr := &TransitionError{Environment: name, Transition: transition, Step: stepErr}

		if err := h.recorder.TransitionFailed(ctx, recID, env.State, terr); err != nil {
			log.Warn().Err(err).Msg("journal: failed to record transition failure")
		}
		telemetry.ObserveTransition(string(transition), "failed", time.Since(started))
		return nil, terr
	}

	env.CompleteTransition(transition)
	if err := h.repo.Save(env); err != nil {
		return nil, err
	}
	if err := h.recorder.TransitionCompleted(ctx, recID, env.State); err != nil {
		log.Warn().Err(err).Msg("journal: failed to record transition completion")
	}
	telemetry.ObserveTransition(string(transition), "succeeded", time.Since(started))

	log.Info().
		Str("environment", name).
		Str("transition", string(transition)).
		Str("state", string(env.State)).
		Dur("duration", time.Since(started)).
		Msg("transition complete")

	return env, nil
}

// journaling wraps an observer so step boundaries also land in the journal.
func (h *CommandHandler) journaling(ctx context.Context, recID string, obs Observer) Observer {
	return &journalObserver{ctx: ctx, recorder: h.recorder, id: recID, next: obs}
}

type journalObserver struct {
	ctx      context.Context
	recorder Recorder
	id       string
	next     Observer
	lastIdx  int
}

func (j *journalObserver) StepStarted(index, total int, description string) {
	j.lastIdx = index
	if err := j.recorder.StepEvent(j.ctx, j.id, index, description, "started", ""); err != nil {
		log.Warn().Err(err).Msg("journal: failed to record step start")
	}
	j.next.StepStarted(index, total, description)
}

func (j *journalObserver) StepCompleted(index int, description string) {
	if err := j.recorder.StepEvent(j.ctx, j.id, index, description, "completed", ""); err != nil {
		log.Warn().Err(err).Msg("journal: failed to record step completion")
	}
	j.next.StepCompleted(index, description)
}

func (j *journalObserver) Detail(text string) {
	if err := j.recorder.StepEvent(j.ctx, j.id, j.lastIdx, "", "detail", text); err != nil {
		log.Warn().Err(err).Msg("journal: failed to record step detail")
	}
	j.next.Detail(text)
}

func (j *journalObserver) Debug(text string) {
	j.next.Debug(text)
}
