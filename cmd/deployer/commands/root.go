// Package commands wires the deployer CLI: one subcommand per lifecycle
// transition plus inspection commands over the persisted environments and the
// transition journal.
package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/torrust/torrust-tracker-deployer/pkg/engine"
	"github.com/torrust/torrust-tracker-deployer/pkg/environment"
	"github.com/torrust/torrust-tracker-deployer/pkg/journal"
	"github.com/torrust/torrust-tracker-deployer/pkg/lifecycle"
	"github.com/torrust/torrust-tracker-deployer/pkg/repository"
	"github.com/torrust/torrust-tracker-deployer/pkg/telemetry"
)

var (
	// Global flags
	dataDir    string
	buildDir   string
	verbosity  int
	jsonOutput bool
)

// Execute runs the root command. On failure the error has already been
// surfaced to the user; callers only need the exit code.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		surfaceTroubleshooting(err)
	}
	return err
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "deployer",
		Short: "Torrust Tracker Deployer - provision, configure and run tracker instances",
		Long: `Torrust Tracker Deployer drives a BitTorrent tracker deployment through its
lifecycle: provision a virtual machine, configure it, release the application
bundle onto it, and run it.

Every environment is persisted as a JSON record under the data directory and
guarded by a pid-aware lock file, so concurrent invocations are safe and an
interrupted command leaves inspectable evidence behind.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			telemetry.SetupLogging(verbosity)
		},
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "directory holding environment records and the journal")
	rootCmd.PersistentFlags().StringVar(&buildDir, "build-dir", "./build", "directory for rendered provisioning and configuration trees")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase output detail (-v for step details, -vv for debug)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newCreateCommand())
	rootCmd.AddCommand(newProvisionCommand())
	rootCmd.AddCommand(newConfigureCommand())
	rootCmd.AddCommand(newReleaseCommand())
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newDestroyCommand())
	rootCmd.AddCommand(newShowCommand())
	rootCmd.AddCommand(newExistsCommand())
	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newPurgeCommand())

	return rootCmd
}

// openRepository opens the environment store under the data directory.
func openRepository() (*repository.Repository, error) {
	return repository.New(filepath.Join(dataDir, "environments"))
}

// journalPath is where the transition journal database lives.
func journalPath() string {
	return filepath.Join(dataDir, "journal.db")
}

// openJournal opens the journal; failures degrade to a nil recorder so
// lifecycle commands still work when the journal is unavailable.
func openJournal(ctx context.Context) engine.Recorder {
	j, err := journal.Open(ctx, journalPath())
	if err != nil {
		log.Warn().Err(err).Str("path", journalPath()).Msg("journal unavailable; transition history will not be recorded")
		return nil
	}
	return j
}

// runTransition is the shared body of the lifecycle subcommands: open the
// store and journal, build the step sequence, and execute it under the
// environment's lock.
func runTransition(cmd *cobra.Command, name string, transition environment.Transition) error {
	ctx := cmd.Context()

	repo, err := openRepository()
	if err != nil {
		return err
	}

	recorder := openJournal(ctx)
	if j, ok := recorder.(*journal.Journal); ok {
		defer j.Close()
	}

	planner := lifecycle.NewPlanner(buildDir, nil)
	steps, err := planner.Steps(transition)
	if err != nil {
		return err
	}

	handler := engine.NewCommandHandler(repo, recorder)
	env, err := handler.Execute(ctx, name, transition, steps, newConsoleObserver(cmd.OutOrStdout(), verbosity))
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "environment %q is now %s\n", env.Name, env.State)
	return nil
}

// surfaceTroubleshooting prints the expanded guidance attached to an error.
// The hints are opt-in: they only appear at raised verbosity, the error line
// itself is always logged.
func surfaceTroubleshooting(err error) {
	log.Error().Err(err).Msg("command failed")
	if verbosity < 1 {
		return
	}

	type troubleshooter interface {
		Troubleshoot() string
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		if ts, ok := e.(troubleshooter); ok {
			fmt.Fprintf(os.Stderr, "\n%s\n", ts.Troubleshoot())
		}
	}
}
