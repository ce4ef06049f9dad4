package commands

import (
	"github.com/spf13/cobra"

	"github.com/torrust/torrust-tracker-deployer/pkg/environment"
)

func newProvisionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "provision <name>",
		Short: "Create the environment's instance",
		Long: `Provision renders the infrastructure configuration, applies it with
OpenTofu, records the instance address, and waits until the instance answers
SSH and cloud-init has finished.

A failed provision leaves the environment in provision_failed; running
provision again retries from the start. Every step is idempotent, so a retry
converges instead of duplicating work.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransition(cmd, args[0], environment.TransitionProvision)
		},
	}
}

func newConfigureCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "configure <name>",
		Short: "Install the container runtime on the instance",
		Long: `Configure writes the Ansible inventory from the recorded instance address
and runs the playbooks that install Docker and Docker Compose, then verifies
the runtime answers over SSH.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransition(cmd, args[0], environment.TransitionConfigure)
		},
	}
}

func newReleaseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "release <name>",
		Short: "Upload the application bundle to the instance",
		Long: `Release renders the compose file and tracker configuration for this
environment, uploads the bundle over SFTP, and installs it with the
deployment playbook. The services are not started; that is the run command.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransition(cmd, args[0], environment.TransitionRelease)
		},
	}
}

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run <name>",
		Short: "Start the tracker services",
		Long: `Run starts the released compose stack on the instance and polls the
tracker's management API until it reports healthy. Running an already-running
environment restarts nothing; compose converges.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransition(cmd, args[0], environment.TransitionRun)
		},
	}
}

func newDestroyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "destroy <name>",
		Short: "Tear down the environment's instance",
		Long: `Destroy tears down the instance with OpenTofu and clears the recorded
runtime outputs. It is legal from any non-terminal state, including the
failed ones. Instances that were adopted with --instance-address are never
torn down; only the record is updated.

The environment record itself survives; use purge to remove it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransition(cmd, args[0], environment.TransitionDestroy)
		},
	}
}
