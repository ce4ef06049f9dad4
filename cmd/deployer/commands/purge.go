package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/torrust/torrust-tracker-deployer/pkg/environment"
)

func newPurgeCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "purge <name>",
		Short: "Remove an environment's record",
		Long: `Purge deletes the environment's persisted record and lock file. It refuses
to remove environments that may still own infrastructure: only destroyed or
never-provisioned environments can be purged without --force.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			repo, err := openRepository()
			if err != nil {
				return err
			}
			env, err := repo.Load(name)
			if err != nil {
				return err
			}

			purgeable := env.State == environment.StateDestroyed || env.State == environment.StateCreated
			if !purgeable && !force {
				return fmt.Errorf("environment %q is %s and may still own infrastructure; destroy it first or pass --force",
					name, env.State)
			}

			if err := repo.Delete(name); err != nil {
				return err
			}

			log.Info().Str("environment", name).Str("state", string(env.State)).Msg("environment purged")
			fmt.Fprintf(cmd.OutOrStdout(), "environment %q purged\n", name)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "purge even if the environment was never destroyed")

	return cmd
}
