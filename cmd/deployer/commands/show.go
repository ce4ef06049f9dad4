package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Display an environment's record",
		Long: `Show prints the persisted environment record: current state, user inputs,
runtime outputs, and the state history. With --json the raw record is printed
as stored on disk.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openRepository()
			if err != nil {
				return err
			}
			env, err := repo.Load(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(env)
			}

			fmt.Fprintf(out, "Name:      %s\n", env.Name)
			fmt.Fprintf(out, "State:     %s\n", env.State)
			fmt.Fprintf(out, "Provider:  %s\n", env.Inputs.Provider)
			fmt.Fprintf(out, "Created:   %s\n", env.CreatedAt.Format("2006-01-02 15:04:05 MST"))
			if env.Outputs.InstanceAddress != "" {
				fmt.Fprintf(out, "Instance:  %s (managed: %t)\n", env.Outputs.InstanceAddress, env.Outputs.Managed)
			}
			fmt.Fprintf(out, "SSH:       %s@%s:%d\n", env.Inputs.SSH.User, env.Outputs.InstanceAddress, env.Inputs.SSH.Port)
			fmt.Fprintf(out, "Tracker:   http=%d udp=%d api=%d\n",
				env.Inputs.Tracker.HTTPPort, env.Inputs.Tracker.UDPPort, env.Inputs.Tracker.APIPort)

			fmt.Fprintln(out, "\nHistory:")
			for _, h := range env.History {
				fmt.Fprintf(out, "  %s  %s\n", h.EnteredAt.Format("2006-01-02 15:04:05"), h.State)
			}
			return nil
		},
	}
}
