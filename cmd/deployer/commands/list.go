package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newExistsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "exists <name>",
		Short: "Check whether an environment exists (exit code only)",
		Long: `Exists prints nothing and signals through the exit code: 0 when the
environment record exists, 1 when it does not. Meant for scripting.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openRepository()
			if err != nil {
				return err
			}
			if !repo.Exists(args[0]) {
				os.Exit(1)
			}
			return nil
		},
	}
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all environments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openRepository()
			if err != nil {
				return err
			}
			names, err := repo.List()
			if err != nil {
				return err
			}

			type row struct {
				Name     string `json:"name"`
				State    string `json:"state"`
				Provider string `json:"provider"`
				Address  string `json:"instance_address,omitempty"`
			}
			rows := make([]row, 0, len(names))
			for _, name := range names {
				env, err := repo.Load(name)
				if err != nil {
					return err
				}
				rows = append(rows, row{
					Name:     env.Name,
					State:    string(env.State),
					Provider: env.Inputs.Provider,
					Address:  env.Outputs.InstanceAddress,
				})
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSTATE\tPROVIDER\tADDRESS")
			for _, r := range rows {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Name, r.State, r.Provider, r.Address)
			}
			return w.Flush()
		},
	}
}
