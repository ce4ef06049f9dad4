package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/torrust/torrust-tracker-deployer/pkg/journal"
)

func newHistoryCommand() *cobra.Command {
	var withSteps bool

	cmd := &cobra.Command{
		Use:   "history <name>",
		Short: "Show an environment's transition journal",
		Long: `History reads the transition journal: every provision, configure, release,
run and destroy ever attempted against the environment, most recent first,
including failures. With --steps the per-step events of each transition are
shown too.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			j, err := journal.Open(ctx, journalPath())
			if err != nil {
				return err
			}
			defer j.Close()

			records, err := j.Transitions(ctx, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}

			if len(records) == 0 {
				fmt.Fprintf(out, "no recorded transitions for %q\n", args[0])
				return nil
			}

			for _, rec := range records {
				fmt.Fprintf(out, "%s  %-10s %-9s %s -> %s",
					rec.StartedAt.Format("2006-01-02 15:04:05"),
					rec.Transition, rec.Status, rec.FromState, rec.ToState)
				if rec.Error != "" {
					fmt.Fprintf(out, "  (%s)", rec.Error)
				}
				fmt.Fprintln(out)

				if !withSteps {
					continue
				}
				steps, err := j.StepEvents(ctx, rec.ID)
				if err != nil {
					return err
				}
				for _, s := range steps {
					fmt.Fprintf(out, "    [%d] %-9s %s", s.StepIndex, s.Status, s.Description)
					if s.Detail != "" {
						fmt.Fprintf(out, ": %s", s.Detail)
					}
					fmt.Fprintln(out)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&withSteps, "steps", false, "include per-step events")

	return cmd
}
