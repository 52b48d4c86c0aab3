package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/judgeroute/pkg/checkpoint"
)

// NewResetCommand creates the reset command.
func NewResetCommand(deps *CommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}
	var force bool

	cmd := &cobra.Command{
		Use:   "reset <run-id|latest>",
		Short: "Discard a checkpointed run",
		Long: `Delete a run's checkpoint. Its resolved judges and manual overrides are
lost; reports already written are kept.

Examples:
  judgeroute reset 3f2a... --force`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.prepare(cmd); err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			w := cmd.OutOrStdout()
			return deps.withStore(ctx, func(store checkpoint.Store) error {
				st, err := checkpoint.Resolve(ctx, store, args[0])
				if err != nil {
					return fmt.Errorf("loading run %s: %w", args[0], err)
				}
				if !force {
					fmt.Fprintf(cmd.ErrOrStderr(), "Discard run %s (%s, %d/%d records)? [y/N]: ",
						st.RunID, st.Source, st.Cursor, len(st.Records))
					if !confirm(deps) {
						fmt.Fprintln(w, "Aborted.")
						return nil
					}
				}
				if err := store.Delete(ctx, st.RunID); err != nil {
					return fmt.Errorf("deleting run %s: %w", st.RunID, err)
				}
				return output(w, deps.OutputFormat, map[string]string{"deleted": st.RunID}, func() error {
					fmt.Fprintf(w, "Run %s discarded.\n", st.RunID)
					return nil
				})
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "do not ask for confirmation")

	return cmd
}

// confirm reads a yes/no answer from deps.Stdin.
func confirm(deps *CommandDeps) bool {
	var answer string
	if _, err := fmt.Fscanln(deps.Stdin, &answer); err != nil {
		return false
	}
	switch answer {
	case "y", "Y", "yes", "s", "S", "sim":
		return true
	}
	return false
}
