package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/judgeroute/pkg/batch"
	"github.com/otherjamesbrown/judgeroute/pkg/checkpoint"
	"github.com/otherjamesbrown/judgeroute/pkg/cnj"
	"github.com/otherjamesbrown/judgeroute/pkg/portal"
)

// overridePrompt asks for a judge name; an empty answer skips the record.
const overridePrompt = "Digite o nome do juiz (ou pressione Enter para pular): "

// OverrideResult is the structured output of override.
type OverrideResult struct {
	RunID   string       `json:"run_id" yaml:"run_id"`
	Applied []RecordView `json:"applied" yaml:"applied"`
	Skipped int          `json:"skipped" yaml:"skipped"`
}

// NewOverrideCommand creates the override command.
func NewOverrideCommand(deps *CommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}
	var interactive bool

	cmd := &cobra.Command{
		Use:   "override <run-id|latest> [index judge-name]",
		Short: "Set the judge of a record the portal could not resolve",
		Long: `Set the judge of a not-found or blocked record by hand. Records that were
found, or that failed with a transient error, cannot be overridden; resume the
run to retry those.

With --interactive, every overridable record is shown with its portal link
and you are prompted for the judge name. Press Enter to skip a record.

Examples:
  judgeroute override latest --interactive
  judgeroute override 3f2a... 12 "Dra. Maria Silva"`,
		Args: func(cmd *cobra.Command, args []string) error {
			if interactive {
				if len(args) != 1 {
					return fmt.Errorf("--interactive takes only the run id")
				}
				return nil
			}
			if len(args) != 3 {
				return fmt.Errorf("requires run id, record index and judge name (or --interactive)")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.prepare(cmd); err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return deps.withStore(ctx, func(store checkpoint.Store) error {
				return runOverride(ctx, cmd, deps, store, args, interactive)
			})
		},
	}

	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "prompt for every record that needs review")

	return cmd
}

func runOverride(ctx context.Context, cmd *cobra.Command, deps *CommandDeps, store checkpoint.Store, args []string, interactive bool) error {
	st, err := checkpoint.Resolve(ctx, store, args[0])
	if err != nil {
		return fmt.Errorf("loading run %s: %w", args[0], err)
	}
	orch := deps.newOrchestrator(store, nil)
	if err := orch.Restore(st); err != nil {
		return err
	}

	result := OverrideResult{RunID: st.RunID, Applied: []RecordView{}}
	w := cmd.OutOrStdout()

	if interactive {
		if err := promptOverrides(cmd.ErrOrStderr(), deps, orch, &result); err != nil {
			return err
		}
	} else {
		index, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid record index %q", args[1])
		}
		if err := orch.ApplyOverride(index, args[2]); err != nil {
			return err
		}
		result.Applied = append(result.Applied, viewAt(orch.Snapshot(), index))
	}

	// ApplyOverride checkpoints on its own but only warns on failure.
	if len(result.Applied) > 0 {
		if err := store.Save(ctx, orch.Snapshot()); err != nil {
			return fmt.Errorf("saving run %s: %w", st.RunID, err)
		}
	}

	return output(w, deps.OutputFormat, result, func() error {
		fmt.Fprintf(w, "Applied %d override(s) to run %s", len(result.Applied), result.RunID)
		if result.Skipped > 0 {
			fmt.Fprintf(w, ", skipped %d", result.Skipped)
		}
		fmt.Fprintln(w)
		for _, r := range result.Applied {
			fmt.Fprintf(w, "  #%d %s: %s\n", r.Index, r.ProcessID, r.Judge)
		}
		return nil
	})
}

// promptOverrides walks the overridable records and reads one name per
// record from deps.Stdin. End of input stops the walk.
func promptOverrides(w io.Writer, deps *CommandDeps, orch *batch.Orchestrator, result *OverrideResult) error {
	snap := orch.Snapshot()
	pending := recordViews(snap, func(r batch.ProcessRecord) bool { return r.Judge.Overridable() })
	if len(pending) == 0 {
		fmt.Fprintln(w, "No records need review.")
		return nil
	}

	strategy, err := portal.StrategyByName(deps.Config.Portal.URLStrategy, deps.Config.Portal.BaseURL)
	if err != nil {
		return err
	}
	normalizer := cnj.Normalizer{Infix: deps.Config.Portal.Infix}

	scanner := bufio.NewScanner(deps.Stdin)
	for n, rv := range pending {
		fmt.Fprintf(w, "\n[%d/%d] Processo %s\n", n+1, len(pending), rv.ProcessID)
		fmt.Fprintf(w, "  Vara:      %s\n", rv.Division)
		fmt.Fprintf(w, "  Situação:  %s\n", rv.Judge)
		if id, err := normalizer.Normalize(snap.Records[rv.Index].ProcessID); err == nil {
			fmt.Fprintf(w, "  Link:      %s\n", strategy.PrimaryURL(id))
		}
		fmt.Fprint(w, overridePrompt)

		if !scanner.Scan() {
			fmt.Fprintln(w)
			result.Skipped += len(pending) - n
			return scanner.Err()
		}
		name := strings.TrimSpace(scanner.Text())
		if name == "" {
			result.Skipped++
			continue
		}
		if err := orch.ApplyOverride(rv.Index, name); err != nil {
			return err
		}
		result.Applied = append(result.Applied, viewAt(orch.Snapshot(), rv.Index))
	}
	return nil
}

func viewAt(st *batch.State, index int) RecordView {
	views := recordViews(&batch.State{Records: st.Records[index : index+1]}, func(batch.ProcessRecord) bool { return true })
	v := views[0]
	v.Index = index
	return v
}
